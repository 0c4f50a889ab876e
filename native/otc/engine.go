package otc

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"otcswap/core/events"
	"otcswap/core/state"
	"otcswap/core/types"
	"otcswap/native/bank"
	nativecommon "otcswap/native/common"
)

// ModuleName identifies the OTC module to the pause guard.
const ModuleName = "otc"

// Engine executes the offer lifecycle against the ledger. Every operation
// runs as one ledger transaction; events are emitted only once that
// transaction has committed.
type Engine struct {
	state   *state.Manager
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
	locks   offerLocks

	depositAsset [20]byte
	vaultDeposit uint64
	makerQuota   nativecommon.Quota
}

// NewEngine creates an OTC engine with a no-op emitter.
func NewEngine(st *state.Manager) *Engine {
	return &Engine{state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used for lifecycle notifications.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for deadline checks. Intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	e.nowFn = now
}

// SetPauses wires the module pause switch. Creation, fills and allow-list
// edits are refused while paused; makers can still cancel.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	e.pauses = p
}

// SetVaultDeposit configures the storage deposit charged to makers when a
// vault opens. A zero amount disables it.
func (e *Engine) SetVaultDeposit(asset [20]byte, amount uint64) {
	e.depositAsset = asset
	e.vaultDeposit = amount
}

// SetMakerQuota bounds how many offers, and how much input volume, one
// maker may open per epoch window.
func (e *Engine) SetMakerQuota(q nativecommon.Quota) {
	e.makerQuota = q
}

// chargeQuota records a new offer against the maker's quota window.
func (e *Engine) chargeQuota(s store, maker [20]byte, volume uint64, now int64) error {
	if !e.makerQuota.Enabled() {
		return nil
	}
	prev, err := s.makerQuota(maker)
	if err != nil {
		return err
	}
	next, err := nativecommon.CheckQuota(e.makerQuota, e.makerQuota.Epoch(now), prev, 1, volume)
	if err != nil {
		if errors.Is(err, nativecommon.ErrQuotaCounterOverflow) {
			return fmt.Errorf("%w: %v", ErrSequenceOverflow, err)
		}
		return fmt.Errorf("%w: %v", ErrMakerQuota, err)
	}
	return s.putMakerQuota(maker, next)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emitAll(evts []*types.Event) {
	if e.emitter == nil {
		return
	}
	for _, evt := range evts {
		if evt != nil {
			e.emitter.Emit(otcEvent{evt: evt})
		}
	}
}

// update runs fn in a ledger transaction. fn may be re-run after a conflict,
// so it returns the events to emit rather than emitting them itself.
func (e *Engine) update(fn func(s store) ([]*types.Event, error)) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("otc: engine not initialised")
	}
	var pending []*types.Event
	err := e.state.Update(func(tx *state.Tx) error {
		evts, err := fn(store{tx: tx})
		if err != nil {
			return mapBankError(err)
		}
		pending = evts
		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll(pending)
	return nil
}

func (e *Engine) view(fn func(s store) error) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("otc: engine not initialised")
	}
	return e.state.View(func(tx *state.Tx) error { return fn(store{tx: tx}) })
}

func mapBankError(err error) error {
	if errors.Is(err, bank.ErrInvalidVaultOwner) {
		return fmt.Errorf("%w: %v", ErrInvalidVaultOwner, err)
	}
	if errors.Is(err, bank.ErrZeroAddress) {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return err
}

// CreateOffer opens an offer, funds its vault with the maker's input asset
// and copies the current fee terms into it.
func (e *Engine) CreateOffer(p CreateOfferParams) (*Offer, error) {
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if p.Maker == ([20]byte{}) {
		return nil, ErrInvalidMaker
	}
	if p.InputAsset == ([20]byte{}) || p.OutputAsset == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	if p.InputAsset == p.OutputAsset {
		return nil, ErrInvalidTokenMint
	}
	if p.TokenAmount == 0 || p.ExpectedTotalAmount == 0 {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if p.Deadline <= now {
		return nil, ErrInvalidDeadline
	}

	addr := OfferAddress(p.Maker, p.OfferID)
	unlock := e.locks.lock(addr)
	defer unlock()

	var created *Offer
	err := e.update(func(s store) ([]*types.Event, error) {
		cfg, err := s.adminConfig()
		if err != nil {
			return nil, err
		}
		fee, err := s.feeConfig()
		if err != nil {
			return nil, err
		}
		required, err := s.requireWhitelist()
		if err != nil {
			return nil, err
		}
		if required {
			mints, err := s.mints()
			if err != nil {
				return nil, err
			}
			if !mintAllowed(mints, p.InputAsset) || !mintAllowed(mints, p.OutputAsset) {
				return nil, ErrMintNotWhitelisted
			}
		}
		exists, err := s.offerExists(addr)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrOfferAlreadyExists
		}
		if err := e.chargeQuota(s, p.Maker, p.TokenAmount, now); err != nil {
			return nil, err
		}

		offer := &Offer{
			Address:              addr,
			OfferID:              p.OfferID,
			Maker:                p.Maker,
			Vault:                VaultAddress(addr),
			InputAsset:           p.InputAsset,
			OutputAsset:          p.OutputAsset,
			TokenAmount:          p.TokenAmount,
			TokenAmountRemaining: p.TokenAmount,
			ExpectedTotalAmount:  p.ExpectedTotalAmount,
			Deadline:             p.Deadline,
			FeePercentage:        fee.FeePercentage,
			FeeWallet:            fee.FeeAddress,
			RequireWhitelist:     required || len(p.InitialTakers) > 0,
			Status:               OfferInitialized,
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		wl, err := newWhitelist(addr, p.Maker, p.InitialTakers)
		if err != nil {
			return nil, err
		}

		err = bank.OpenVault(s.tx, bank.Vault{
			Address:      offer.Vault,
			Authority:    offer.Address,
			Owner:        offer.Maker,
			Asset:        offer.InputAsset,
			DepositAsset: e.depositAsset,
			Deposit:      e.vaultDeposit,
		})
		if err != nil {
			return nil, err
		}
		offer.Status = OfferVaultInitialized
		if err := bank.Fund(s.tx, offer.Vault, offer.Maker, offer.TokenAmount); err != nil {
			return nil, err
		}

		if err := s.putWhitelist(wl); err != nil {
			return nil, err
		}
		if err := s.putFeeSnapshot(addr, *fee); err != nil {
			return nil, err
		}
		if err := cfg.RecordCreated(); err != nil {
			return nil, err
		}
		if err := cfg.Transition(offer.Status, OfferOngoing); err != nil {
			return nil, err
		}
		offer.Status = OfferOngoing
		if err := s.putAdminConfig(cfg); err != nil {
			return nil, err
		}
		if err := s.trackCustody(addr); err != nil {
			return nil, err
		}
		if err := s.putOffer(offer); err != nil {
			return nil, err
		}
		created = offer
		return []*types.Event{NewOfferCreatedEvent(offer)}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FillOffer buys amount of the offer's input asset on behalf of taker. The
// taker pays the proportional output amount, split between the fee wallet
// and the maker, and receives the input from the vault. A fill that drains
// the vault completes the offer.
func (e *Engine) FillOffer(taker, offerAddr [20]byte, amount uint64) (*FillResult, error) {
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	unlock := e.locks.lock(offerAddr)
	defer unlock()

	var result *FillResult
	err := e.update(func(s store) ([]*types.Event, error) {
		offer, err := s.offer(offerAddr)
		if err != nil {
			return nil, err
		}
		if offer.Status != OfferOngoing {
			return nil, ErrInvalidOfferStatus
		}
		now := e.now()
		if now > offer.Deadline {
			return nil, ErrOfferExpired
		}
		wl, err := s.whitelist(offerAddr)
		if err != nil {
			return nil, err
		}
		if err := authorizeTaker(offer, wl, taker); err != nil {
			return nil, err
		}
		if amount == 0 || amount > offer.TokenAmountRemaining {
			return nil, ErrInsufficientAmount
		}
		fee, err := s.feeSnapshot(offerAddr)
		if err != nil {
			return nil, err
		}
		if fee == nil {
			return nil, ErrFeeConfigNotInitialized
		}
		terms := offer.Clone()
		terms.FeePercentage = fee.FeePercentage
		split, err := Settle(terms, amount)
		if err != nil {
			return nil, err
		}

		if err := bank.Transfer(s.tx, taker, fee.FeeAddress, offer.OutputAsset, split.FeeAmount); err != nil {
			return nil, err
		}
		if err := bank.Transfer(s.tx, taker, offer.Maker, offer.OutputAsset, split.PaymentToMaker); err != nil {
			return nil, err
		}
		if err := bank.Release(s.tx, offer.Vault, offer.Address, taker, amount); err != nil {
			return nil, err
		}

		fulfilled, carry := bits.Add64(offer.ExpectedFulfilledAmount, split.PaymentToMaker, 0)
		if carry != 0 {
			return nil, ErrCalculationError
		}
		offer.ExpectedFulfilledAmount = fulfilled
		offer.TokenAmountRemaining -= amount
		offer.UpdatedAt = now

		res := &FillResult{
			Offer:           offerAddr,
			Taker:           taker,
			InputAmount:     amount,
			ExpectedPayment: split.ExpectedPayment,
			FeeAmount:       split.FeeAmount,
			PaymentAmount:   split.PaymentToMaker,
			Remaining:       offer.TokenAmountRemaining,
		}
		if offer.TokenAmountRemaining == 0 {
			if _, err := e.closeOffer(s, offer); err != nil {
				return nil, err
			}
			if err := e.transition(s, offer, OfferCompleted, nil); err != nil {
				return nil, err
			}
			res.Completed = true
		}
		if err := s.putOffer(offer); err != nil {
			return nil, err
		}
		result = res
		return []*types.Event{NewOfferTakenEvent(offer, res)}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOffer returns the remaining vault balance and deposit to the maker and
// closes the offer. The maker may cancel at any time; anyone may once the
// deadline has passed.
func (e *Engine) CancelOffer(caller, offerAddr [20]byte) (*CancelResult, error) {
	unlock := e.locks.lock(offerAddr)
	defer unlock()

	var result *CancelResult
	err := e.update(func(s store) ([]*types.Event, error) {
		offer, err := s.offer(offerAddr)
		if err != nil {
			return nil, err
		}
		if offer.Status != OfferOngoing && offer.Status != OfferExpired {
			return nil, ErrInvalidOfferStatus
		}
		now := e.now()
		if err := authorizeCancel(offer, caller, now); err != nil {
			return nil, err
		}
		balance, err := bank.VaultBalance(s.tx, offer.Vault)
		if err != nil {
			return nil, err
		}
		if err := bank.Release(s.tx, offer.Vault, offer.Address, offer.Maker, balance); err != nil {
			return nil, err
		}
		deposit, err := e.closeOffer(s, offer)
		if err != nil {
			return nil, err
		}
		reason := CancelReasonMaker
		if now > offer.Deadline {
			reason = CancelReasonExpired
		}
		if err := e.transition(s, offer, OfferCancelled, nil); err != nil {
			return nil, err
		}
		offer.TokenAmountRemaining = 0
		offer.UpdatedAt = now
		if err := s.putOffer(offer); err != nil {
			return nil, err
		}
		result = &CancelResult{Offer: offerAddr, Refunded: balance, Deposit: deposit, Reason: reason}
		return []*types.Event{NewOfferCancelledEvent(offer, result, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkExpired flips an Ongoing offer past its deadline to Expired. Custody is
// untouched; the maker or anyone else reclaims it through CancelOffer.
func (e *Engine) MarkExpired(admin, offerAddr [20]byte) error {
	unlock := e.locks.lock(offerAddr)
	defer unlock()

	return e.update(func(s store) ([]*types.Event, error) {
		cfg, err := s.adminConfig()
		if err != nil {
			return nil, err
		}
		if err := requireAdmin(cfg, admin); err != nil {
			return nil, err
		}
		offer, err := s.offer(offerAddr)
		if err != nil {
			return nil, err
		}
		if offer.Status != OfferOngoing {
			return nil, ErrInvalidOfferStatus
		}
		now := e.now()
		if now <= offer.Deadline {
			return nil, ErrOfferNotExpired
		}
		if err := e.transition(s, offer, OfferExpired, func(cfg *AdminConfig) {
			cfg.LastExpiryCheck = now
		}); err != nil {
			return nil, err
		}
		offer.UpdatedAt = now
		if err := s.putOffer(offer); err != nil {
			return nil, err
		}
		return []*types.Event{NewOfferExpiredEvent(offer, now)}, nil
	})
}

// EditWhitelist removes and then adds takers on the offer's allow-list.
func (e *Engine) EditWhitelist(maker, offerAddr [20]byte, add, remove [][20]byte) (*Whitelist, error) {
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	unlock := e.locks.lock(offerAddr)
	defer unlock()

	var updated *Whitelist
	err := e.update(func(s store) ([]*types.Event, error) {
		offer, err := s.offer(offerAddr)
		if err != nil {
			return nil, err
		}
		if err := requireMaker(offer, maker); err != nil {
			return nil, err
		}
		if offer.Status != OfferOngoing {
			return nil, ErrInvalidOfferStatus
		}
		current, err := s.whitelist(offerAddr)
		if err != nil {
			return nil, err
		}
		if current == nil {
			current = &Whitelist{Offer: offerAddr, Maker: offer.Maker}
		}
		next, err := current.Edit(add, remove)
		if err != nil {
			return nil, err
		}
		if err := s.putWhitelist(next); err != nil {
			return nil, err
		}
		updated = next
		return []*types.Event{NewTakersUpdatedEvent(offer, next)}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ExpireDue marks every open offer whose deadline has passed as expired and
// returns their addresses. At most limit offers are processed when limit is
// positive. Each pass stamps LastExpiryCheck, even when nothing was due.
func (e *Engine) ExpireDue(admin [20]byte, limit int) ([][20]byte, error) {
	now := e.now()
	if err := e.updateAsAdmin(admin, func(s store) ([]*types.Event, error) {
		cfg, err := s.adminConfig()
		if err != nil {
			return nil, err
		}
		cfg.LastExpiryCheck = now
		return nil, s.putAdminConfig(cfg)
	}); err != nil {
		return nil, err
	}
	open, err := e.OpenOffers()
	if err != nil {
		return nil, err
	}
	expired := make([][20]byte, 0)
	for _, offer := range open {
		if limit > 0 && len(expired) >= limit {
			break
		}
		if offer.Status != OfferOngoing || now <= offer.Deadline {
			continue
		}
		err := e.MarkExpired(admin, offer.Address)
		switch {
		case err == nil:
			expired = append(expired, offer.Address)
		case errors.Is(err, ErrInvalidOfferStatus), errors.Is(err, ErrOfferNotExpired), errors.Is(err, ErrOfferNotFound):
			// Raced with a fill or cancel.
		default:
			return expired, err
		}
	}
	return expired, nil
}

// closeOffer releases every per-offer record except the offer itself, which
// stays behind as a terminal tombstone.
func (e *Engine) closeOffer(s store, offer *Offer) (uint64, error) {
	deposit, err := bank.Close(s.tx, offer.Vault, offer.Address)
	if err != nil {
		return 0, err
	}
	if err := s.deleteWhitelist(offer.Address); err != nil {
		return 0, err
	}
	if err := s.deleteFeeSnapshot(offer.Address); err != nil {
		return 0, err
	}
	if err := s.untrackCustody(offer.Address); err != nil {
		return 0, err
	}
	return deposit, nil
}

func (e *Engine) transition(s store, offer *Offer, to OfferStatus, mutate func(*AdminConfig)) error {
	cfg, err := s.adminConfig()
	if err != nil {
		return err
	}
	if offer.Status.Terminal() {
		return ErrInvalidOfferStatus
	}
	if err := cfg.Transition(offer.Status, to); err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
	}
	offer.Status = to
	return s.putAdminConfig(cfg)
}
