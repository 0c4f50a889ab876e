package otc

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"otcswap/core/events"
	"otcswap/core/state"
	"otcswap/core/types"
	"otcswap/native/bank"
	nativecommon "otcswap/native/common"
	"otcswap/storage"
)

const testNow = int64(1_700_000_000)

type capturingEmitter struct {
	mu     sync.Mutex
	events []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	if rec := events.Record(evt); rec != nil {
		c.mu.Lock()
		c.events = append(c.events, rec)
		c.mu.Unlock()
	}
}

func (c *capturingEmitter) eventTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Type
	}
	return out
}

func (c *capturingEmitter) last() *types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	adminAddr   = newTestAddress(0xAD)
	feeWallet   = newTestAddress(0xFE)
	makerAddr   = newTestAddress(0x01)
	takerAddr   = newTestAddress(0x02)
	otherAddr   = newTestAddress(0x03)
	inputAsset  = newTestAddress(0xA1)
	outputAsset = newTestAddress(0xB2)
	nativeAsset = newTestAddress(0xEE)
)

type testEnv struct {
	engine  *Engine
	emitter *capturingEmitter
	now     int64
}

func (env *testEnv) setNow(ts int64) { env.now = ts }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := state.NewManager(storage.NewMemDB())
	require.NoError(t, err)
	st.SetMaxAttempts(1000)
	env := &testEnv{engine: NewEngine(st), emitter: &capturingEmitter{}, now: testNow}
	env.engine.SetNowFunc(func() int64 { return env.now })

	require.NoError(t, env.engine.InitializeAdmin(adminAddr, 100, feeWallet, false, nil))
	require.NoError(t, env.engine.Credit(makerAddr, inputAsset, 10_000))
	require.NoError(t, env.engine.Credit(takerAddr, outputAsset, 100_000))
	require.NoError(t, env.engine.Credit(otherAddr, outputAsset, 100_000))
	env.engine.SetEmitter(env.emitter)
	return env
}

func (env *testEnv) createOffer(t *testing.T, id uint64, takers ...[20]byte) *Offer {
	t.Helper()
	offer, err := env.engine.CreateOffer(CreateOfferParams{
		Maker:               makerAddr,
		OfferID:             id,
		InputAsset:          inputAsset,
		OutputAsset:         outputAsset,
		TokenAmount:         1_000,
		ExpectedTotalAmount: 2_000,
		Deadline:            testNow + 3_600,
		InitialTakers:       takers,
	})
	require.NoError(t, err)
	return offer
}

func (env *testEnv) balance(t *testing.T, account, asset [20]byte) uint64 {
	t.Helper()
	bal, err := env.engine.Balance(account, asset)
	require.NoError(t, err)
	return bal
}

func TestCreateOfferFundsVault(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	require.Equal(t, OfferOngoing, offer.Status)
	require.Equal(t, OfferAddress(makerAddr, 1), offer.Address)
	require.Equal(t, VaultAddress(offer.Address), offer.Vault)
	require.EqualValues(t, 1_000, offer.TokenAmountRemaining)
	require.EqualValues(t, 100, offer.FeePercentage)
	require.Equal(t, feeWallet, offer.FeeWallet)
	require.False(t, offer.RequireWhitelist)

	vault, err := env.engine.VaultBalance(offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, vault)
	require.EqualValues(t, 9_000, env.balance(t, makerAddr, inputAsset))

	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalOffers)
	require.EqualValues(t, 1, stats.ActiveOffers)

	require.Equal(t, []string{EventTypeOfferCreated}, env.emitter.eventTypes())
	require.Equal(t, "1000", env.emitter.last().Attr(AttrTokenAmount))
}

func TestCreateOfferValidation(t *testing.T) {
	env := newTestEnv(t)
	base := CreateOfferParams{
		Maker:               makerAddr,
		OfferID:             9,
		InputAsset:          inputAsset,
		OutputAsset:         outputAsset,
		TokenAmount:         100,
		ExpectedTotalAmount: 100,
		Deadline:            testNow + 10,
	}
	tests := []struct {
		name   string
		mutate func(p *CreateOfferParams)
		want   error
	}{
		{name: "deadline now", mutate: func(p *CreateOfferParams) { p.Deadline = testNow }, want: ErrInvalidDeadline},
		{name: "zero amount", mutate: func(p *CreateOfferParams) { p.TokenAmount = 0 }, want: ErrInvalidAmount},
		{name: "zero expected", mutate: func(p *CreateOfferParams) { p.ExpectedTotalAmount = 0 }, want: ErrInvalidAmount},
		{name: "same assets", mutate: func(p *CreateOfferParams) { p.OutputAsset = p.InputAsset }, want: ErrInvalidTokenMint},
		{name: "zero maker", mutate: func(p *CreateOfferParams) { p.Maker = [20]byte{} }, want: ErrInvalidMaker},
		{name: "duplicate taker", mutate: func(p *CreateOfferParams) { p.InitialTakers = [][20]byte{takerAddr, takerAddr} }, want: ErrTakerAlreadyWhitelisted},
		{name: "insufficient maker funds", mutate: func(p *CreateOfferParams) { p.TokenAmount = 10_001 }, want: bank.ErrInsufficientBalance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			_, err := env.engine.CreateOffer(p)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := env.engine.Offer(OfferAddress(makerAddr, 9))
	require.ErrorIs(t, err, ErrOfferNotFound)
	require.EqualValues(t, 10_000, env.balance(t, makerAddr, inputAsset))
	require.Empty(t, env.emitter.eventTypes())
}

func TestCreateOfferRequiresAdmin(t *testing.T) {
	st, err := state.NewManager(storage.NewMemDB())
	require.NoError(t, err)
	engine := NewEngine(st)
	engine.SetNowFunc(func() int64 { return testNow })
	_, err = engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 1, ExpectedTotalAmount: 1, Deadline: testNow + 1,
	})
	require.ErrorIs(t, err, ErrAdminNotInitialized)
}

func TestCreateOfferRejectsReusedID(t *testing.T) {
	env := newTestEnv(t)
	env.createOffer(t, 1)
	_, err := env.engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, OfferID: 1, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 10, ExpectedTotalAmount: 10, Deadline: testNow + 10,
	})
	require.ErrorIs(t, err, ErrOfferAlreadyExists)
}

func TestPartialThenFullFill(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	res, err := env.engine.FillOffer(takerAddr, offer.Address, 400)
	require.NoError(t, err)
	require.Equal(t, &FillResult{
		Offer: offer.Address, Taker: takerAddr, InputAmount: 400,
		ExpectedPayment: 800, FeeAmount: 8, PaymentAmount: 792, Remaining: 600,
	}, res)

	require.EqualValues(t, 792, env.balance(t, makerAddr, outputAsset))
	require.EqualValues(t, 8, env.balance(t, feeWallet, outputAsset))
	require.EqualValues(t, 400, env.balance(t, takerAddr, inputAsset))
	require.EqualValues(t, 100_000-800, env.balance(t, takerAddr, outputAsset))

	stored, err := env.engine.Offer(offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 600, stored.TokenAmountRemaining)
	require.EqualValues(t, 792, stored.ExpectedFulfilledAmount)
	require.Equal(t, OfferOngoing, stored.Status)

	// Overdraw by one.
	_, err = env.engine.FillOffer(takerAddr, offer.Address, 601)
	require.ErrorIs(t, err, ErrInsufficientAmount)
	_, err = env.engine.FillOffer(takerAddr, offer.Address, 0)
	require.ErrorIs(t, err, ErrInsufficientAmount)

	res, err = env.engine.FillOffer(takerAddr, offer.Address, 600)
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.EqualValues(t, 1_200, res.ExpectedPayment)
	require.EqualValues(t, 12, res.FeeAmount)

	stored, err = env.engine.Offer(offer.Address)
	require.NoError(t, err)
	require.Equal(t, OfferCompleted, stored.Status)
	require.EqualValues(t, 0, stored.TokenAmountRemaining)
	require.EqualValues(t, 1_980, stored.ExpectedFulfilledAmount)

	fee, err := env.engine.FeeSnapshot(offer.Address)
	require.NoError(t, err)
	require.Nil(t, fee)
	vault, err := env.engine.VaultBalance(offer.Address)
	require.NoError(t, err)
	require.Zero(t, vault)

	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.ActiveOffers)
	require.EqualValues(t, 1, stats.CompletedOffers)

	open, err := env.engine.OpenOffers()
	require.NoError(t, err)
	require.Empty(t, open)

	require.Equal(t, []string{EventTypeOfferCreated, EventTypeOfferTaken, EventTypeOfferTaken}, env.emitter.eventTypes())
	require.Equal(t, "0", env.emitter.last().Attr(AttrRemainingAmount))
}

func TestTerminalOffersRejectEverything(t *testing.T) {
	env := newTestEnv(t)
	completed := env.createOffer(t, 1)
	_, err := env.engine.FillOffer(takerAddr, completed.Address, 1_000)
	require.NoError(t, err)

	cancelled := env.createOffer(t, 2)
	_, err = env.engine.CancelOffer(makerAddr, cancelled.Address)
	require.NoError(t, err)

	for _, addr := range [][20]byte{completed.Address, cancelled.Address} {
		_, err = env.engine.FillOffer(takerAddr, addr, 1)
		require.ErrorIs(t, err, ErrInvalidOfferStatus)
		_, err = env.engine.CancelOffer(makerAddr, addr)
		require.ErrorIs(t, err, ErrInvalidOfferStatus)
		_, err = env.engine.EditWhitelist(makerAddr, addr, [][20]byte{otherAddr}, nil)
		require.ErrorIs(t, err, ErrInvalidOfferStatus)
		env.setNow(testNow + 7_200)
		require.ErrorIs(t, env.engine.MarkExpired(adminAddr, addr), ErrInvalidOfferStatus)
		env.setNow(testNow)
	}
}

func TestTransitionOutOfTerminalStatusRefused(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)
	_, err := env.engine.FillOffer(takerAddr, offer.Address, 1_000)
	require.NoError(t, err)

	err = env.engine.update(func(s store) ([]*types.Event, error) {
		stored, err := s.offer(offer.Address)
		if err != nil {
			return nil, err
		}
		return nil, env.engine.transition(s, stored, OfferCancelled, nil)
	})
	require.ErrorIs(t, err, ErrInvalidOfferStatus)

	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.CompletedOffers)
	require.EqualValues(t, 0, stats.CancelledOffers)
}

func TestUnknownStoredStatusIsRejected(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	require.NoError(t, env.engine.update(func(s store) ([]*types.Event, error) {
		stored, err := s.offer(offer.Address)
		if err != nil {
			return nil, err
		}
		stored.Status = OfferStatus(42)
		return nil, s.putOffer(stored)
	}))

	_, err := env.engine.Offer(offer.Address)
	require.ErrorContains(t, err, "unknown status")
}

func TestFillAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	env.setNow(offer.Deadline)
	_, err := env.engine.FillOffer(takerAddr, offer.Address, 1)
	require.NoError(t, err, "deadline itself is still fillable")

	env.setNow(offer.Deadline + 1)
	_, err = env.engine.FillOffer(takerAddr, offer.Address, 1)
	require.ErrorIs(t, err, ErrOfferExpired)
}

func TestFillUnknownOffer(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.FillOffer(takerAddr, newTestAddress(0x77), 1)
	require.ErrorIs(t, err, ErrOfferNotFound)
}

func TestFillRequiresTakerFunds(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)
	poor := newTestAddress(0x44)
	_, err := env.engine.FillOffer(poor, offer.Address, 10)
	require.ErrorIs(t, err, bank.ErrInsufficientBalance)

	vault, err := env.engine.VaultBalance(offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, vault)
	require.Zero(t, env.balance(t, poor, inputAsset))
}

func TestWhitelistGatesFills(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1, takerAddr)
	require.True(t, offer.RequireWhitelist)

	_, err := env.engine.FillOffer(otherAddr, offer.Address, 10)
	require.ErrorIs(t, err, ErrTakerNotWhitelisted)
	_, err = env.engine.FillOffer(takerAddr, offer.Address, 10)
	require.NoError(t, err)

	_, err = env.engine.EditWhitelist(otherAddr, offer.Address, [][20]byte{otherAddr}, nil)
	require.ErrorIs(t, err, ErrUnauthorizedMaker)

	wl, err := env.engine.EditWhitelist(makerAddr, offer.Address, [][20]byte{otherAddr}, [][20]byte{takerAddr})
	require.NoError(t, err)
	require.Equal(t, [][20]byte{otherAddr}, wl.Takers)

	_, err = env.engine.FillOffer(takerAddr, offer.Address, 10)
	require.ErrorIs(t, err, ErrTakerNotWhitelisted)
	_, err = env.engine.FillOffer(otherAddr, offer.Address, 10)
	require.NoError(t, err)
	require.Equal(t, EventTypeOfferTaken, env.emitter.last().Type)
}

func TestEditWhitelistErrors(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1, takerAddr)

	_, err := env.engine.EditWhitelist(makerAddr, offer.Address, nil, nil)
	require.ErrorIs(t, err, ErrEmptyTakersList)
	_, err = env.engine.EditWhitelist(makerAddr, offer.Address, [][20]byte{takerAddr}, nil)
	require.ErrorIs(t, err, ErrTakerAlreadyWhitelisted)
	_, err = env.engine.EditWhitelist(makerAddr, offer.Address, nil, [][20]byte{otherAddr})
	require.ErrorIs(t, err, ErrTakerNotWhitelisted)

	full := make([][20]byte, 0, MaxWhitelistedTakers)
	for i := 0; len(full) < MaxWhitelistedTakers; i++ {
		addr := newTestAddress(byte(0x10 + i))
		if addr == takerAddr {
			continue
		}
		full = append(full, addr)
	}
	_, err = env.engine.EditWhitelist(makerAddr, offer.Address, full, nil)
	require.ErrorIs(t, err, ErrWhitelistFull)

	wl, err := env.engine.Whitelist(offer.Address)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{takerAddr}, wl.Takers, "rejected edit must not persist")

	wl, err = env.engine.EditWhitelist(makerAddr, offer.Address, full, [][20]byte{takerAddr})
	require.NoError(t, err)
	require.Len(t, wl.Takers, MaxWhitelistedTakers)
}

func TestCancelAuthorization(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)
	_, err := env.engine.FillOffer(takerAddr, offer.Address, 250)
	require.NoError(t, err)

	_, err = env.engine.CancelOffer(otherAddr, offer.Address)
	require.ErrorIs(t, err, ErrCannotCancelOffer)

	env.setNow(offer.Deadline + 1)
	res, err := env.engine.CancelOffer(otherAddr, offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 750, res.Refunded)
	require.Equal(t, CancelReasonExpired, res.Reason)

	require.EqualValues(t, 9_750, env.balance(t, makerAddr, inputAsset))
	require.Zero(t, env.balance(t, otherAddr, inputAsset))

	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.ActiveOffers)
	require.EqualValues(t, 1, stats.CancelledOffers)

	last := env.emitter.last()
	require.Equal(t, EventTypeOfferCancelled, last.Type)
	require.Equal(t, string(CancelReasonExpired), last.Attr(AttrReason))
}

func TestMakerCancelBeforeDeadline(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)
	res, err := env.engine.CancelOffer(makerAddr, offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, res.Refunded)
	require.Equal(t, CancelReasonMaker, res.Reason)
	require.EqualValues(t, 10_000, env.balance(t, makerAddr, inputAsset))

	stored, err := env.engine.Offer(offer.Address)
	require.NoError(t, err)
	require.Equal(t, OfferCancelled, stored.Status)
}

func TestMarkExpiredThenCancel(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	require.ErrorIs(t, env.engine.MarkExpired(otherAddr, offer.Address), ErrUnauthorizedAdmin)
	require.ErrorIs(t, env.engine.MarkExpired(adminAddr, offer.Address), ErrOfferNotExpired)

	env.setNow(offer.Deadline + 5)
	require.NoError(t, env.engine.MarkExpired(adminAddr, offer.Address))
	require.ErrorIs(t, env.engine.MarkExpired(adminAddr, offer.Address), ErrInvalidOfferStatus)

	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.ActiveOffers)
	require.EqualValues(t, 1, stats.ExpiredOffers)
	require.Equal(t, offer.Deadline+5, stats.LastExpiryCheck)

	_, err = env.engine.FillOffer(takerAddr, offer.Address, 1)
	require.ErrorIs(t, err, ErrInvalidOfferStatus)

	vault, err := env.engine.VaultBalance(offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, vault, "expiry does not move custody")

	open, err := env.engine.OpenOffers()
	require.NoError(t, err)
	require.Empty(t, open)
	unclaimed, err := env.engine.OffersWithStatus(OfferExpired)
	require.NoError(t, err)
	require.Len(t, unclaimed, 1)
	require.Equal(t, offer.Address, unclaimed[0].Address)
	custody, err := env.engine.CustodySnapshot()
	require.NoError(t, err)
	require.Len(t, custody, 1)
	require.EqualValues(t, 1_000, custody[0].VaultBalance)
	require.Equal(t, OfferExpired, custody[0].Offer.Status)

	res, err := env.engine.CancelOffer(makerAddr, offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, res.Refunded)

	stats, err = env.engine.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.ExpiredOffers)
	require.EqualValues(t, 1, stats.CancelledOffers)

	custody, err = env.engine.CustodySnapshot()
	require.NoError(t, err)
	require.Empty(t, custody)
}

func TestExpireDue(t *testing.T) {
	env := newTestEnv(t)
	early := env.createOffer(t, 1)
	late, err := env.engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, OfferID: 2, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 10, ExpectedTotalAmount: 10, Deadline: testNow + 99_999,
	})
	require.NoError(t, err)

	env.setNow(early.Deadline + 1)
	expired, err := env.engine.ExpireDue(adminAddr, 0)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{early.Address}, expired)

	open, err := env.engine.OpenOffers()
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, late.Address, open[0].Address)
}

func TestExpireDueStampsEveryPass(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	_, err := env.engine.ExpireDue(otherAddr, 0)
	require.ErrorIs(t, err, ErrUnauthorizedAdmin)

	env.setNow(testNow + 3)
	expired, err := env.engine.ExpireDue(adminAddr, 0)
	require.NoError(t, err)
	require.Empty(t, expired)
	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, testNow+3, stats.LastExpiryCheck)

	env.setNow(offer.Deadline + 1)
	_, err = env.engine.ExpireDue(adminAddr, 0)
	require.NoError(t, err)
	env.setNow(offer.Deadline + 9)
	expired, err = env.engine.ExpireDue(adminAddr, 0)
	require.NoError(t, err)
	require.Empty(t, expired)
	stats, err = env.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, offer.Deadline+9, stats.LastExpiryCheck)
	require.EqualValues(t, 1, stats.ExpiredOffers)
}

func TestFeeSnapshotSurvivesConfigChange(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	newWallet := newTestAddress(0xCC)
	require.NoError(t, env.engine.UpdateFeePercentage(adminAddr, 500))
	require.NoError(t, env.engine.UpdateFeeAddress(adminAddr, newWallet))

	res, err := env.engine.FillOffer(takerAddr, offer.Address, 500)
	require.NoError(t, err)
	require.EqualValues(t, 10, res.FeeAmount)
	require.EqualValues(t, 10, env.balance(t, feeWallet, outputAsset))
	require.Zero(t, env.balance(t, newWallet, outputAsset))

	fresh := env.createOffer(t, 2)
	require.EqualValues(t, 500, fresh.FeePercentage)
	require.Equal(t, newWallet, fresh.FeeWallet)
}

func TestMintWhitelistEnforcedWhenRequired(t *testing.T) {
	env := newTestEnv(t)
	required, err := env.engine.ToggleRequireWhitelist(adminAddr)
	require.NoError(t, err)
	require.True(t, required)

	_, err = env.engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, OfferID: 1, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 10, ExpectedTotalAmount: 10, Deadline: testNow + 10,
	})
	require.ErrorIs(t, err, ErrMintNotWhitelisted)

	require.NoError(t, env.engine.AddMints(adminAddr, [][20]byte{inputAsset, outputAsset}))
	offer := env.createOffer(t, 1, takerAddr)
	require.True(t, offer.RequireWhitelist)

	noTakers := env.createOffer(t, 2)
	require.True(t, noTakers.RequireWhitelist)
	_, err = env.engine.FillOffer(takerAddr, noTakers.Address, 1)
	require.ErrorIs(t, err, ErrTakerNotWhitelisted)
}

func TestAdminOperations(t *testing.T) {
	env := newTestEnv(t)

	require.ErrorIs(t, env.engine.InitializeAdmin(adminAddr, 1, feeWallet, false, nil), ErrAdminAlreadyInitialized)
	require.ErrorIs(t, env.engine.UpdateFeePercentage(otherAddr, 1), ErrUnauthorizedAdmin)
	require.ErrorIs(t, env.engine.UpdateFeePercentage(adminAddr, FeeDenominator+1), ErrInvalidFeePercentage)
	require.ErrorIs(t, env.engine.UpdateFeeAddress(adminAddr, [20]byte{}), ErrInvalidAddress)
	_, err := env.engine.ToggleRequireWhitelist(otherAddr)
	require.ErrorIs(t, err, ErrUnauthorizedAdmin)

	require.ErrorIs(t, env.engine.AddMints(adminAddr, nil), ErrEmptyMintsList)
	require.NoError(t, env.engine.AddMints(adminAddr, [][20]byte{inputAsset}))
	require.ErrorIs(t, env.engine.AddMints(adminAddr, [][20]byte{inputAsset}), ErrMintAlreadyWhitelisted)
	require.ErrorIs(t, env.engine.RemoveMints(adminAddr, [][20]byte{outputAsset}), ErrMintNotWhitelisted)

	many := make([][20]byte, 0, MaxWhitelistedMints)
	for i := 0; i < MaxWhitelistedMints; i++ {
		many = append(many, newTestAddress(byte(0x40+i)))
	}
	require.ErrorIs(t, env.engine.AddMints(adminAddr, many), ErrTooManyMints)

	require.NoError(t, env.engine.RemoveMints(adminAddr, [][20]byte{inputAsset}))
	cfg, err := env.engine.GlobalConfig()
	require.NoError(t, err)
	require.Empty(t, cfg.Mints)
	require.Equal(t, adminAddr, cfg.Admin)
	require.EqualValues(t, 100, cfg.Fee.FeePercentage)
}

func TestInitializeAdminValidation(t *testing.T) {
	st, err := state.NewManager(storage.NewMemDB())
	require.NoError(t, err)
	engine := NewEngine(st)

	require.ErrorIs(t, engine.InitializeAdmin([20]byte{}, 1, feeWallet, false, nil), ErrInvalidAdmin)
	require.ErrorIs(t, engine.InitializeAdmin(adminAddr, FeeDenominator+1, feeWallet, false, nil), ErrInvalidFeePercentage)
	require.ErrorIs(t, engine.InitializeAdmin(adminAddr, 1, [20]byte{}, false, nil), ErrInvalidAddress)

	_, err = engine.Stats()
	require.ErrorIs(t, err, ErrAdminNotInitialized)
}

func TestVaultDepositRefundedOnClose(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetVaultDeposit(nativeAsset, 5)
	require.NoError(t, env.engine.Credit(makerAddr, nativeAsset, 5))

	offer := env.createOffer(t, 1)
	require.Zero(t, env.balance(t, makerAddr, nativeAsset))

	_, err := env.engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, OfferID: 2, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 1, ExpectedTotalAmount: 1, Deadline: testNow + 10,
	})
	require.ErrorIs(t, err, bank.ErrInsufficientBalance)

	res, err := env.engine.CancelOffer(makerAddr, offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 5, res.Deposit)
	require.EqualValues(t, 5, env.balance(t, makerAddr, nativeAsset))
}

func TestPausedModuleRefusesNewActivity(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)
	pauses := nativecommon.NewPauses(ModuleName)
	env.engine.SetPauses(pauses)

	_, err := env.engine.FillOffer(takerAddr, offer.Address, 1)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	_, err = env.engine.CreateOffer(CreateOfferParams{Maker: makerAddr, OfferID: 2})
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	_, err = env.engine.CancelOffer(makerAddr, offer.Address)
	require.NoError(t, err)
}

func TestMakerQuotaLimitsCreation(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetMakerQuota(nativecommon.Quota{MaxCountPerEpoch: 2, EpochSeconds: 3_600})

	env.createOffer(t, 1)
	env.createOffer(t, 2)
	_, err := env.engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, OfferID: 3, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 1_000, ExpectedTotalAmount: 2_000, Deadline: testNow + 3_600,
	})
	require.ErrorIs(t, err, ErrMakerQuota)
	require.Equal(t, uint64(8_000), env.balance(t, makerAddr, inputAsset))

	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.TotalOffers)

	env.setNow(testNow + 3_600)
	_, err = env.engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, OfferID: 3, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 1_000, ExpectedTotalAmount: 2_000, Deadline: testNow + 7_200,
	})
	require.NoError(t, err)
}

func TestConservationAcrossFills(t *testing.T) {
	env := newTestEnv(t)
	offer, err := env.engine.CreateOffer(CreateOfferParams{
		Maker: makerAddr, OfferID: 1, InputAsset: inputAsset, OutputAsset: outputAsset,
		TokenAmount: 997, ExpectedTotalAmount: 3_001, Deadline: testNow + 10,
	})
	require.NoError(t, err)

	var taken, paidToMaker, fees uint64
	for _, amount := range []uint64{1, 13, 250, 99, 400, 3} {
		res, err := env.engine.FillOffer(takerAddr, offer.Address, amount)
		require.NoError(t, err)
		taken += res.InputAmount
		paidToMaker += res.PaymentAmount
		fees += res.FeeAmount
		require.Equal(t, res.ExpectedPayment, res.PaymentAmount+res.FeeAmount)

		stored, err := env.engine.Offer(offer.Address)
		require.NoError(t, err)
		vault, err := env.engine.VaultBalance(offer.Address)
		require.NoError(t, err)
		require.Equal(t, stored.TokenAmountRemaining, vault)
		require.Equal(t, offer.TokenAmount, stored.TokenAmountRemaining+taken)
		require.Equal(t, paidToMaker, stored.ExpectedFulfilledAmount)
	}
	require.Equal(t, taken, env.balance(t, takerAddr, inputAsset))
	require.Equal(t, paidToMaker, env.balance(t, makerAddr, outputAsset))
	require.Equal(t, fees, env.balance(t, feeWallet, outputAsset))
}

func TestConcurrentFillsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	offer := env.createOffer(t, 1)

	const workers = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		filled   uint64
		rejected int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := env.engine.FillOffer(takerAddr, offer.Address, 30)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				filled += res.InputAmount
			case errors.Is(err, ErrInsufficientAmount), errors.Is(err, ErrInvalidOfferStatus):
				rejected++
			default:
				t.Errorf("unexpected fill error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 990, filled)
	require.Equal(t, workers-33, rejected)
	vault, err := env.engine.VaultBalance(offer.Address)
	require.NoError(t, err)
	require.EqualValues(t, 10, vault)
}

func TestConcurrentCreatesKeepStatsConsistent(t *testing.T) {
	env := newTestEnv(t)
	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id uint64) {
			defer wg.Done()
			_, err := env.engine.CreateOffer(CreateOfferParams{
				Maker: makerAddr, OfferID: id, InputAsset: inputAsset, OutputAsset: outputAsset,
				TokenAmount: 10, ExpectedTotalAmount: 10, Deadline: testNow + 10,
			})
			if err != nil {
				t.Errorf("create %d: %v", id, err)
			}
		}(uint64(i))
	}
	wg.Wait()

	stats, err := env.engine.Stats()
	require.NoError(t, err)
	require.EqualValues(t, workers, stats.TotalOffers)
	require.EqualValues(t, workers, stats.ActiveOffers)
	open, err := env.engine.OpenOffers()
	require.NoError(t, err)
	require.Len(t, open, workers)
}

func TestApplyGenesisRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	allocs := []GenesisAllocation{
		{Account: otherAddr, Asset: inputAsset, Amount: 500},
		{Account: otherAddr, Asset: outputAsset, Amount: 7},
	}
	before, err := env.engine.Balance(otherAddr, outputAsset)
	require.NoError(t, err)

	applied, err := env.engine.ApplyGenesis(allocs)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = env.engine.ApplyGenesis(allocs)
	require.NoError(t, err)
	require.False(t, applied)

	in, err := env.engine.Balance(otherAddr, inputAsset)
	require.NoError(t, err)
	require.Equal(t, uint64(500), in)
	out, err := env.engine.Balance(otherAddr, outputAsset)
	require.NoError(t, err)
	require.Equal(t, before+7, out)
}
