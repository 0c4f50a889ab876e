package otc

import (
	"fmt"

	"otcswap/core/state"
	nativecommon "otcswap/native/common"
)

// The RLP codec has no signed integers, so timestamps are persisted as
// uint64 and converted at the boundary.

type storedOffer struct {
	Address                 [20]byte
	OfferID                 uint64
	Maker                   [20]byte
	Vault                   [20]byte
	InputAsset              [20]byte
	OutputAsset             [20]byte
	TokenAmount             uint64
	TokenAmountRemaining    uint64
	ExpectedTotalAmount     uint64
	ExpectedFulfilledAmount uint64
	Deadline                uint64
	FeePercentage           uint64
	FeeWallet               [20]byte
	RequireWhitelist        bool
	Status                  uint8
	CreatedAt               uint64
	UpdatedAt               uint64
}

func newStoredOffer(o *Offer) storedOffer {
	return storedOffer{
		Address:                 o.Address,
		OfferID:                 o.OfferID,
		Maker:                   o.Maker,
		Vault:                   o.Vault,
		InputAsset:              o.InputAsset,
		OutputAsset:             o.OutputAsset,
		TokenAmount:             o.TokenAmount,
		TokenAmountRemaining:    o.TokenAmountRemaining,
		ExpectedTotalAmount:     o.ExpectedTotalAmount,
		ExpectedFulfilledAmount: o.ExpectedFulfilledAmount,
		Deadline:                uint64(o.Deadline),
		FeePercentage:           o.FeePercentage,
		FeeWallet:               o.FeeWallet,
		RequireWhitelist:        o.RequireWhitelist,
		Status:                  uint8(o.Status),
		CreatedAt:               uint64(o.CreatedAt),
		UpdatedAt:               uint64(o.UpdatedAt),
	}
}

func (s storedOffer) offer() *Offer {
	return &Offer{
		Address:                 s.Address,
		OfferID:                 s.OfferID,
		Maker:                   s.Maker,
		Vault:                   s.Vault,
		InputAsset:              s.InputAsset,
		OutputAsset:             s.OutputAsset,
		TokenAmount:             s.TokenAmount,
		TokenAmountRemaining:    s.TokenAmountRemaining,
		ExpectedTotalAmount:     s.ExpectedTotalAmount,
		ExpectedFulfilledAmount: s.ExpectedFulfilledAmount,
		Deadline:                int64(s.Deadline),
		FeePercentage:           s.FeePercentage,
		FeeWallet:               s.FeeWallet,
		RequireWhitelist:        s.RequireWhitelist,
		Status:                  OfferStatus(s.Status),
		CreatedAt:               int64(s.CreatedAt),
		UpdatedAt:               int64(s.UpdatedAt),
	}
}

type storedAdminConfig struct {
	Admin           [20]byte
	TotalOffers     uint64
	ActiveOffers    uint64
	CompletedOffers uint64
	CancelledOffers uint64
	ExpiredOffers   uint64
	LastExpiryCheck uint64
}

type storedQuota struct {
	Count   uint32
	Volume  uint64
	EpochID uint64
}

type storedWhitelistConfig struct {
	RequireWhitelist bool
}

type addressList struct {
	Entries [][20]byte
}

// store adapts a ledger transaction to the OTC record layout.
type store struct {
	tx *state.Tx
}

func (s store) offer(addr [20]byte) (*Offer, error) {
	var rec storedOffer
	ok, err := s.tx.KVGet(offerKey(addr), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	offer := rec.offer()
	if !offer.Status.Valid() {
		return nil, fmt.Errorf("otc: offer %x has unknown status %d", addr, rec.Status)
	}
	return offer, nil
}

func (s store) offerExists(addr [20]byte) (bool, error) {
	return s.tx.KVGet(offerKey(addr), nil)
}

func (s store) putOffer(o *Offer) error {
	return s.tx.KVPut(offerKey(o.Address), newStoredOffer(o))
}

func (s store) whitelist(offer [20]byte) (*Whitelist, error) {
	var wl Whitelist
	ok, err := s.tx.KVGet(whitelistKey(offer), &wl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &wl, nil
}

func (s store) putWhitelist(wl *Whitelist) error {
	return s.tx.KVPut(whitelistKey(wl.Offer), wl)
}

func (s store) deleteWhitelist(offer [20]byte) error {
	return s.tx.KVDelete(whitelistKey(offer))
}

func (s store) feeSnapshot(offer [20]byte) (*FeeConfig, error) {
	var fee FeeConfig
	ok, err := s.tx.KVGet(feeSnapshotKey(offer), &fee)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &fee, nil
}

func (s store) putFeeSnapshot(offer [20]byte, fee FeeConfig) error {
	return s.tx.KVPut(feeSnapshotKey(offer), fee)
}

func (s store) deleteFeeSnapshot(offer [20]byte) error {
	return s.tx.KVDelete(feeSnapshotKey(offer))
}

func (s store) adminConfig() (*AdminConfig, error) {
	var rec storedAdminConfig
	ok, err := s.tx.KVGet(adminConfigKey, &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAdminNotInitialized
	}
	return &AdminConfig{
		Admin: rec.Admin,
		Stats: Stats{
			TotalOffers:     rec.TotalOffers,
			ActiveOffers:    rec.ActiveOffers,
			CompletedOffers: rec.CompletedOffers,
			CancelledOffers: rec.CancelledOffers,
			ExpiredOffers:   rec.ExpiredOffers,
			LastExpiryCheck: int64(rec.LastExpiryCheck),
		},
	}, nil
}

func (s store) putAdminConfig(cfg *AdminConfig) error {
	return s.tx.KVPut(adminConfigKey, storedAdminConfig{
		Admin:           cfg.Admin,
		TotalOffers:     cfg.TotalOffers,
		ActiveOffers:    cfg.ActiveOffers,
		CompletedOffers: cfg.CompletedOffers,
		CancelledOffers: cfg.CancelledOffers,
		ExpiredOffers:   cfg.ExpiredOffers,
		LastExpiryCheck: uint64(cfg.LastExpiryCheck),
	})
}

func (s store) makerQuota(maker [20]byte) (nativecommon.QuotaNow, error) {
	var rec storedQuota
	if _, err := s.tx.KVGet(makerQuotaKey(maker), &rec); err != nil {
		return nativecommon.QuotaNow{}, err
	}
	return nativecommon.QuotaNow{Count: rec.Count, Volume: rec.Volume, EpochID: rec.EpochID}, nil
}

func (s store) putMakerQuota(maker [20]byte, q nativecommon.QuotaNow) error {
	return s.tx.KVPut(makerQuotaKey(maker), storedQuota{Count: q.Count, Volume: q.Volume, EpochID: q.EpochID})
}

func (s store) feeConfig() (*FeeConfig, error) {
	var fee FeeConfig
	ok, err := s.tx.KVGet(feeConfigKey, &fee)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFeeConfigNotInitialized
	}
	return &fee, nil
}

func (s store) putFeeConfig(fee FeeConfig) error {
	return s.tx.KVPut(feeConfigKey, fee)
}

func (s store) requireWhitelist() (bool, error) {
	var rec storedWhitelistConfig
	if _, err := s.tx.KVGet(whitelistConfigKey, &rec); err != nil {
		return false, err
	}
	return rec.RequireWhitelist, nil
}

func (s store) putRequireWhitelist(required bool) error {
	return s.tx.KVPut(whitelistConfigKey, storedWhitelistConfig{RequireWhitelist: required})
}

func (s store) mints() ([][20]byte, error) {
	var list addressList
	if _, err := s.tx.KVGet(mintWhitelistKey, &list); err != nil {
		return nil, err
	}
	return list.Entries, nil
}

func (s store) putMints(mints [][20]byte) error {
	return s.tx.KVPut(mintWhitelistKey, addressList{Entries: mints})
}

// custodyOffers lists every offer whose vault is still open: ongoing offers
// and expired ones the maker has not reclaimed yet.
func (s store) custodyOffers() ([][20]byte, error) {
	var list addressList
	if _, err := s.tx.KVGet(custodyOffersKey, &list); err != nil {
		return nil, err
	}
	return list.Entries, nil
}

func (s store) trackCustody(offer [20]byte) error {
	tracked, err := s.custodyOffers()
	if err != nil {
		return err
	}
	tracked = append(tracked, offer)
	return s.tx.KVPut(custodyOffersKey, addressList{Entries: tracked})
}

func (s store) untrackCustody(offer [20]byte) error {
	tracked, err := s.custodyOffers()
	if err != nil {
		return err
	}
	filtered := tracked[:0]
	for _, addr := range tracked {
		if addr != offer {
			filtered = append(filtered, addr)
		}
	}
	return s.tx.KVPut(custodyOffersKey, addressList{Entries: filtered})
}
