package otc

import (
	"otcswap/core/types"
	"otcswap/native/bank"
)

// Offer returns the stored offer, including terminal tombstones.
func (e *Engine) Offer(addr [20]byte) (*Offer, error) {
	var offer *Offer
	err := e.view(func(s store) error {
		var err error
		offer, err = s.offer(addr)
		return err
	})
	return offer, err
}

// OfferByID resolves a maker's offer by the id it was created with.
func (e *Engine) OfferByID(maker [20]byte, offerID uint64) (*Offer, error) {
	return e.Offer(OfferAddress(maker, offerID))
}

// Whitelist returns the offer's allow-list. Closed offers have none.
func (e *Engine) Whitelist(addr [20]byte) (*Whitelist, error) {
	var wl *Whitelist
	err := e.view(func(s store) error {
		if _, err := s.offer(addr); err != nil {
			return err
		}
		var err error
		wl, err = s.whitelist(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	if wl == nil {
		wl = &Whitelist{Offer: addr}
	}
	return wl, nil
}

// FeeSnapshot returns the fee terms copied into the offer at creation, or nil
// once the offer has closed.
func (e *Engine) FeeSnapshot(addr [20]byte) (*FeeConfig, error) {
	var fee *FeeConfig
	err := e.view(func(s store) error {
		var err error
		fee, err = s.feeSnapshot(addr)
		return err
	})
	return fee, err
}

// VaultBalance returns the custody balance of the offer's vault. Closed vaults
// report zero.
func (e *Engine) VaultBalance(addr [20]byte) (uint64, error) {
	var balance uint64
	err := e.view(func(s store) error {
		offer, err := s.offer(addr)
		if err != nil {
			return err
		}
		balance, err = s.tx.Balance(offer.Vault, offer.InputAsset)
		return err
	})
	return balance, err
}

// Stats returns the admin configuration and counters.
func (e *Engine) Stats() (*AdminConfig, error) {
	var cfg *AdminConfig
	err := e.view(func(s store) error {
		var err error
		cfg, err = s.adminConfig()
		return err
	})
	return cfg, err
}

// GlobalConfig returns a consistent snapshot of every protocol-wide record.
func (e *Engine) GlobalConfig() (*GlobalConfig, error) {
	var out *GlobalConfig
	err := e.view(func(s store) error {
		cfg, err := s.adminConfig()
		if err != nil {
			return err
		}
		fee, err := s.feeConfig()
		if err != nil {
			return err
		}
		required, err := s.requireWhitelist()
		if err != nil {
			return err
		}
		mints, err := s.mints()
		if err != nil {
			return err
		}
		out = &GlobalConfig{
			Admin:            cfg.Admin,
			Fee:              *fee,
			RequireWhitelist: required,
			Mints:            mints,
			Stats:            cfg.Stats,
		}
		return nil
	})
	return out, err
}

// OpenOffers lists the offers still accepting fills.
func (e *Engine) OpenOffers() ([]*Offer, error) {
	return e.OffersWithStatus(OfferOngoing)
}

// OffersWithStatus lists the offers holding custody whose status is one of
// statuses. Only ongoing and expired offers hold custody, so other statuses
// always yield an empty list.
func (e *Engine) OffersWithStatus(statuses ...OfferStatus) ([]*Offer, error) {
	out := make([]*Offer, 0)
	err := e.view(func(s store) error {
		addrs, err := s.custodyOffers()
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			offer, err := s.offer(addr)
			if err != nil {
				return err
			}
			for _, status := range statuses {
				if offer.Status == status {
					out = append(out, offer)
					break
				}
			}
		}
		return nil
	})
	return out, err
}

// Balance returns an account's ledger balance of asset.
func (e *Engine) Balance(account, asset [20]byte) (uint64, error) {
	return e.state.Balance(account, asset)
}

// Credit funds an account outside the offer lifecycle. It backs genesis
// allocations and test fixtures.
func (e *Engine) Credit(account, asset [20]byte, amount uint64) error {
	return e.update(func(s store) ([]*types.Event, error) {
		return nil, bank.Credit(s.tx, account, asset, amount)
	})
}

// CustodyEntry pairs an offer whose vault is still open with its balance.
type CustodyEntry struct {
	Offer        *Offer
	VaultBalance uint64
}

// CustodySnapshot reads every offer with an open vault, including expired
// offers awaiting reclaim, and its balance in one consistent view.
func (e *Engine) CustodySnapshot() ([]CustodyEntry, error) {
	var out []CustodyEntry
	err := e.view(func(s store) error {
		addrs, err := s.custodyOffers()
		if err != nil {
			return err
		}
		out = make([]CustodyEntry, 0, len(addrs))
		for _, addr := range addrs {
			offer, err := s.offer(addr)
			if err != nil {
				return err
			}
			balance, err := s.tx.Balance(offer.Vault, offer.InputAsset)
			if err != nil {
				return err
			}
			out = append(out, CustodyEntry{Offer: offer, VaultBalance: balance})
		}
		return nil
	})
	return out, err
}
