package otc

import (
	"errors"
	"fmt"

	"otcswap/core/types"
)

// InitializeAdmin bootstraps the protocol singletons. It succeeds exactly
// once.
func (e *Engine) InitializeAdmin(admin [20]byte, feePercentage uint64, feeWallet [20]byte, requireWhitelist bool, mints [][20]byte) error {
	if admin == ([20]byte{}) {
		return ErrInvalidAdmin
	}
	if feePercentage > FeeDenominator {
		return ErrInvalidFeePercentage
	}
	if feeWallet == ([20]byte{}) {
		return ErrInvalidAddress
	}
	initial, err := appendMints(nil, mints)
	if err != nil {
		return err
	}
	return e.update(func(s store) ([]*types.Event, error) {
		if _, err := s.adminConfig(); err == nil {
			return nil, ErrAdminAlreadyInitialized
		} else if !errors.Is(err, ErrAdminNotInitialized) {
			return nil, err
		}
		fee := FeeConfig{FeePercentage: feePercentage, FeeAddress: feeWallet}
		if err := s.putAdminConfig(&AdminConfig{Admin: admin}); err != nil {
			return nil, err
		}
		if err := s.putFeeConfig(fee); err != nil {
			return nil, err
		}
		if err := s.putRequireWhitelist(requireWhitelist); err != nil {
			return nil, err
		}
		if err := s.putMints(initial); err != nil {
			return nil, err
		}
		return []*types.Event{NewAdminInitializedEvent(admin, fee, requireWhitelist, initial)}, nil
	})
}

// UpdateFeePercentage changes the fee rate applied to offers created from now
// on. Existing offers keep their snapshot.
func (e *Engine) UpdateFeePercentage(admin [20]byte, feePercentage uint64) error {
	if feePercentage > FeeDenominator {
		return ErrInvalidFeePercentage
	}
	return e.updateAsAdmin(admin, func(s store) ([]*types.Event, error) {
		fee, err := s.feeConfig()
		if err != nil {
			return nil, err
		}
		old := fee.FeePercentage
		fee.FeePercentage = feePercentage
		if err := s.putFeeConfig(*fee); err != nil {
			return nil, err
		}
		return []*types.Event{NewFeeUpdatedEvent(old, feePercentage)}, nil
	})
}

// UpdateFeeAddress changes the wallet receiving fees for new offers.
func (e *Engine) UpdateFeeAddress(admin, wallet [20]byte) error {
	if wallet == ([20]byte{}) {
		return ErrInvalidAddress
	}
	return e.updateAsAdmin(admin, func(s store) ([]*types.Event, error) {
		fee, err := s.feeConfig()
		if err != nil {
			return nil, err
		}
		old := fee.FeeAddress
		fee.FeeAddress = wallet
		if err := s.putFeeConfig(*fee); err != nil {
			return nil, err
		}
		return []*types.Event{NewFeeWalletUpdatedEvent(old, wallet)}, nil
	})
}

// ToggleRequireWhitelist flips the global whitelist requirement and returns
// the new value.
func (e *Engine) ToggleRequireWhitelist(admin [20]byte) (bool, error) {
	var next bool
	err := e.updateAsAdmin(admin, func(s store) ([]*types.Event, error) {
		current, err := s.requireWhitelist()
		if err != nil {
			return nil, err
		}
		next = !current
		if err := s.putRequireWhitelist(next); err != nil {
			return nil, err
		}
		return []*types.Event{NewWhitelistToggledEvent(next)}, nil
	})
	return next, err
}

// AddMints extends the global asset allow-list.
func (e *Engine) AddMints(admin [20]byte, mints [][20]byte) error {
	if len(mints) == 0 {
		return ErrEmptyMintsList
	}
	return e.updateAsAdmin(admin, func(s store) ([]*types.Event, error) {
		current, err := s.mints()
		if err != nil {
			return nil, err
		}
		next, err := appendMints(current, mints)
		if err != nil {
			return nil, err
		}
		if err := s.putMints(next); err != nil {
			return nil, err
		}
		return []*types.Event{NewMintsAddedEvent(mints)}, nil
	})
}

// RemoveMints drops assets from the global allow-list. Offers already open
// are unaffected.
func (e *Engine) RemoveMints(admin [20]byte, mints [][20]byte) error {
	if len(mints) == 0 {
		return ErrEmptyMintsList
	}
	return e.updateAsAdmin(admin, func(s store) ([]*types.Event, error) {
		current, err := s.mints()
		if err != nil {
			return nil, err
		}
		next := append([][20]byte(nil), current...)
		for _, mint := range mints {
			idx := -1
			for i, existing := range next {
				if existing == mint {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("%w: %x", ErrMintNotWhitelisted, mint)
			}
			next = append(next[:idx], next[idx+1:]...)
		}
		if err := s.putMints(next); err != nil {
			return nil, err
		}
		return []*types.Event{NewMintsRemovedEvent(mints)}, nil
	})
}

func (e *Engine) updateAsAdmin(admin [20]byte, fn func(s store) ([]*types.Event, error)) error {
	return e.update(func(s store) ([]*types.Event, error) {
		cfg, err := s.adminConfig()
		if err != nil {
			return nil, err
		}
		if err := requireAdmin(cfg, admin); err != nil {
			return nil, err
		}
		return fn(s)
	})
}

func appendMints(current, add [][20]byte) ([][20]byte, error) {
	next := append([][20]byte(nil), current...)
	for _, mint := range add {
		if mint == ([20]byte{}) {
			return nil, ErrInvalidAddress
		}
		if mintAllowed(next, mint) {
			return nil, fmt.Errorf("%w: %x", ErrMintAlreadyWhitelisted, mint)
		}
		if len(next) >= MaxWhitelistedMints {
			return nil, ErrTooManyMints
		}
		next = append(next, mint)
	}
	return next, nil
}
