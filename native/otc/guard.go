package otc

// requireAdmin rejects callers other than the configured admin.
func requireAdmin(cfg *AdminConfig, caller [20]byte) error {
	if cfg == nil {
		return ErrAdminNotInitialized
	}
	if caller == ([20]byte{}) || cfg.Admin != caller {
		return ErrUnauthorizedAdmin
	}
	return nil
}

func requireMaker(offer *Offer, caller [20]byte) error {
	if offer.Maker != caller {
		return ErrUnauthorizedMaker
	}
	return nil
}

// authorizeTaker applies the offer's allow-list when the offer was created
// whitelist-gated.
func authorizeTaker(offer *Offer, wl *Whitelist, taker [20]byte) error {
	if taker == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if !offer.RequireWhitelist {
		return nil
	}
	if !wl.Contains(taker) {
		return ErrTakerNotWhitelisted
	}
	return nil
}

// authorizeCancel lets the maker cancel at any time and anyone else only once
// the deadline has passed.
func authorizeCancel(offer *Offer, caller [20]byte, now int64) error {
	if caller == offer.Maker {
		return nil
	}
	if now > offer.Deadline {
		return nil
	}
	return ErrCannotCancelOffer
}

func mintAllowed(mints [][20]byte, mint [20]byte) bool {
	for _, m := range mints {
		if m == mint {
			return true
		}
	}
	return false
}
