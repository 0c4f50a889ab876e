package otc

import "fmt"

// newWhitelist builds the allow-list for an offer from the maker's initial
// takers.
func newWhitelist(offer, maker [20]byte, takers [][20]byte) (*Whitelist, error) {
	wl := &Whitelist{Offer: offer, Maker: maker}
	if err := wl.add(takers); err != nil {
		return nil, err
	}
	return wl, nil
}

func (w *Whitelist) add(takers [][20]byte) error {
	for _, taker := range takers {
		if taker == ([20]byte{}) {
			return ErrInvalidAddress
		}
		if w.Contains(taker) {
			return fmt.Errorf("%w: %x", ErrTakerAlreadyWhitelisted, taker)
		}
		if len(w.Takers) >= MaxWhitelistedTakers {
			return ErrWhitelistFull
		}
		w.Takers = append(w.Takers, taker)
	}
	return nil
}

func (w *Whitelist) remove(takers [][20]byte) error {
	for _, taker := range takers {
		idx := -1
		for i, existing := range w.Takers {
			if existing == taker {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %x", ErrTakerNotWhitelisted, taker)
		}
		w.Takers = append(w.Takers[:idx], w.Takers[idx+1:]...)
	}
	return nil
}

// Edit returns a copy of the allow-list with remove applied first and then
// add. The receiver is left untouched when any entry is rejected.
func (w *Whitelist) Edit(add, remove [][20]byte) (*Whitelist, error) {
	if len(add) == 0 && len(remove) == 0 {
		return nil, ErrEmptyTakersList
	}
	next := w.Clone()
	if err := next.remove(remove); err != nil {
		return nil, err
	}
	if err := next.add(add); err != nil {
		return nil, err
	}
	return next, nil
}
