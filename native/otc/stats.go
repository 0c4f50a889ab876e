package otc

import "math/bits"

func (s *Stats) counter(status OfferStatus) *uint64 {
	switch status {
	case OfferOngoing:
		return &s.ActiveOffers
	case OfferCompleted:
		return &s.CompletedOffers
	case OfferCancelled:
		return &s.CancelledOffers
	case OfferExpired:
		return &s.ExpiredOffers
	default:
		return nil
	}
}

func increment(v *uint64) error {
	next, carry := bits.Add64(*v, 1, 0)
	if carry != 0 {
		return ErrSequenceOverflow
	}
	*v = next
	return nil
}

// RecordCreated counts a newly created offer.
func (s *Stats) RecordCreated() error {
	return increment(&s.TotalOffers)
}

// Transition moves one offer from the counter of its previous status to the
// counter of its new status. The pre-active statuses have no counter.
func (s *Stats) Transition(from, to OfferStatus) error {
	if from == to {
		return nil
	}
	if prev := s.counter(from); prev != nil {
		if *prev == 0 {
			return ErrCalculationError
		}
		*prev--
	}
	if next := s.counter(to); next != nil {
		return increment(next)
	}
	return nil
}
