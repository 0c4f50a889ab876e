package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaCountExceeded   = errors.New("quota count exceeded")
	ErrQuotaVolumeExceeded  = errors.New("quota volume exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// QuotaNow captures the usage counters of one address in the current epoch.
type QuotaNow struct {
	Count   uint32
	Volume  uint64
	EpochID uint64
}

// Quota defines the per-address limits enforced within an epoch window. A
// zero limit disables that dimension.
type Quota struct {
	MaxCountPerEpoch  uint32
	MaxVolumePerEpoch uint64
	EpochSeconds      uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.EpochSeconds > 0 && (q.MaxCountPerEpoch > 0 || q.MaxVolumePerEpoch > 0)
}

// Epoch maps a unix timestamp onto the quota window it falls in.
func (q Quota) Epoch(now int64) uint64 {
	if q.EpochSeconds == 0 || now < 0 {
		return 0
	}
	return uint64(now) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional count and volume fit within the
// configured quota. The returned QuotaNow reflects the updated counters when
// the quota is not exceeded; on denial prev is returned unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addCount uint32, addVolume uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addCount > 0 {
		if next.Count > math.MaxUint32-addCount {
			return prev, ErrQuotaCounterOverflow
		}
		next.Count += addCount
	}
	if q.MaxCountPerEpoch > 0 && next.Count > q.MaxCountPerEpoch {
		return prev, ErrQuotaCountExceeded
	}

	if addVolume > 0 {
		if next.Volume > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.Volume += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.Volume > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}
