package otc

import "strings"

const (
	// MaxWhitelistedTakers bounds the per-offer taker allow-list.
	MaxWhitelistedTakers = 50
	// MaxWhitelistedMints bounds the global asset allow-list.
	MaxWhitelistedMints = 50
	// FeeDenominator expresses fee_percentage in basis points.
	FeeDenominator = 10_000
)

// OfferStatus represents the lifecycle states of an escrow offer.
type OfferStatus uint8

const (
	OfferInitialized OfferStatus = iota
	OfferVaultInitialized
	OfferOngoing
	OfferCompleted
	OfferCancelled
	OfferExpired
)

var statusNames = map[OfferStatus]string{
	OfferInitialized:      "initialized",
	OfferVaultInitialized: "vault_initialized",
	OfferOngoing:          "ongoing",
	OfferCompleted:        "completed",
	OfferCancelled:        "cancelled",
	OfferExpired:          "expired",
}

// Valid reports whether the status value is within the supported range.
func (s OfferStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s OfferStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s OfferStatus) Terminal() bool {
	return s == OfferCompleted || s == OfferCancelled
}

// ParseOfferStatus converts a status name back to its value.
func ParseOfferStatus(name string) (OfferStatus, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for status, candidate := range statusNames {
		if candidate == trimmed {
			return status, true
		}
	}
	return 0, false
}

// Offer is the escrow record for one maker proposal. Address is derived from
// the maker and OfferID and doubles as the authority of the custody vault.
type Offer struct {
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
	Deadline                int64
	FeePercentage           uint64
	FeeWallet               [20]byte
	RequireWhitelist        bool
	Status                  OfferStatus
	CreatedAt               int64
	UpdatedAt               int64
}

// Clone returns a copy callers may mutate freely.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// Whitelist is the per-offer taker allow-list.
type Whitelist struct {
	Offer  [20]byte
	Maker  [20]byte
	Takers [][20]byte
}

// Contains reports whether taker is allowed.
func (w *Whitelist) Contains(taker [20]byte) bool {
	if w == nil {
		return false
	}
	for _, existing := range w.Takers {
		if existing == taker {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the allow-list.
func (w *Whitelist) Clone() *Whitelist {
	if w == nil {
		return nil
	}
	clone := *w
	clone.Takers = append([][20]byte(nil), w.Takers...)
	return &clone
}

// FeeConfig holds a fee rate in basis points and the wallet that receives it.
// The global value is copied into every offer at creation.
type FeeConfig struct {
	FeePercentage uint64
	FeeAddress    [20]byte
}

// Stats captures the protocol-wide offer counters.
type Stats struct {
	TotalOffers     uint64
	ActiveOffers    uint64
	CompletedOffers uint64
	CancelledOffers uint64
	ExpiredOffers   uint64
	LastExpiryCheck int64
}

// AdminConfig is the protocol singleton: the admin identity plus the offer
// statistics.
type AdminConfig struct {
	Admin [20]byte
	Stats
}

// GlobalConfig is a read-only snapshot of every protocol-wide record.
type GlobalConfig struct {
	Admin            [20]byte
	Fee              FeeConfig
	RequireWhitelist bool
	Mints            [][20]byte
	Stats            Stats
}

// CreateOfferParams describes a maker's proposal.
type CreateOfferParams struct {
	Maker               [20]byte
	OfferID             uint64
	InputAsset          [20]byte
	OutputAsset         [20]byte
	TokenAmount         uint64
	ExpectedTotalAmount uint64
	Deadline            int64
	// InitialTakers optionally seeds the allow-list. A non-empty list makes
	// the offer whitelist-gated even when the global flag is off.
	InitialTakers [][20]byte
}

// FillResult reports the settlement of one fill.
type FillResult struct {
	Offer           [20]byte
	Taker           [20]byte
	InputAmount     uint64
	ExpectedPayment uint64
	FeeAmount       uint64
	PaymentAmount   uint64
	Remaining       uint64
	Completed       bool
}

// CancelReason distinguishes a maker withdrawal from a post-deadline reclaim.
type CancelReason string

const (
	CancelReasonMaker   CancelReason = "maker_cancelled"
	CancelReasonExpired CancelReason = "expired"
)

// CancelResult reports what a cancellation returned to the maker.
type CancelResult struct {
	Offer    [20]byte
	Refunded uint64
	Deposit  uint64
	Reason   CancelReason
}
