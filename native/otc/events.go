package otc

import (
	"encoding/hex"
	"strconv"
	"strings"

	"otcswap/core/types"
)

const (
	EventTypeAdminInitialized            = "otc.admin.initialized"
	EventTypeFeeUpdated                  = "otc.admin.fee_updated"
	EventTypeFeeWalletUpdated            = "otc.admin.fee_wallet_updated"
	EventTypeWhitelistRequirementToggled = "otc.admin.whitelist_toggled"
	EventTypeMintsAdded                  = "otc.admin.mints_added"
	EventTypeMintsRemoved                = "otc.admin.mints_removed"
	EventTypeOfferCreated                = "otc.offer.created"
	EventTypeOfferTaken                  = "otc.offer.taken"
	EventTypeOfferCancelled              = "otc.offer.cancelled"
	EventTypeOfferExpired                = "otc.offer.expired"
	EventTypeTakersUpdated               = "otc.offer.takers_updated"
)

// Attribute keys shared by the offer events.
const (
	AttrOffer           = "offer"
	AttrOfferID         = "offerId"
	AttrMaker           = "maker"
	AttrTaker           = "taker"
	AttrInputAsset      = "inputAsset"
	AttrOutputAsset     = "outputAsset"
	AttrTokenAmount     = "tokenAmount"
	AttrExpectedAmount  = "expectedAmount"
	AttrDeadline        = "deadline"
	AttrFeePercentage   = "feePercentage"
	AttrInputAmount     = "inputAmount"
	AttrPaymentAmount   = "paymentAmount"
	AttrFeeAmount       = "feeAmount"
	AttrRemainingAmount = "remainingAmount"
	AttrStatus          = "status"
	AttrReason          = "reason"
	AttrTimestamp       = "timestamp"
	AttrTakers          = "takers"
)

type otcEvent struct {
	evt *types.Event
}

func (e otcEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e otcEvent) Event() *types.Event { return e.evt }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func joinAddrs(addrs [][20]byte) string {
	parts := make([]string, len(addrs))
	for i, addr := range addrs {
		parts[i] = hexAddr(addr)
	}
	return strings.Join(parts, ",")
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func offerAttributes(o *Offer) map[string]string {
	return map[string]string{
		AttrOffer:       hexAddr(o.Address),
		AttrOfferID:     u64(o.OfferID),
		AttrMaker:       hexAddr(o.Maker),
		AttrInputAsset:  hexAddr(o.InputAsset),
		AttrOutputAsset: hexAddr(o.OutputAsset),
		AttrStatus:      o.Status.String(),
	}
}

// NewOfferCreatedEvent returns the payload emitted once an offer is funded
// and open for fills.
func NewOfferCreatedEvent(o *Offer) *types.Event {
	attrs := offerAttributes(o)
	attrs[AttrTokenAmount] = u64(o.TokenAmount)
	attrs[AttrExpectedAmount] = u64(o.ExpectedTotalAmount)
	attrs[AttrDeadline] = strconv.FormatInt(o.Deadline, 10)
	attrs[AttrFeePercentage] = u64(o.FeePercentage)
	return &types.Event{Type: EventTypeOfferCreated, Attributes: attrs}
}

// NewOfferTakenEvent returns the payload for a settled fill.
func NewOfferTakenEvent(o *Offer, res *FillResult) *types.Event {
	attrs := offerAttributes(o)
	attrs[AttrTaker] = hexAddr(res.Taker)
	attrs[AttrInputAmount] = u64(res.InputAmount)
	attrs[AttrPaymentAmount] = u64(res.PaymentAmount)
	attrs[AttrFeeAmount] = u64(res.FeeAmount)
	attrs[AttrRemainingAmount] = u64(res.Remaining)
	return &types.Event{Type: EventTypeOfferTaken, Attributes: attrs}
}

func NewOfferCancelledEvent(o *Offer, res *CancelResult, ts int64) *types.Event {
	attrs := offerAttributes(o)
	attrs[AttrTokenAmount] = u64(res.Refunded)
	attrs[AttrReason] = string(res.Reason)
	attrs[AttrTimestamp] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: attrs}
}

func NewOfferExpiredEvent(o *Offer, ts int64) *types.Event {
	attrs := offerAttributes(o)
	attrs[AttrRemainingAmount] = u64(o.TokenAmountRemaining)
	attrs[AttrTimestamp] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeOfferExpired, Attributes: attrs}
}

func NewTakersUpdatedEvent(o *Offer, wl *Whitelist) *types.Event {
	attrs := offerAttributes(o)
	attrs[AttrTakers] = joinAddrs(wl.Takers)
	return &types.Event{Type: EventTypeTakersUpdated, Attributes: attrs}
}

func NewAdminInitializedEvent(admin [20]byte, fee FeeConfig, requireWhitelist bool, mints [][20]byte) *types.Event {
	return &types.Event{Type: EventTypeAdminInitialized, Attributes: map[string]string{
		"admin":            hexAddr(admin),
		AttrFeePercentage:  u64(fee.FeePercentage),
		"feeWallet":        hexAddr(fee.FeeAddress),
		"requireWhitelist": strconv.FormatBool(requireWhitelist),
		"mints":            joinAddrs(mints),
	}}
}

func NewFeeUpdatedEvent(oldFee, newFee uint64) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"oldFee": u64(oldFee),
		"newFee": u64(newFee),
	}}
}

func NewFeeWalletUpdatedEvent(oldWallet, newWallet [20]byte) *types.Event {
	return &types.Event{Type: EventTypeFeeWalletUpdated, Attributes: map[string]string{
		"oldWallet": hexAddr(oldWallet),
		"newWallet": hexAddr(newWallet),
	}}
}

func NewWhitelistToggledEvent(required bool) *types.Event {
	return &types.Event{Type: EventTypeWhitelistRequirementToggled, Attributes: map[string]string{
		"requireWhitelist": strconv.FormatBool(required),
	}}
}

func NewMintsAddedEvent(mints [][20]byte) *types.Event {
	return &types.Event{Type: EventTypeMintsAdded, Attributes: map[string]string{"mints": joinAddrs(mints)}}
}

func NewMintsRemovedEvent(mints [][20]byte) *types.Event {
	return &types.Event{Type: EventTypeMintsRemoved, Attributes: map[string]string{"mints": joinAddrs(mints)}}
}
