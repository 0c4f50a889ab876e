package server

import (
	"time"

	"otcswap/crypto"
	"otcswap/native/otc"
	"otcswap/services/otcd/indexer"
)

type offerView struct {
	Address                 string `json:"address"`
	OfferID                 uint64 `json:"offerId"`
	Maker                   string `json:"maker"`
	Vault                   string `json:"vault"`
	InputAsset              string `json:"inputAsset"`
	OutputAsset             string `json:"outputAsset"`
	TokenAmount             uint64 `json:"tokenAmount"`
	TokenAmountRemaining    uint64 `json:"tokenAmountRemaining"`
	ExpectedTotalAmount     uint64 `json:"expectedTotalAmount"`
	ExpectedFulfilledAmount uint64 `json:"expectedFulfilledAmount"`
	Price                   string `json:"price"`
	Deadline                int64  `json:"deadline"`
	FeePercentage           uint64 `json:"feePercentage"`
	FeeWallet               string `json:"feeWallet"`
	RequireWhitelist        bool   `json:"requireWhitelist"`
	Status                  string `json:"status"`
	CreatedAt               int64  `json:"createdAt"`
	UpdatedAt               int64  `json:"updatedAt"`
}

func newOfferView(o *otc.Offer) offerView {
	return offerView{
		Address:                 crypto.FormatAccount(o.Address),
		OfferID:                 o.OfferID,
		Maker:                   crypto.FormatAccount(o.Maker),
		Vault:                   crypto.FormatAccount(o.Vault),
		InputAsset:              crypto.FormatAsset(o.InputAsset),
		OutputAsset:             crypto.FormatAsset(o.OutputAsset),
		TokenAmount:             o.TokenAmount,
		TokenAmountRemaining:    o.TokenAmountRemaining,
		ExpectedTotalAmount:     o.ExpectedTotalAmount,
		ExpectedFulfilledAmount: o.ExpectedFulfilledAmount,
		Price:                   otc.Price(o).String(),
		Deadline:                o.Deadline,
		FeePercentage:           o.FeePercentage,
		FeeWallet:               crypto.FormatAccount(o.FeeWallet),
		RequireWhitelist:        o.RequireWhitelist,
		Status:                  o.Status.String(),
		CreatedAt:               o.CreatedAt,
		UpdatedAt:               o.UpdatedAt,
	}
}

type fillView struct {
	Offer           string `json:"offer"`
	Taker           string `json:"taker"`
	InputAmount     uint64 `json:"inputAmount"`
	ExpectedPayment uint64 `json:"expectedPayment"`
	FeeAmount       uint64 `json:"feeAmount"`
	PaymentAmount   uint64 `json:"paymentAmount"`
	Remaining       uint64 `json:"remaining"`
	Completed       bool   `json:"completed"`
}

func newFillView(res *otc.FillResult) fillView {
	return fillView{
		Offer:           crypto.FormatAccount(res.Offer),
		Taker:           crypto.FormatAccount(res.Taker),
		InputAmount:     res.InputAmount,
		ExpectedPayment: res.ExpectedPayment,
		FeeAmount:       res.FeeAmount,
		PaymentAmount:   res.PaymentAmount,
		Remaining:       res.Remaining,
		Completed:       res.Completed,
	}
}

type cancelView struct {
	Offer    string `json:"offer"`
	Refunded uint64 `json:"refunded"`
	Deposit  uint64 `json:"deposit"`
	Reason   string `json:"reason"`
}

type whitelistView struct {
	Offer  string   `json:"offer"`
	Maker  string   `json:"maker"`
	Takers []string `json:"takers"`
}

func newWhitelistView(wl *otc.Whitelist) whitelistView {
	return whitelistView{
		Offer:  crypto.FormatAccount(wl.Offer),
		Maker:  crypto.FormatAccount(wl.Maker),
		Takers: formatAccounts(wl.Takers),
	}
}

type statsView struct {
	Admin           string `json:"admin"`
	TotalOffers     uint64 `json:"totalOffers"`
	ActiveOffers    uint64 `json:"activeOffers"`
	CompletedOffers uint64 `json:"completedOffers"`
	CancelledOffers uint64 `json:"cancelledOffers"`
	ExpiredOffers   uint64 `json:"expiredOffers"`
	LastExpiryCheck int64  `json:"lastExpiryCheck"`
}

func newStatsView(admin [20]byte, st otc.Stats) statsView {
	return statsView{
		Admin:           crypto.FormatAccount(admin),
		TotalOffers:     st.TotalOffers,
		ActiveOffers:    st.ActiveOffers,
		CompletedOffers: st.CompletedOffers,
		CancelledOffers: st.CancelledOffers,
		ExpiredOffers:   st.ExpiredOffers,
		LastExpiryCheck: st.LastExpiryCheck,
	}
}

type configView struct {
	Admin            string    `json:"admin"`
	FeePercentage    uint64    `json:"feePercentage"`
	FeeWallet        string    `json:"feeWallet"`
	RequireWhitelist bool      `json:"requireWhitelist"`
	Mints            []string  `json:"mints"`
	Stats            statsView `json:"stats"`
}

func newConfigView(cfg *otc.GlobalConfig) configView {
	mints := make([]string, len(cfg.Mints))
	for i, m := range cfg.Mints {
		mints[i] = crypto.FormatAsset(m)
	}
	return configView{
		Admin:            crypto.FormatAccount(cfg.Admin),
		FeePercentage:    cfg.Fee.FeePercentage,
		FeeWallet:        crypto.FormatAccount(cfg.Fee.FeeAddress),
		RequireWhitelist: cfg.RequireWhitelist,
		Mints:            mints,
		Stats:            newStatsView(cfg.Admin, cfg.Stats),
	}
}

type indexedFillView struct {
	ID            string    `json:"id"`
	Taker         string    `json:"taker"`
	InputAmount   uint64    `json:"inputAmount"`
	PaymentAmount uint64    `json:"paymentAmount"`
	FeeAmount     uint64    `json:"feeAmount"`
	Remaining     uint64    `json:"remaining"`
	SettledAt     time.Time `json:"settledAt"`
}

func newIndexedFillView(f indexer.Fill) indexedFillView {
	return indexedFillView{
		ID:            f.ID.String(),
		Taker:         hexToAccount(f.Taker),
		InputAmount:   f.InputAmount,
		PaymentAmount: f.PaymentAmount,
		FeeAmount:     f.FeeAmount,
		Remaining:     f.Remaining,
		SettledAt:     f.CreatedAt,
	}
}

func formatAccounts(addrs [][20]byte) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = crypto.FormatAccount(a)
	}
	return out
}

func hexToAccount(hex string) string {
	addr, err := crypto.ParseAddress(hex)
	if err != nil {
		return hex
	}
	return crypto.FormatAccount(addr)
}
