package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"otcswap/crypto"
	"otcswap/native/otc"
)

type createOfferRequest struct {
	OfferID             uint64   `json:"offerId"`
	InputAsset          string   `json:"inputAsset"`
	OutputAsset         string   `json:"outputAsset"`
	TokenAmount         uint64   `json:"tokenAmount"`
	ExpectedTotalAmount uint64   `json:"expectedTotalAmount"`
	Deadline            int64    `json:"deadline"`
	Takers              []string `json:"takers,omitempty"`
}

// CreateOffer opens an offer for the authenticated maker.
func (s *Server) CreateOffer(w http.ResponseWriter, r *http.Request) {
	maker, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req createOfferRequest
	if !decode(w, r, &req) {
		return
	}
	input, ok := optionalAddress(w, "inputAsset", req.InputAsset)
	if !ok {
		return
	}
	output, ok := optionalAddress(w, "outputAsset", req.OutputAsset)
	if !ok {
		return
	}
	takers, ok := parseAddresses(w, "takers", req.Takers)
	if !ok {
		return
	}
	offer, err := s.engine.CreateOffer(otc.CreateOfferParams{
		Maker:               maker,
		OfferID:             req.OfferID,
		InputAsset:          input,
		OutputAsset:         output,
		TokenAmount:         req.TokenAmount,
		ExpectedTotalAmount: req.ExpectedTotalAmount,
		Deadline:            req.Deadline,
		InitialTakers:       takers,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("offer created",
		"offer", crypto.FormatAccount(offer.Address),
		"maker", crypto.FormatAccount(maker),
		"tokenAmount", offer.TokenAmount,
	)
	writeJSON(w, http.StatusCreated, newOfferView(offer))
}

// GetOffer returns an offer by address, including terminal ones.
func (s *Server) GetOffer(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "offer")
	if !ok {
		return
	}
	offer, err := s.engine.Offer(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

// GetOfferByID resolves an offer from the maker and the id it chose.
func (s *Server) GetOfferByID(w http.ResponseWriter, r *http.Request) {
	maker, ok := pathAddress(w, r, "maker")
	if !ok {
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid offer id")
		return
	}
	offer, err := s.engine.OfferByID(maker, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

// ListOpenOffers returns every offer still accepting fills. The status query
// parameter selects expired offers whose custody has not been reclaimed yet.
func (s *Server) ListOpenOffers(w http.ResponseWriter, r *http.Request) {
	status := otc.OfferOngoing
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := otc.ParseOfferStatus(raw)
		if !ok || (parsed != otc.OfferOngoing && parsed != otc.OfferExpired) {
			writeError(w, http.StatusBadRequest, "InvalidStatus", "status must be ongoing or expired")
			return
		}
		status = parsed
	}
	offers, err := s.engine.OffersWithStatus(status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]offerView, len(offers))
	for i, o := range offers {
		out[i] = newOfferView(o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": out})
}

type fillRequest struct {
	Amount uint64 `json:"amount"`
}

// FillOffer settles a fill for the authenticated taker.
func (s *Server) FillOffer(w http.ResponseWriter, r *http.Request) {
	taker, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "offer")
	if !ok {
		return
	}
	var req fillRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.FillOffer(taker, addr, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("offer taken",
		"offer", crypto.FormatAccount(addr),
		"taker", crypto.FormatAccount(taker),
		"inputAmount", res.InputAmount,
		"completed", res.Completed,
	)
	writeJSON(w, http.StatusOK, newFillView(res))
}

// CancelOffer refunds the vault to the maker.
func (s *Server) CancelOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "offer")
	if !ok {
		return
	}
	res, err := s.engine.CancelOffer(caller, addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelView{
		Offer:    crypto.FormatAccount(res.Offer),
		Refunded: res.Refunded,
		Deposit:  res.Deposit,
		Reason:   string(res.Reason),
	})
}

// MarkExpired moves an overdue offer to expired. Only the admin may call it.
func (s *Server) MarkExpired(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "offer")
	if !ok {
		return
	}
	if err := s.engine.MarkExpired(caller, addr); err != nil {
		s.fail(w, r, err)
		return
	}
	offer, err := s.engine.Offer(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

type whitelistRequest struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// EditWhitelist applies the maker's taker allow-list changes.
func (s *Server) EditWhitelist(w http.ResponseWriter, r *http.Request) {
	maker, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "offer")
	if !ok {
		return
	}
	var req whitelistRequest
	if !decode(w, r, &req) {
		return
	}
	add, ok := parseAddresses(w, "add", req.Add)
	if !ok {
		return
	}
	remove, ok := parseAddresses(w, "remove", req.Remove)
	if !ok {
		return
	}
	wl, err := s.engine.EditWhitelist(maker, addr, add, remove)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWhitelistView(wl))
}

func (s *Server) GetWhitelist(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "offer")
	if !ok {
		return
	}
	wl, err := s.engine.Whitelist(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWhitelistView(wl))
}

// ListFills returns the indexed fill history of an offer.
func (s *Server) ListFills(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "offer")
	if !ok {
		return
	}
	if s.fills == nil {
		writeError(w, http.StatusServiceUnavailable, "IndexerDisabled", "fill history requires the indexer")
		return
	}
	if _, err := s.engine.Offer(addr); err != nil {
		s.fail(w, r, err)
		return
	}
	fills, err := s.fills.FillsForOffer(r.Context(), addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]indexedFillView, len(fills))
	for i, f := range fills {
		out[i] = newIndexedFillView(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": out})
}

func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Stats()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatsView(cfg.Admin, cfg.Stats))
}

func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.GlobalConfig()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(cfg))
}

func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, r, "account")
	if !ok {
		return
	}
	asset, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	balance, err := s.engine.Balance(account, asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": crypto.FormatAccount(account),
		"asset":   crypto.FormatAsset(asset),
		"balance": balance,
	})
}
