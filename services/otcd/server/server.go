package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otcswap/crypto"
	"otcswap/gateway/middleware"
	"otcswap/native/otc"
	"otcswap/observability"
	"otcswap/services/otcd/indexer"
)

// FillLister serves the per-offer fill history.
type FillLister interface {
	FillsForOffer(ctx context.Context, offer [20]byte) ([]indexer.Fill, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine        *otc.Engine
	Fills         FillLister
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Idempotency   *IdempotencyStore
	Logger        *slog.Logger
}

// Server exposes the escrow engine over JSON/HTTP.
type Server struct {
	engine  *otc.Engine
	fills   FillLister
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	idem    *IdempotencyStore
	logger  *slog.Logger

	router http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server: engine required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	srv := &Server{
		engine:  cfg.Engine,
		fills:   cfg.Fills,
		auth:    auth,
		limiter: cfg.RateLimiter,
		obs:     cfg.Observability,
		idem:    cfg.Idempotency,
		logger:  logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if s.obs != nil {
		r.Use(s.obs.Middleware)
	}
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware)
		}
		api.Get("/offers", s.ListOpenOffers)
		api.Get("/offers/{offer}", s.GetOffer)
		api.Get("/offers/{offer}/whitelist", s.GetWhitelist)
		api.Get("/offers/{offer}/fills", s.ListFills)
		api.Get("/makers/{maker}/offers/{id}", s.GetOfferByID)
		api.Get("/stats", s.GetStats)
		api.Get("/config", s.GetConfig)
		api.Get("/balances/{account}/{asset}", s.GetBalance)

		api.Group(func(signed chi.Router) {
			signed.Use(s.auth.Middleware())
			signed.Use(s.idempotent)
			signed.Post("/offers", s.CreateOffer)
			signed.Post("/offers/{offer}/fill", s.FillOffer)
			signed.Post("/offers/{offer}/cancel", s.CancelOffer)
			signed.Post("/offers/{offer}/expire", s.MarkExpired)
			signed.Patch("/offers/{offer}/whitelist", s.EditWhitelist)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.Middleware(middleware.ScopeAdmin))
			admin.Use(s.idempotent)
			admin.Post("/init", s.InitializeAdmin)
			admin.Put("/fee", s.UpdateFee)
			admin.Put("/fee-address", s.UpdateFeeAddress)
			admin.Post("/whitelist/toggle", s.ToggleWhitelist)
			admin.Post("/mints", s.AddMints)
			admin.Delete("/mints", s.RemoveMints)
			admin.Post("/expire-due", s.ExpireDue)
		})
	})
	return r
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	c, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing caller identity")
		return [20]byte{}, false
	}
	return c.Address, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid payload: "+err.Error())
		return false
	}
	return true
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) ([20]byte, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, otc.ErrInvalidAddress.Code, fmt.Sprintf("invalid %s address", param))
		return [20]byte{}, false
	}
	return addr, true
}

func parseAddresses(w http.ResponseWriter, field string, values []string) ([][20]byte, bool) {
	out := make([][20]byte, 0, len(values))
	for i, v := range values {
		addr, err := crypto.ParseAddress(strings.TrimSpace(v))
		if err != nil {
			writeError(w, http.StatusBadRequest, otc.ErrInvalidAddress.Code, fmt.Sprintf("%s[%d]: %v", field, i, err))
			return nil, false
		}
		out = append(out, addr)
	}
	return out, true
}

func optionalAddress(w http.ResponseWriter, field, value string) ([20]byte, bool) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, true
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, otc.ErrInvalidAddress.Code, fmt.Sprintf("%s: %v", field, err))
		return [20]byte{}, false
	}
	return addr, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	observability.ModuleMetrics().RecordError(routeOf(r), code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", routeOf(r), "code", code, "error", err)
	}
	detail := errorDetail{Code: code, Message: err.Error()}
	if typed, ok := otc.AsError(err); ok {
		detail.Category = string(typed.Category)
	}
	writeJSON(w, status, errorBody{Error: detail})
}
