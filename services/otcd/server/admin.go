package server

import (
	"net/http"

	"otcswap/crypto"
)

type initRequest struct {
	FeePercentage    uint64   `json:"feePercentage"`
	FeeWallet        string   `json:"feeWallet"`
	RequireWhitelist bool     `json:"requireWhitelist"`
	Mints            []string `json:"mints,omitempty"`
}

// InitializeAdmin makes the caller the protocol admin. It succeeds once.
func (s *Server) InitializeAdmin(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req initRequest
	if !decode(w, r, &req) {
		return
	}
	wallet, ok := optionalAddress(w, "feeWallet", req.FeeWallet)
	if !ok {
		return
	}
	if wallet == ([20]byte{}) {
		wallet = admin
	}
	mints, ok := parseAddresses(w, "mints", req.Mints)
	if !ok {
		return
	}
	if err := s.engine.InitializeAdmin(admin, req.FeePercentage, wallet, req.RequireWhitelist, mints); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("admin initialized", "admin", crypto.FormatAccount(admin))
	s.GetConfig(w, r)
}

type feeRequest struct {
	FeePercentage uint64 `json:"feePercentage"`
}

func (s *Server) UpdateFee(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req feeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.UpdateFeePercentage(admin, req.FeePercentage); err != nil {
		s.fail(w, r, err)
		return
	}
	s.GetConfig(w, r)
}

type feeAddressRequest struct {
	Wallet string `json:"wallet"`
}

func (s *Server) UpdateFeeAddress(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req feeAddressRequest
	if !decode(w, r, &req) {
		return
	}
	wallet, ok := optionalAddress(w, "wallet", req.Wallet)
	if !ok {
		return
	}
	if err := s.engine.UpdateFeeAddress(admin, wallet); err != nil {
		s.fail(w, r, err)
		return
	}
	s.GetConfig(w, r)
}

func (s *Server) ToggleWhitelist(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.caller(w, r)
	if !ok {
		return
	}
	required, err := s.engine.ToggleRequireWhitelist(admin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"requireWhitelist": required})
}

type mintsRequest struct {
	Mints []string `json:"mints"`
}

func (s *Server) AddMints(w http.ResponseWriter, r *http.Request) {
	s.editMints(w, r, s.engine.AddMints)
}

func (s *Server) RemoveMints(w http.ResponseWriter, r *http.Request) {
	s.editMints(w, r, s.engine.RemoveMints)
}

func (s *Server) editMints(w http.ResponseWriter, r *http.Request, apply func([20]byte, [][20]byte) error) {
	admin, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req mintsRequest
	if !decode(w, r, &req) {
		return
	}
	mints, ok := parseAddresses(w, "mints", req.Mints)
	if !ok {
		return
	}
	if err := apply(admin, mints); err != nil {
		s.fail(w, r, err)
		return
	}
	s.GetConfig(w, r)
}

type expireDueRequest struct {
	Limit int `json:"limit"`
}

// ExpireDue runs one expiry sweep on demand.
func (s *Server) ExpireDue(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req expireDueRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	expired, err := s.engine.ExpireDue(admin, req.Limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": formatAccounts(expired)})
}
