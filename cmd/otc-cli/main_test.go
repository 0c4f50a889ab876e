package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"otcswap/crypto"
	"otcswap/gateway/middleware"
)

type capturedRequest struct {
	method string
	path   string
	caller string
	idem   string
	body   map[string]any
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFillSendsCallerAndBody(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			caller: r.Header.Get(middleware.HeaderCaller),
			idem:   r.Header.Get("Idempotency-Key"),
		}
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"paymentAmount":"800","remainingAmount":"600"}`))
	}))
	defer srv.Close()

	caller := crypto.FormatAccount([20]byte{0x02})
	out, err := runCLI(t, "offer", "fill", "otc1offer", "400",
		"--endpoint", srv.URL, "--caller", caller, "--token=", "--idempotency-key", "k-1")
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/v1/offers/otc1offer/fill", got.path)
	require.Equal(t, caller, got.caller)
	require.Equal(t, "k-1", got.idem)
	require.Equal(t, float64(400), got.body["amount"])
	require.Contains(t, out, `"paymentAmount": "800"`)
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"InvalidOfferStatus","category":"state","message":"offer is not ongoing"}}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, "offer", "cancel", "otc1offer", "--endpoint", srv.URL, "--idempotency-key=")
	require.Error(t, err)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, "InvalidOfferStatus", apiErr.Code)
	require.Contains(t, err.Error(), "state")
}

func TestTokenCommandSignsSubject(t *testing.T) {
	subject := crypto.FormatAccount([20]byte{0xAD})
	out, err := runCLI(t, "token", "--secret", "dev-secret", "--subject", subject, "--scope", middleware.ScopeAdmin)
	require.NoError(t, err)

	token := strings.TrimSpace(out)
	require.Len(t, strings.Split(token, "."), 3)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "dev-secret"}, nil)
	var seen middleware.Caller
	handler := auth.Middleware(middleware.ScopeAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middleware.CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/fee", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, [20]byte{0xAD}, seen.Address)
}

func TestTokenRequiresSubject(t *testing.T) {
	_, err := runCLI(t, "token", "--secret", "dev-secret", "--subject", "")
	require.Error(t, err)
}
