package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"otcswap/crypto"
	"otcswap/gateway/middleware"
)

// apiError mirrors the daemon's error envelope.
type apiError struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("%s (%s, HTTP %d): %s", e.Code, e.Category, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

type client struct {
	endpoint    string
	caller      string
	token       string
	idempotency string
	http        *http.Client
}

// newClient builds a client from the global flags.
func newClient() (*client, error) {
	caller := strings.TrimSpace(callerFlag)
	if keystoreFlag != "" {
		pass, err := keystorePassphrase.get()
		if err != nil {
			return nil, err
		}
		key, err := crypto.LoadFromKeystore(keystoreFlag, pass)
		if err != nil {
			return nil, fmt.Errorf("load keystore: %w", err)
		}
		caller = crypto.FormatAccount(key.PubKey().Address().Bytes())
	}
	return &client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		caller:      caller,
		token:       strings.TrimSpace(tokenFlag),
		idempotency: strings.TrimSpace(idempotencyKey),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (c *client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.caller != "" {
		req.Header.Set(middleware.HeaderCaller, c.caller)
	}
	if c.idempotency != "" && method != http.MethodGet {
		req.Header.Set("Idempotency-Key", c.idempotency)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		var envelope struct {
			Error apiError `json:"error"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Error.Code == "" {
			return nil, &apiError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(payload))}
		}
		envelope.Error.Status = resp.StatusCode
		return nil, &envelope.Error
	}
	return payload, nil
}

// printJSON re-indents a response body onto w.
func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
