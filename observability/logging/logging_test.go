package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "otcd", "test")
	logger.Info("offer created", MaskField("authorization", "Bearer abc"), MaskField("reason", "ok"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["service"] != "otcd" {
		t.Fatalf("unexpected attrs: %v", line)
	}
	if line["authorization"] != RedactedValue {
		t.Fatalf("authorization not redacted: %v", line["authorization"])
	}
	if line["reason"] != "ok" {
		t.Fatalf("allowlisted key redacted: %v", line["reason"])
	}
}

func TestMaskValue(t *testing.T) {
	if MaskValue("") != "" {
		t.Fatalf("empty values stay empty")
	}
	if MaskValue("secret") != RedactedValue {
		t.Fatalf("expected redaction")
	}
}

func TestHandlerRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "otcd", "")
	logger.Info("startup", "hmac_secret", "abc123", "keystore_passphrase", "pw", "path", "/tmp/admin.keystore")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["hmac_secret"] != RedactedValue || line["keystore_passphrase"] != RedactedValue {
		t.Fatalf("credentials leaked: %v", line)
	}
	if line["path"] != "/tmp/admin.keystore" {
		t.Fatalf("ordinary attribute masked: %v", line["path"])
	}
}

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"Authorization", "bearer", "refresh_token", "HMAC_SECRET"} {
		if !IsSensitive(key) {
			t.Fatalf("%q should be sensitive", key)
		}
	}
	for _, key := range []string{"offer", "maker", "tokens_filled", "path"} {
		if IsSensitive(key) {
			t.Fatalf("%q should not be sensitive", key)
		}
	}
}
