package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential material in log output.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"bearer":        {},
	"token":         {},
	"hmac_secret":   {},
	"passphrase":    {},
	"password":      {},
	"private_key":   {},
	"keystore_json": {},
}

var sensitiveSuffixes = []string{"_secret", "_token", "_passphrase"}

// IsSensitive reports whether values logged under key carry credentials.
func IsSensitive(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[lower]; ok {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// MaskValue returns the placeholder for non-empty values. Empty values pass
// through so a missing header is still visible as missing.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a string attribute, masking value when key is sensitive.
func MaskField(key, value string) slog.Attr {
	if IsSensitive(key) {
		return slog.String(key, MaskValue(value))
	}
	return slog.String(key, value)
}

// redactAttr is applied by the JSON handler to every attribute, so a
// credential logged under a sensitive key never reaches the sink verbatim.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !IsSensitive(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
