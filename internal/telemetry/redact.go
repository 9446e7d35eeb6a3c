package telemetry

import "strings"

// RedactedPlaceholder replaces any value whose key matches the denylist.
const RedactedPlaceholder = "[REDACTED]"

// secretKeyDenylist is the fixed set of key names whose values are redacted
// before any payload is persisted. Matching is case-insensitive and ignores
// separators, so "API-Key", "api_key", and "apikey" all match.
var secretKeyDenylist = []string{
	"apikey",
	"authorization",
	"token",
	"secret",
	"password",
	"credential",
	"accesskey",
	"privatekey",
}

// isSecretKey reports whether a payload key must have its value redacted.
func isSecretKey(key string) bool {
	normalized := strings.ToLower(key)
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	for _, denied := range secretKeyDenylist {
		if strings.Contains(normalized, denied) {
			return true
		}
	}
	return false
}

// Redact returns a deep copy of the payload with every denylisted key's value
// replaced. The input is never mutated. Nested maps and slices are walked
// recursively; non-container values pass through unchanged.
func Redact(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSecretKey(k) {
			out[k] = RedactedPlaceholder
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Redact(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
