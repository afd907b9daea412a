package resilience

import (
	"errors"
	"regexp"
	"strings"
)

// RedactionMarker replaces any value identified as sensitive. Redaction is a
// correctness requirement on every externally visible error path, not a
// cosmetic one: destination tokens appear in URLs and API error bodies.
const RedactionMarker = "[REDACTED]"

// sensitiveFieldNames are matched case-insensitively as substrings of field
// names.
var sensitiveFieldNames = []string{"password", "token", "secret", "key", "authorization", "credential"}

var (
	// jwtPattern matches the three-part dotted base64url shape of a JWT.
	jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)

	// opaqueTokenPattern matches long base64-like runs that are almost
	// certainly credentials rather than prose.
	opaqueTokenPattern = regexp.MustCompile(`\b[A-Za-z0-9+/_-]{40,}={0,2}\b`)

	// botTokenPattern matches Telegram-style bot tokens embedded in URLs.
	botTokenPattern = regexp.MustCompile(`\b\d{6,}:[A-Za-z0-9_-]{30,}\b`)
)

// RedactString masks JWT-shaped substrings, bot tokens, and long opaque
// base64-like strings inside s. Content without secrets passes through
// unchanged.
func RedactString(s string) string {
	s = jwtPattern.ReplaceAllString(s, RedactionMarker)
	s = botTokenPattern.ReplaceAllString(s, RedactionMarker)
	s = opaqueTokenPattern.ReplaceAllString(s, RedactionMarker)
	return s
}

// RedactValue recursively walks a decoded JSON-like value (string, []any,
// map[string]any) and masks sensitive field values and token-shaped strings.
// The input is not modified; a redacted copy is returned.
func RedactValue(v any) any {
	switch val := v.(type) {
	case string:
		return RedactString(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = RedactValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, item := range val {
			if isSensitiveField(key) {
				out[key] = RedactionMarker
				continue
			}
			out[key] = RedactValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveField(name string) bool {
	lowered := strings.ToLower(name)
	for _, candidate := range sensitiveFieldNames {
		if strings.Contains(lowered, candidate) {
			return true
		}
	}
	return false
}

// RedactError returns an error whose message has passed through
// RedactString. The original error chain is intentionally dropped so wrapped
// secrets cannot resurface via Unwrap.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(RedactString(err.Error()))
}
