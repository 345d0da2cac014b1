package providers

import (
	"errors"
	"fmt"
	"strings"
)

const maxAPIErrorChars = 200

// APIError represents a non-2xx backend HTTP response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

func newAPIError(statusCode int, body string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Body:       sanitizeAPIError(body),
	}
}

// TransportError wraps a failed HTTP round trip. The URL is kept, the
// underlying error text is scrubbed.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection error (%s): %s", e.URL, sanitizeAPIError(e.Err.Error()))
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether a single retry of the same backend makes
// sense: transport failures and 5xx/429 responses qualify, other 4xx and
// decoding errors do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// Describe renders err for the user with secrets removed.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeAPIError(err.Error())
}

func sanitizeAPIError(input string) string {
	scrubbed := scrubSecretPatterns(input)
	runes := []rune(scrubbed)
	if len(runes) <= maxAPIErrorChars {
		return scrubbed
	}
	return string(runes[:maxAPIErrorChars]) + "..."
}

func scrubSecretPatterns(input string) string {
	out := input
	for _, prefix := range []string{"sk-", "Bearer "} {
		searchFrom := 0
		for {
			rel := strings.Index(out[searchFrom:], prefix)
			if rel < 0 {
				break
			}
			start := searchFrom + rel
			end := start + len(prefix)
			for end < len(out) {
				ch := out[end]
				if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') ||
					ch == '-' || ch == '_' || ch == '.' || ch == ':' {
					end++
					continue
				}
				break
			}
			if end == start+len(prefix) {
				searchFrom = end
				continue
			}
			out = out[:start] + "[REDACTED]" + out[end:]
			searchFrom = start + len("[REDACTED]")
		}
	}
	return out
}
