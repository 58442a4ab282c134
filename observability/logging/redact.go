package logging

import (
	"log/slog"
	"sort"
)

// RedactedValue is the placeholder logged in place of secrets.
const RedactedValue = "[REDACTED]"

// MaskHeaders keeps header names visible and hides every value. Exporter
// headers routinely carry bearer tokens.
func MaskHeaders(headers map[string]string) slog.Attr {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, slog.String(key, RedactedValue))
	}
	return slog.Group("headers", attrs...)
}
