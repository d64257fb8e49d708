// Package logutil keeps credentials and note plaintext out of log lines.
//
// Note bodies live in per-user encrypted databases, so anything that echoes
// request or response payloads into logs goes through here first.
package logutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"
)

const redacted = "[REDACTED]"

// Substrings of a normalized key that mark it as a credential.
var credentialMarkers = []string{"token", "secret", "password", "apikey", "cookie", "auth", "masterkey", "signingkey"}

// Keys whose values are user-authored text. Logged as a size only.
var contentKeys = map[string]bool{
	"content":  true,
	"text":     true,
	"query":    true,
	"oldtext":  true,
	"newtext":  true,
	"messages": true,
}

func normalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "", "_", "").Replace(k)
}

// IsSensitiveLogField reports whether key names a credential.
func IsSensitiveLogField(key string) bool {
	k := normalizeKey(key)
	if k == "" {
		return false
	}
	for _, m := range credentialMarkers {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

// IsContentLogField reports whether key names user-authored text.
func IsContentLogField(key string) bool {
	return contentKeys[normalizeKey(key)]
}

// RedactHeaderValue hides value when key looks like a credential.
func RedactHeaderValue(key, value string) string {
	if IsSensitiveLogField(key) {
		return redacted
	}
	return value
}

// FormatHeadersForLog renders headers as sorted, lower-cased, redacted
// key=value pairs.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		name := strings.ToLower(k)
		values := headers.Values(k)
		if len(values) == 0 {
			b.WriteString(name + "=<empty>")
			continue
		}
		shown := make([]string, len(values))
		for j, v := range values {
			shown[j] = RedactHeaderValue(k, v)
		}
		fmt.Fprintf(&b, "%s=%q", name, strings.Join(shown, ", "))
	}
	return b.String()
}

// ContentSummary describes user text without including it.
func ContentSummary(s string) string {
	if s == "" {
		return "<empty>"
	}
	return fmt.Sprintf("<%d chars, %d lines>", utf8.RuneCountInString(s), strings.Count(s, "\n")+1)
}

func scrub(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			switch {
			case IsSensitiveLogField(k):
				typed[k] = redacted
			case IsContentLogField(k):
				if s, ok := child.(string); ok {
					typed[k] = ContentSummary(s)
				} else {
					typed[k] = redacted
				}
			default:
				typed[k] = scrub(child)
			}
		}
	case []any:
		for i, child := range typed {
			typed[i] = scrub(child)
		}
	}
	return v
}

// RedactBodyForLog scrubs credentials and note text from JSON payloads.
// Other content types, and JSON that does not parse, come back unchanged.
func RedactBodyForLog(contentType string, body []byte) string {
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return string(body)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(scrub(payload)); err != nil {
		return string(body)
	}
	return strings.TrimSuffix(out.String(), "\n")
}

// FormatBodyForLog caps body at maxBytes and then redacts it. A cut body
// rarely parses as JSON, so truncated payloads are summarized instead.
func FormatBodyForLog(contentType string, body []byte, maxBytes int, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}
	if truncated && strings.Contains(strings.ToLower(contentType), "json") {
		return fmt.Sprintf("<%d bytes of json> [truncated]", len(body))
	}
	text := RedactBodyForLog(contentType, body)
	if truncated {
		return text + " [truncated]"
	}
	return text
}

// TruncateForLog flattens value onto one line and cuts it to maxChars runes.
func TruncateForLog(value string, maxChars int) string {
	s := strings.ReplaceAll(strings.TrimSpace(value), "\n", `\n`)
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars]) + "... [truncated]"
}
