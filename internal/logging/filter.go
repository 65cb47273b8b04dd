// Package logging keeps secrets out of log output. The engine logs
// prompts, tool output, and configuration; any of those can carry API
// keys or tokens. The helpers here redact known credential shapes
// before a line reaches the console or the rotating log file.
package logging

import (
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// RedactedValue replaces any matched credential.
const RedactedValue = "[REDACTED]"

// credentialPatterns match credential material by shape, independent of
// the surrounding field name.
var credentialPatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // compiled once, read-only
	// Anthropic API keys.
	regexp.MustCompile(`sk-ant-api[a-zA-Z0-9_-]+`),

	// OpenAI-style keys.
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),

	// GitHub tokens (ghp_, gho_, ghu_, ghs_, ghr_).
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`),

	// Bearer tokens and raw authorization values.
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?[a-zA-Z0-9._-]{20,}["']?`),

	// key=value assignments of API keys, secrets, and passwords.
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?[a-zA-Z0-9_-]{16,}["']?`),
	regexp.MustCompile(`(?i)(secret|password|credential|passwd|pwd)\s*[:=]\s*["']?[^\s"']{8,}["']?`),
	regexp.MustCompile(`(?i)(token|auth)\s*[:=]\s*["']?[a-zA-Z0-9+/=_-]{32,}["']?`),

	// PEM private key headers.
	regexp.MustCompile(`-----BEGIN[A-Z ]+PRIVATE KEY-----`),
}

// sensitiveFieldNames flags field names whose values are redacted
// wholesale regardless of shape. A name matches when it equals an entry
// or contains one bounded by '_' or '-' separators, so "db_password"
// matches "password" but "secretariat" does not match "secret". There
// is no bare "token" entry: the engine logs token counts under names
// like "tokens_used" and those are not credentials.
var sensitiveFieldNames = []string{ //nolint:gochecknoglobals // compiled once, read-only
	"api_key",
	"apikey",
	"api-key",
	"access_token",
	"auth_token",
	"authorization",
	"bearer",
	"credential",
	"github_token",
	"passwd",
	"password",
	"private_key",
	"refresh_token",
	"secret",
}

// ContainsSensitiveData reports whether s matches any credential pattern.
func ContainsSensitiveData(s string) bool {
	for _, p := range credentialPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// FilterSensitiveValue redacts every credential-shaped substring of value.
func FilterSensitiveValue(value string) string {
	out := value
	for _, p := range credentialPatterns {
		out = p.ReplaceAllString(out, RedactedValue)
	}
	return out
}

// IsSensitiveFieldName reports whether a log field name indicates a
// value that must never appear in output verbatim.
func IsSensitiveFieldName(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveFieldNames {
		if containsDelimited(lower, s) {
			return true
		}
	}
	return false
}

// containsDelimited reports whether word occurs in name bounded on both
// sides by a separator or the string edge.
func containsDelimited(name, word string) bool {
	if word == "" {
		return false
	}
	for from := 0; ; {
		idx := strings.Index(name[from:], word)
		if idx < 0 {
			return false
		}
		idx += from
		end := idx + len(word)
		if (idx == 0 || isSeparator(name[idx-1])) && (end == len(name) || isSeparator(name[end])) {
			return true
		}
		from = idx + 1
	}
}

func isSeparator(c byte) bool { return c == '_' || c == '-' }

// RedactIfSensitive redacts the whole value for sensitive field names
// and otherwise filters credential shapes out of it. Use it when adding
// string fields whose content the engine does not control.
func RedactIfSensitive(name, value string) string {
	if IsSensitiveFieldName(name) {
		return RedactedValue
	}
	return FilterSensitiveValue(value)
}

// SensitiveDataHook marks log events whose message carries credential
// material. zerolog hooks cannot rewrite the message, so redaction
// happens at call sites and in the FilteringWriter; the hook adds a
// flag field so flagged lines can be found and purged.
type SensitiveDataHook struct{}

// NewSensitiveDataHook returns the marker hook.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements zerolog.Hook.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// FilteringWriter redacts credential shapes from everything written
// through it. The CLI wraps the rotating log file with it so secrets
// never reach disk even when a call site forgot to redact.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter wraps w.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. The reported length is the input length;
// redaction changes the byte count and a shorter return would read as a
// failed write to the zerolog multi-writer.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(FilterSensitiveValue(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
