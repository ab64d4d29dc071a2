package common

import (
	"regexp"
	"strings"
	"sync/atomic"
)

// Masked replaces any value considered sensitive.
const Masked = "***MASKED***"

// SensitivePattern detects sensitive material either by attribute/variable name
// (Keys, matched as case-insensitive substrings) or inside free text (Regex).
type SensitivePattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Keys        []string
}

// DefaultSensitivePatterns covers credentials that commonly end up in
// environment variables, request headers and response bodies.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)("?(?:password|passwd|pwd)"?\s*[:=]\s*)"?[^"',}\s]+"?`),
		Replacement: `${1}"` + Masked + `"`,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "api_key",
		Regex:       regexp.MustCompile(`(?i)("?(?:api[_-]?key)"?\s*[:=]\s*)"?[^"',}\s]+"?`),
		Replacement: `${1}"` + Masked + `"`,
		Keys:        []string{"api_key", "apikey", "api-key"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)("?(?:access[_-]?|refresh[_-]?|auth[_-]?)?token"?\s*[:=]\s*)"?[^"',}\s]+"?`),
		Replacement: `${1}"` + Masked + `"`,
		Keys:        []string{"token"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)("?(?:client[_-]?)?secret"?\s*[:=]\s*)"?[^"',}\s]+"?`),
		Replacement: `${1}"` + Masked + `"`,
		Keys:        []string{"secret"},
	},
	{
		Name: "authorization",
		Keys: []string{"authorization", "cookie"},
	},
	{
		Name:        "bearer",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + Masked,
	},
	{
		Name:        "basic",
		Regex:       regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		Replacement: "Basic " + Masked,
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  atomic.Bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return NewMaskerWithPatterns(DefaultSensitivePatterns)
}

// NewMaskerWithPatterns creates a new masker with custom patterns
func NewMaskerWithPatterns(patterns []SensitivePattern) *Masker {
	m := &Masker{patterns: patterns}
	m.enabled.Store(true)
	return m
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) { m.enabled.Store(enabled) }

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool { return m.enabled.Load() }

// IsSensitiveKey reports whether a name (header, variable, log attribute) looks like a credential.
func (m *Masker) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range m.patterns {
		for _, k := range p.Keys {
			if strings.Contains(lower, k) {
				return true
			}
		}
	}
	return false
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.IsEnabled() {
		return input
	}
	out := input
	for _, p := range m.patterns {
		if p.Regex != nil {
			out = p.Regex.ReplaceAllString(out, p.Replacement)
		}
	}
	return out
}

// MaskValue masks value when key is sensitive, otherwise scrubs string content.
func (m *Masker) MaskValue(key string, value any) any {
	if !m.IsEnabled() {
		return value
	}
	if m.IsSensitiveKey(key) {
		return Masked
	}
	if s, ok := value.(string); ok {
		return m.MaskString(s)
	}
	return value
}

// MaskKeyValuePairs masks sensitive values in slog-style key/value argument lists.
func (m *Masker) MaskKeyValuePairs(pairs ...any) []any {
	if !m.IsEnabled() {
		return pairs
	}
	out := make([]any, len(pairs))
	copy(out, pairs)
	for i := 0; i+1 < len(out); i += 2 {
		if k, ok := out[i].(string); ok {
			out[i+1] = m.MaskValue(k, out[i+1])
		}
	}
	return out
}

var globalMasker = NewMasker()

// GetGlobalMasker returns the global masker instance
func GetGlobalMasker() *Masker { return globalMasker }

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string { return globalMasker.MaskString(input) }

// MaskVariable returns the loggable form of a named value, e.g. an environment variable.
func MaskVariable(name, value string) string {
	v, _ := globalMasker.MaskValue(name, value).(string)
	return v
}

// EnableMasking enables/disables global masking
func EnableMasking(enabled bool) { globalMasker.SetEnabled(enabled) }

// IsMaskingEnabled returns whether global masking is enabled
func IsMaskingEnabled() bool { return globalMasker.IsEnabled() }
