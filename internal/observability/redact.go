package observability

import (
	"regexp"
)

// Redactor handles sensitive data masking in logs.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
	name        string
}

// NewRedactor creates a new redactor with default patterns covering the
// credential formats of common translation and LLM backends.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	// API keys in common vendor formats
	r.AddPattern(`sk-[a-zA-Z0-9\-_]{16,}`, "[REDACTED_API_KEY]", "sk_key")
	r.AddPattern(`AIza[a-zA-Z0-9\-_]{35}`, "[REDACTED_API_KEY]", "google_key")
	r.AddPattern(`\b[a-f0-9]{32,}\b`, "[REDACTED_API_KEY]", "hex_key")

	// Bearer tokens and auth headers
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_.]+`, "Bearer [REDACTED]", "bearer_token")
	r.AddPattern(`(?i)authorization:\s*\S+`, "Authorization: [REDACTED]", "auth_header")
	r.AddPattern(`(?i)api[-_]?key[=:]\s*\S+`, "api_key=[REDACTED]", "api_key_param")
}

// AddPattern adds a custom redaction pattern. Invalid patterns are
// skipped.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
		name:        name,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
