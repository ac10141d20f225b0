// Package security keeps credentials out of logs and diagnostic output.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// ServiceRedactor is the service name of the process-wide Redactor.
const ServiceRedactor = "security.redactor"

var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|credential)`)

// Redactor replaces secrets in strings and maps. It matches known token
// formats by pattern and runtime credentials by literal value.
// It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a compiled pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret value to redact wherever it appears.
// Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" || r == nil {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap walks m in place. String values under secret-looking keys are
// replaced outright and every other string goes through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			m[k] = r.Redact(val)
		}
	}
}

// DefaultPatterns returns the token formats redacted out of the box.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Telegram bot token: <bot id>:<35 char secret>
		regexp.MustCompile(`\d{6,}:[A-Za-z0-9_-]{30,}`),
		// Redis URL credentials
		regexp.MustCompile(`redis://[^:@/\s]*:[^@/\s]+@`),
		// Bearer header values
		regexp.MustCompile(`Bearer [A-Za-z0-9._~+/-]{16,}=*`),
	}
}
