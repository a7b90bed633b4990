// Package sanitize cleans player names and screens for injection attempts.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxNameLength caps sanitized names.
const MaxNameLength = 15

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	allowedPattern = regexp.MustCompile(`[^a-zA-Z0-9\s._-]`)

	// Denylist heuristics layered on top of sanitization. Matching input is
	// rejected outright rather than cleaned.
	suspiciousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|union|exec|alter|create|truncate)\b`),
		regexp.MustCompile(`(?i)<\s*script`),
		regexp.MustCompile(`(?i)\bjavascript\s*:`),
		regexp.MustCompile(`['";]|--`),
	}
)

// Name strips HTML-like tags and disallowed characters, trims surrounding
// whitespace, and caps the result at MaxNameLength. The result may be empty.
func Name(raw string) string {
	s := tagPattern.ReplaceAllString(raw, "")
	s = allowedPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > MaxNameLength {
		s = strings.TrimSpace(s[:MaxNameLength])
	}
	return s
}

// Suspicious reports whether s matches the injection denylist.
func Suspicious(s string) bool {
	for _, p := range suspiciousPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
