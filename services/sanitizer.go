package services

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeResult holds the outcome of sanitizing one inbound message.
type SanitizeResult struct {
	Clean       string
	WasModified bool
	Blocked     bool
	BlockReason string
}

// Sanitizer normalizes raw inbound text before any policy check sees it.
type Sanitizer struct {
	maxLength int
}

// NewSanitizer creates a Sanitizer with the given maximum text length.
func NewSanitizer(maxLength int) *Sanitizer {
	if maxLength <= 0 {
		maxLength = 4000
	}
	return &Sanitizer{maxLength: maxLength}
}

// Sanitize enforces valid UTF-8, strips control characters, collapses
// whitespace and truncates to the configured budget. Input that is empty
// after cleaning is blocked.
func (s *Sanitizer) Sanitize(input string) SanitizeResult {
	result := SanitizeResult{Clean: input}

	if !utf8.ValidString(result.Clean) {
		result.Clean = strings.ToValidUTF8(result.Clean, "")
		result.WasModified = true
	}

	cleaned := stripControlChars(result.Clean)
	if cleaned != result.Clean {
		result.Clean = cleaned
		result.WasModified = true
	}

	collapsed := collapseWhitespace(result.Clean)
	if collapsed != result.Clean {
		result.Clean = collapsed
		result.WasModified = true
	}

	if len(result.Clean) > s.maxLength {
		result.Clean = truncateUTF8(result.Clean, s.maxLength)
		result.WasModified = true
	}

	result.Clean = strings.TrimSpace(result.Clean)

	if result.Clean == "" {
		result.Blocked = true
		result.BlockReason = "empty message after sanitization"
	}

	return result
}

// NormalizePhone strips all characters except digits and a leading +.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(phone))

	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
		} else if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// stripControlChars removes control characters except newline and tab.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// collapseWhitespace reduces runs of blank lines and spaces.
func collapseWhitespace(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

// truncateUTF8 cuts a string to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
