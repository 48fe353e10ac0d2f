// Package sanitize normalizes raw widget input before it enters the chat
// pipeline. It bounds length and strips control characters; it makes no
// attempt at semantic filtering.
package sanitize

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLength bounds a single user message, in runes.
const DefaultMaxLength = 2000

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// Clean strips control characters (newlines and tabs survive), trims
// surrounding whitespace and enforces the length cap. A maxLen of zero or
// less falls back to DefaultMaxLength.
func Clean(raw string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, raw)

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(cleaned) > maxLen {
		return "", ErrMessageTooLong
	}
	return cleaned, nil
}
