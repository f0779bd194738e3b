package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strict = bluemonday.StrictPolicy()

// PlainText strips markup and control characters, collapses whitespace and truncates to limit
// runes. A non-positive limit disables truncation.
func PlainText(value string, limit int) string {
	cleaned := strict.Sanitize(value)
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if limit > 0 {
		if runes := []rune(cleaned); len(runes) > limit {
			cleaned = string(runes[:limit])
		}
	}
	return cleaned
}

// NormalizeCode canonicalises a user-typed coupon code: NFKC folds full-width and compatibility
// characters, whitespace is removed and letters are upper-cased.
func NormalizeCode(code string) string {
	folded := norm.NFKC.String(code)
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded))
}

// Digits keeps only ASCII digits, used for phone numbers and postal codes.
func Digits(value string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)
}
