// Package validation checks request inputs before they reach the store.
// Normalization (lowercasing, dedup keys) is the store's job; this package
// only decides whether an input is acceptable at all.
package validation

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when the city name exceeds the maximum length.
var ErrCityTooLong = errors.New("city name too long")

// ErrCityInvalidChars is returned when the city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrLanguageInvalid is returned for malformed language tags.
var ErrLanguageInvalid = errors.New("invalid language tag")

// ErrLimitInvalid is returned for non-numeric or out-of-range limit parameters.
var ErrLimitInvalid = errors.New("invalid limit")

// MaxCityLen bounds city names in runes. Longest real city names run about
// 90 characters; anything past this is garbage input.
const MaxCityLen = 100

// City trims the input, enforces length bounds in runes, and restricts to
// letters (Unicode), digits, space, comma, period, apostrophe and hyphen.
// Returns the trimmed string or an error suitable for 400 responses.
func City(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > MaxCityLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// isAllowedCityRune returns true for letters (Unicode), digits, and the
// punctuation that appears in real place names.
func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '.', '\'', '-':
		return true
	}
	return false
}

// Language validates an optional BCP 47-style primary tag, e.g. "en" or
// "zh-CN". Empty input is valid and means "any language".
func Language(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", nil
	}
	parts := strings.Split(s, "-")
	if len(parts) > 3 {
		return "", ErrLanguageInvalid
	}
	for _, p := range parts {
		if len(p) < 2 || len(p) > 8 {
			return "", ErrLanguageInvalid
		}
		for _, c := range p {
			if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
				return "", ErrLanguageInvalid
			}
		}
	}
	return s, nil
}

// Limit parses an optional limit query parameter. Empty input returns def.
// Values must be integers in [1, max].
func Limit(input string, def, max int) (int, error) {
	if strings.TrimSpace(input) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(input)
	if err != nil {
		return 0, ErrLimitInvalid
	}
	if n < 1 || n > max {
		return 0, ErrLimitInvalid
	}
	return n, nil
}
