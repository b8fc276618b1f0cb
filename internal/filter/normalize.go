package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxKeywordLength is the longest keyword accepted, in runes.
const MaxKeywordLength = 64

// Normalize lower-cases and trims raw keywords and drops empty ones.
// The first occurrence of each keyword is kept in unique; later repeats
// are returned in repeats.
func Normalize(raw []string) (unique, repeats []string) {
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		kw := strings.ToLower(strings.TrimSpace(r))
		if kw == "" {
			continue
		}
		if seen[kw] {
			repeats = append(repeats, kw)
			continue
		}
		seen[kw] = true
		unique = append(unique, kw)
	}
	return unique, repeats
}

// SplitList splits a comma-separated keyword list as typed by a user.
func SplitList(s string) []string {
	return strings.Split(s, ",")
}

// ValidateKeyword checks that a normalized keyword is within the length limit.
func ValidateKeyword(kw string) error {
	if n := utf8.RuneCountInString(kw); n > MaxKeywordLength {
		return fmt.Errorf("keyword %q is %d characters long, limit is %d", kw, n, MaxKeywordLength)
	}
	return nil
}
