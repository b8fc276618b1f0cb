// Package filter implements keyword normalization and message matching.
package filter

import (
	"sort"
	"strings"
)

// Match returns the keywords contained in text, in keyword order.
// Matching is case-insensitive substring containment with no word boundaries;
// a keyword that is part of another matched keyword is still reported.
func Match(text string, keywords []string) []string {
	if text == "" || len(keywords) == 0 {
		return nil
	}
	lower := strings.ToLower(text)

	var matched []string
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

type span struct {
	start, end int
}

// Highlight lower-cases text and wraps every occurrence of the matched keywords
// with emph. Text outside the marked spans goes through plain, which may be nil.
//
// Keywords are placed longest first and an occurrence overlapping an already
// marked span is skipped, so "jobless" wins over "job" inside "jobless".
func Highlight(text string, matched []string, emph, plain func(string) string) string {
	if plain == nil {
		plain = func(s string) string { return s }
	}
	lower := strings.ToLower(text)

	ordered := make([]string, 0, len(matched))
	for _, kw := range matched {
		if kw = strings.ToLower(kw); kw != "" {
			ordered = append(ordered, kw)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	var spans []span
	for _, kw := range ordered {
		for from := 0; from < len(lower); {
			idx := strings.Index(lower[from:], kw)
			if idx < 0 {
				break
			}
			s := span{start: from + idx, end: from + idx + len(kw)}
			if !overlaps(spans, s) {
				spans = append(spans, s)
			}
			from = s.end
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	pos := 0
	for _, s := range spans {
		b.WriteString(plain(lower[pos:s.start]))
		b.WriteString(emph(lower[s.start:s.end]))
		pos = s.end
	}
	b.WriteString(plain(lower[pos:]))
	return b.String()
}

func overlaps(spans []span, s span) bool {
	for _, o := range spans {
		if s.start < o.end && o.start < s.end {
			return true
		}
	}
	return false
}
