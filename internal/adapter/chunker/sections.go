package chunker

import (
	"strings"

	"pubsearch/internal/domain"
)

// preferredSections lists name fragments of the sections indexed first, in order.
var preferredSections = []string{"results", "result", "discussion", "conclusion", "abstract", "full_text"}

// OrderSections returns the sections worth indexing: those whose name matches a
// preferred fragment come first in preference order, then the rest in record
// order. Sections with fewer than minChars characters of trimmed text are dropped.
func OrderSections(secs domain.Sections, minChars int) domain.Sections {
	taken := make([]bool, len(secs))
	ordered := make(domain.Sections, 0, len(secs))

	for _, pref := range preferredSections {
		for i, sec := range secs {
			if taken[i] || !strings.Contains(strings.ToLower(sec.Name), pref) {
				continue
			}
			taken[i] = true
			ordered = append(ordered, sec)
		}
	}
	for i, sec := range secs {
		if !taken[i] {
			ordered = append(ordered, sec)
		}
	}

	kept := ordered[:0]
	for _, sec := range ordered {
		if len([]rune(strings.TrimSpace(sec.Text))) < minChars {
			continue
		}
		kept = append(kept, sec)
	}
	return kept
}
