package usecase

import (
	"strings"
	"unicode"

	"pubsearch/config"
	"pubsearch/internal/domain"
)

// findingsSections are tried in order; the first present one is summarized.
var findingsSections = []string{"results", "conclusions", "conclusion", "discussion"}

// Summarize assembles a templated digest of a publication: header lines, the
// truncated abstract, then the first findings section, all within the
// configured character budget.
func Summarize(rec domain.PublicationRecord, cfg config.SummaryConfig) domain.Summary {
	title := orDefault(rec.Title, "Unknown Title")
	authors := orDefault(rec.Authors, "Unknown Authors")
	year := orDefault(string(rec.Year), "Unknown Year")

	parts := []string{
		"Title: " + title,
		"Authors: " + authors,
		"Year: " + year,
		"",
	}

	if abstract, ok := rec.Sections.Get("abstract"); ok {
		parts = append(parts, "Abstract: "+truncate(abstract, cfg.AbstractChars), "")
	}

	for _, name := range findingsSections {
		if text, ok := rec.Sections.Get(name); ok {
			parts = append(parts, capitalize(name)+": "+truncate(text, cfg.FindingsChars))
			break
		}
	}

	sections := rec.Sections.Names()
	if sections == nil {
		sections = []string{}
	}

	return domain.Summary{
		PubID:        rec.ID,
		Title:        title,
		Authors:      authors,
		Year:         year,
		Summary:      truncate(strings.Join(parts, "\n"), cfg.MaxChars),
		FullSections: sections,
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// truncate keeps the first limit characters and marks the cut with "...".
// A non-positive limit disables truncation.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	for i := 1; i < len(r); i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}
