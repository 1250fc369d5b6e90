package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase terms, drops stopwords and optionally
// folds common English inflections so "losses" and "loss" share a term.
type Tokenizer struct {
	stopwords map[string]struct{}
	fold      bool
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(fold bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		fold:      fold,
	}
}

// Tokenize splits text into terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.fold {
			word = foldSuffix(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// Features returns the terms of text followed by its adjacent term pairs.
// Pairs keep some word order information for hashed embeddings.
func (t *Tokenizer) Features(text string) []string {
	tokens := t.Tokenize(text)
	if len(tokens) < 2 {
		return tokens
	}
	features := make([]string, 0, 2*len(tokens)-1)
	features = append(features, tokens...)
	for i := 1; i < len(tokens); i++ {
		features = append(features, tokens[i-1]+" "+tokens[i])
	}
	return features
}

// foldSuffix strips a few inflectional endings. It is deliberately weaker than a
// full stemmer: it only has to map plural and participle forms together.
func foldSuffix(word string) string {
	n := len(word)
	switch {
	case n > 5 && strings.HasSuffix(word, "ies"):
		return word[:n-3] + "y"
	case n > 5 && strings.HasSuffix(word, "sses"):
		return word[:n-2]
	case n > 5 && strings.HasSuffix(word, "ing"):
		return word[:n-3]
	case n > 4 && strings.HasSuffix(word, "ed") && !strings.HasSuffix(word, "eed"):
		return word[:n-2]
	case n > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && !strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is"):
		return word[:n-1]
	}
	return word
}

// splitWords splits text into words using unicode letter and digit runs.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns common English stopwords plus boilerplate words of
// scientific prose.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "we", "our", "they", "their",
		"she", "her", "his", "if", "or", "so", "no", "can", "do",
		"does", "did", "been", "being", "would", "could", "should",
		"may", "might", "which", "who", "what", "when", "where",
		"how", "all", "each", "both", "more", "most", "other",
		"some", "such", "than", "very", "also", "these", "those",
		"there", "into", "between", "after", "during", "however",
		"et", "al", "fig", "figure", "table", "using", "used",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
