// Package tagging derives the search index of a statement: a set of
// part-of-speech/lemma bigrams that approximate matching runs against.
package tagging

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation"
)

var nonWord = regexp.MustCompile(`[^A-Za-z0-9'\s]`)

// Indexer builds search_text values.
type Indexer struct {
	annotator annotation.Annotator
}

// NewIndexer only reads tokens, so an embedding wrapper around annotator
// is bypassed.
func NewIndexer(annotator annotation.Annotator) *Indexer {
	return &Indexer{annotator: annotation.Unwrap(annotator)}
}

// Index returns the space-joined, sorted set of bigram tokens for text.
// The raw text and its cleaned form are both indexed and their tokens
// unioned. Identical input always yields identical output.
func (ix *Indexer) Index(ctx context.Context, text string) (string, error) {
	set := map[string]bool{}
	for _, variant := range []string{text, CleanText(text)} {
		if strings.TrimSpace(variant) == "" {
			continue
		}
		tokens, err := ix.bigrams(ctx, variant)
		if err != nil {
			return "", err
		}
		for _, t := range tokens {
			set[t] = true
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.Sort(out)
	return strings.Join(out, " "), nil
}

func (ix *Indexer) bigrams(ctx context.Context, text string) ([]string, error) {
	if len([]rune(text)) <= 2 {
		if stripped := stripPunct(text); stripped != "" {
			text = stripped
		}
	}

	doc, err := ix.annotator.Annotate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", text, err)
	}

	var out []string
	if len(doc.Tokens) >= 2 {
		tokens := contentTokens(doc.Tokens, true)
		if len(tokens) < 2 {
			tokens = contentTokens(doc.Tokens, false)
		}
		for i := 1; i < len(tokens); i++ {
			lemma := tokens[i].Lemma
			if lemma == "" {
				lemma = tokens[i].Text
			}
			out = append(out, tokens[i-1].POS+":"+strings.ToLower(lemma))
		}
	}
	if len(out) == 0 {
		out = doc.Lemmas()
	}
	return out, nil
}

func contentTokens(tokens []annotation.Token, dropStops bool) []annotation.Token {
	var out []annotation.Token
	for _, t := range tokens {
		if !t.IsAlpha {
			continue
		}
		if dropStops && IsStopWord(t.Text) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CleanText replaces everything but letters, digits, apostrophes and
// whitespace with spaces, lowercases, and removes stop words. When that
// leaves nothing, the cleaned text is kept with its stop words; when even
// that is empty the original text is returned.
func CleanText(text string) string {
	cleaned := strings.ToLower(nonWord.ReplaceAllString(text, " "))

	var kept []string
	for _, w := range strings.Fields(cleaned) {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) > 0 {
		return strings.Join(kept, " ")
	}
	if c := strings.Join(strings.Fields(cleaned), " "); c != "" {
		return c
	}
	return text
}

func stripPunct(text string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, text))
}
