// Package annotation is the boundary to the external natural-language
// service that tokenizes, lemmatizes, tags and embeds text.
package annotation

import (
	"context"
	"errors"
	"strings"
)

// ErrAnnotation wraps every failure of the annotation service.
var ErrAnnotation = errors.New("annotation service error")

// Token is one annotated token.
type Token struct {
	Text    string `json:"text"`
	Lemma   string `json:"lemma"`
	POS     string `json:"pos"`
	IsAlpha bool   `json:"is_alpha"`
	IsOOV   bool   `json:"is_oov"`
}

// Document is the annotation of a single text.
type Document struct {
	Text       string    `json:"text"`
	Tokens     []Token   `json:"tokens"`
	Vector     []float32 `json:"vector"`
	VectorNorm float64   `json:"vector_norm"`
}

// Annotator produces a Document for a text. Implementations must be safe
// for concurrent use.
type Annotator interface {
	Annotate(ctx context.Context, text string) (*Document, error)
}

// Lemmas returns the lowercased lemma of every token.
func (d *Document) Lemmas() []string {
	out := make([]string, 0, len(d.Tokens))
	for _, t := range d.Tokens {
		out = append(out, lower(t.Lemma, t.Text))
	}
	return out
}

func lower(lemma, fallback string) string {
	if lemma == "" {
		lemma = fallback
	}
	return strings.ToLower(lemma)
}
