// Package search implements the strategies logic adapters use to find
// candidate statements for an input.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// Candidate is a stored statement with the confidence a strategy assigned.
type Candidate struct {
	Statement  *models.Statement
	Confidence float64
}

// Strategy finds candidates for a query statement. Results are sorted by
// confidence, highest first; an empty result is not an error. Strategies
// never write to the store.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query *models.Statement, extra store.Query) ([]Candidate, error)
}

// Options configure a strategy built by name.
type Options struct {
	// Field is the column matched against: text or in_response_to for
	// text_search, search_text or search_in_response_to for
	// indexed_text_search.
	Field      string
	MinOverlap float64
	PageSize   int
}

const (
	TextSearchName        = "text_search"
	IndexedTextSearchName = "indexed_text_search"
)

// Build returns the strategy registered under name.
func Build(name string, s store.Store, opts Options) (Strategy, error) {
	switch name {
	case TextSearchName:
		return NewTextSearch(s, opts.Field, opts.PageSize)
	case IndexedTextSearchName:
		return NewIndexedTextSearch(s, opts.Field, opts.MinOverlap, opts.PageSize)
	}
	return nil, fmt.Errorf("unknown search strategy %q", name)
}

// rank sorts candidates by confidence, then count, then recency.
func rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Statement.Count != b.Statement.Count {
			return a.Statement.Count > b.Statement.Count
		}
		return a.Statement.LastUpdatedAt.After(b.Statement.LastUpdatedAt)
	})
}
