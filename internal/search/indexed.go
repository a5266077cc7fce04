package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
	"github.com/iammorganparry/clive/apps/learnbot/internal/vector"
)

// IndexedTextSearch finds statements whose index shares at least one
// bigram token with the query's search_text, then ranks them by vector
// similarity or token overlap.
type IndexedTextSearch struct {
	store      store.Store
	field      string
	minOverlap float64
	pageSize   int
}

func NewIndexedTextSearch(s store.Store, field string, minOverlap float64, pageSize int) (*IndexedTextSearch, error) {
	switch field {
	case "":
		field = "search_text"
	case "search_text", "search_in_response_to":
	default:
		return nil, fmt.Errorf("indexed_text_search cannot match on %q", field)
	}
	return &IndexedTextSearch{store: s, field: field, minOverlap: minOverlap, pageSize: pageSize}, nil
}

func (x *IndexedTextSearch) Name() string { return IndexedTextSearchName }

func (x *IndexedTextSearch) Search(ctx context.Context, query *models.Statement, extra store.Query) ([]Candidate, error) {
	if strings.TrimSpace(query.SearchText) == "" {
		return nil, nil
	}

	q := store.Query{
		ExcludeBotPersona: true,
		Sort:              []store.SortField{{Field: "count", Desc: true}},
		GroupBy:           "text",
		PageSize:          x.pageSize,
	}.Merge(extra)
	if x.field == "search_in_response_to" {
		q.SearchInResponseToContains = query.SearchText
	} else {
		q.SearchTextContains = query.SearchText
	}

	queryTokens := strings.Fields(query.SearchText)
	var out []Candidate
	for s, err := range x.store.Filter(ctx, q) {
		if err != nil {
			return nil, fmt.Errorf("indexed search: %w", err)
		}
		index := s.SearchText
		if x.field == "search_in_response_to" {
			index = s.SearchInResponseTo
		}
		overlap := OverlapRatio(queryTokens, strings.Fields(index))
		if overlap < x.minOverlap {
			continue
		}
		out = append(out, Candidate{Statement: s, Confidence: x.score(query, s, overlap)})
	}
	rank(out)
	return out, nil
}

// score prefers vector similarity. Stored vectors embed the replied-to
// text, so they are only comparable to the query when matching on
// search_in_response_to.
func (x *IndexedTextSearch) score(query, s *models.Statement, overlap float64) float64 {
	if x.field == "search_in_response_to" && len(query.Vector) > 0 && len(s.Vector) == len(query.Vector) {
		if s.VectorNorm > 0 && query.VectorNorm > 0 {
			return vector.Similarity(query.Vector, s.Vector)
		}
	}
	return overlap
}

// OverlapRatio returns |A ∩ B| / |A ∪ B| (Jaccard index) over token sets.
func OverlapRatio(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		setB[v] = true
	}

	intersection := 0
	for v := range setB {
		if setA[v] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
