package search

import (
	"context"
	"fmt"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// TextSearch finds statements whose field equals the query text exactly.
// Every hit has confidence 1.
type TextSearch struct {
	store    store.Store
	field    string
	pageSize int
}

func NewTextSearch(s store.Store, field string, pageSize int) (*TextSearch, error) {
	switch field {
	case "":
		field = "text"
	case "text", "in_response_to":
	default:
		return nil, fmt.Errorf("text_search cannot match on %q", field)
	}
	return &TextSearch{store: s, field: field, pageSize: pageSize}, nil
}

func (t *TextSearch) Name() string { return TextSearchName }

func (t *TextSearch) Search(ctx context.Context, query *models.Statement, extra store.Query) ([]Candidate, error) {
	q := store.Query{
		Sort: []store.SortField{
			{Field: "count", Desc: true},
			{Field: "last_updated_at", Desc: true},
		},
		GroupBy:  "text",
		PageSize: t.pageSize,
	}.Merge(extra)
	if t.field == "in_response_to" {
		q.InResponseTo = query.Text
	} else {
		q.Text = query.Text
	}

	var out []Candidate
	for s, err := range t.store.Filter(ctx, q) {
		if err != nil {
			return nil, fmt.Errorf("text search: %w", err)
		}
		out = append(out, Candidate{Statement: s, Confidence: 1})
	}
	return out, nil
}
