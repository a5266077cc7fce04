package logic

import (
	"context"
	"strings"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/search"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// ExactMatch answers with the most frequent response ever given to
// exactly this text.
type ExactMatch struct {
	search *search.TextSearch
}

func NewExactMatch(s store.Store, pageSize int) (*ExactMatch, error) {
	ts, err := search.NewTextSearch(s, "in_response_to", pageSize)
	if err != nil {
		return nil, err
	}
	return &ExactMatch{search: ts}, nil
}

func (e *ExactMatch) Name() string { return ExactMatchName }

func (e *ExactMatch) CanProcess(_ context.Context, input *models.Statement) bool {
	return strings.TrimSpace(input.Text) != ""
}

func (e *ExactMatch) Process(ctx context.Context, input *models.Statement, params store.Query) (*models.Statement, error) {
	candidates, err := e.search.Search(ctx, input, params)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}
	return response(candidates[0].Statement, 1.0), nil
}
