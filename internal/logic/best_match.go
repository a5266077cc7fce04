package logic

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/search"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// BestMatch looks for stored responses to inputs similar to this one.
type BestMatch struct {
	search *search.IndexedTextSearch
	logger *zap.Logger
}

func NewBestMatch(s store.Store, minOverlap float64, pageSize int, logger *zap.Logger) (*BestMatch, error) {
	x, err := search.NewIndexedTextSearch(s, "search_in_response_to", minOverlap, pageSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BestMatch{search: x, logger: logger}, nil
}

func (b *BestMatch) Name() string { return BestMatchName }

func (b *BestMatch) CanProcess(_ context.Context, input *models.Statement) bool {
	return strings.TrimSpace(input.SearchText) != ""
}

// Process returns the highest ranked response. The input's own text is
// never proposed back.
func (b *BestMatch) Process(ctx context.Context, input *models.Statement, params store.Query) (*models.Statement, error) {
	extra := params.Merge(store.Query{ExcludeText: []string{input.Text}})
	candidates, err := b.search.Search(ctx, input, extra)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}

	best := candidates[0]
	b.logger.Debug("best match",
		zap.String("input", input.Text),
		zap.String("response", best.Statement.Text),
		zap.String("in_response_to", best.Statement.InResponseTo),
		zap.Float64("confidence", best.Confidence),
		zap.Int("candidates", len(candidates)),
	)
	return response(best.Statement, best.Confidence), nil
}
