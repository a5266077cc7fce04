package logic

import (
	"context"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/search"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// TagMatch restricts the indexed search to responses sharing a topic tag
// with the input and scales confidence by how many tags they share.
type TagMatch struct {
	search *search.IndexedTextSearch
	logger *zap.Logger
}

func NewTagMatch(s store.Store, minOverlap float64, pageSize int, logger *zap.Logger) (*TagMatch, error) {
	x, err := search.NewIndexedTextSearch(s, "search_in_response_to", minOverlap, pageSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagMatch{search: x, logger: logger}, nil
}

func (t *TagMatch) Name() string { return TagMatchName }

func (t *TagMatch) CanProcess(_ context.Context, input *models.Statement) bool {
	return len(input.TopicTags()) > 0 && input.SearchText != ""
}

func (t *TagMatch) Process(ctx context.Context, input *models.Statement, params store.Query) (*models.Statement, error) {
	tags := input.TopicTags()
	extra := params.Merge(store.Query{Tags: tags, ExcludeText: []string{input.Text}})
	candidates, err := t.search.Search(ctx, input, extra)
	if err != nil {
		return nil, err
	}

	var best *search.Candidate
	bestScore := -1.0
	for i := range candidates {
		c := &candidates[i]
		score := c.Confidence * tagCoverage(tags, c.Statement)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil || bestScore <= 0 {
		return nil, ErrNoCandidate
	}

	t.logger.Debug("tag match",
		zap.Strings("tags", tags),
		zap.String("response", best.Statement.Text),
		zap.Float64("confidence", bestScore),
	)
	return response(best.Statement, bestScore), nil
}

// tagCoverage is the share of tags carried by s.
func tagCoverage(tags []string, s *models.Statement) float64 {
	if len(tags) == 0 {
		return 0
	}
	n := 0
	for _, tag := range tags {
		if s.HasTag(tag) {
			n++
		}
	}
	return float64(n) / float64(len(tags))
}
