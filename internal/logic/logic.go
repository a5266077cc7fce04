// Package logic contains the adapters that propose candidate responses.
// Each adapter decides on its own whether an input is relevant and, if so,
// searches the corpus for a reply.
package logic

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// ErrNoCandidate is returned by Process when the adapter searched and
// found nothing worth proposing.
var ErrNoCandidate = errors.New("no candidate")

// Adapter proposes a response for an input statement. The returned
// statement carries the adapter's confidence.
type Adapter interface {
	Name() string
	CanProcess(ctx context.Context, input *models.Statement) bool
	Process(ctx context.Context, input *models.Statement, params store.Query) (*models.Statement, error)
}

const (
	BestMatchName  = "best_match"
	ExactMatchName = "exact_match"
	TagMatchName   = "tag_match"
	FallbackName   = "fallback"
)

// Deps are shared by every adapter built from configuration.
type Deps struct {
	Store  store.Store
	Logger *zap.Logger

	DefaultResponse string
	FloorConfidence float64
	MinOverlap      float64
	PageSize        int
}

// Build resolves adapter names in order.
func Build(names []string, deps Deps) ([]Adapter, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, err := build(name, deps)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

func build(name string, deps Deps) (Adapter, error) {
	switch name {
	case BestMatchName:
		return NewBestMatch(deps.Store, deps.MinOverlap, deps.PageSize, deps.Logger)
	case ExactMatchName:
		return NewExactMatch(deps.Store, deps.PageSize)
	case TagMatchName:
		return NewTagMatch(deps.Store, deps.MinOverlap, deps.PageSize, deps.Logger)
	case FallbackName:
		return NewFallback(deps.DefaultResponse, deps.FloorConfidence), nil
	}
	return nil, fmt.Errorf("unknown logic adapter %q", name)
}

// response copies a stored statement into a proposal.
func response(s *models.Statement, confidence float64) *models.Statement {
	out := s.Clone()
	out.Confidence = confidence
	return out
}
