package logic

import (
	"context"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// DefaultResponse is used when no default response is configured.
const DefaultResponse = "I am sorry, but I do not understand."

// Fallback always answers. Its reply is tagged newResponse so the exchange
// is not learned as a real answer.
type Fallback struct {
	text       string
	confidence float64
}

func NewFallback(text string, confidence float64) *Fallback {
	if text == "" {
		text = DefaultResponse
	}
	return &Fallback{text: text, confidence: confidence}
}

func (f *Fallback) Name() string { return FallbackName }

func (f *Fallback) CanProcess(context.Context, *models.Statement) bool { return true }

func (f *Fallback) Process(_ context.Context, input *models.Statement, _ store.Query) (*models.Statement, error) {
	s := models.NewStatement(f.text)
	s.InResponseTo = input.Text
	s.Confidence = f.confidence
	s.AddTags(models.TagNewResponse)
	return s, nil
}
