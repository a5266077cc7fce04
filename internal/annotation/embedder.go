package annotation

import (
	"context"
	"fmt"

	"github.com/iammorganparry/clive/apps/learnbot/internal/vector"
)

// Embedder produces a vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embeddedAnnotator struct {
	base     Annotator
	embedder Embedder
}

// WithEmbedder returns an Annotator whose vectors come from embedder
// instead of the annotation service.
func WithEmbedder(base Annotator, embedder Embedder) Annotator {
	if embedder == nil {
		return base
	}
	return &embeddedAnnotator{base: base, embedder: embedder}
}

// Unwrap returns the annotator underneath WithEmbedder, or a itself. Callers
// that only read tokens use it to skip the embedding call.
func Unwrap(a Annotator) Annotator {
	if e, ok := a.(*embeddedAnnotator); ok {
		return e.base
	}
	return a
}

func (a *embeddedAnnotator) Annotate(ctx context.Context, text string) (*Document, error) {
	doc, err := a.base.Annotate(ctx, text)
	if err != nil {
		return nil, err
	}
	vec, err := a.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", ErrAnnotation, err)
	}
	doc.Vector = vec
	doc.VectorNorm = vector.Norm(vec)
	return doc, nil
}
