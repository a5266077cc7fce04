// Package trainer loads conversations into the corpus without going through
// response selection.
package trainer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/preprocess"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
	"github.com/iammorganparry/clive/apps/learnbot/internal/tagging"
)

// TrainingConversation is the conversation id given to trained statements.
const TrainingConversation = "training"

// ListTrainer stores each line of a conversation as a reply to the line
// before it.
type ListTrainer struct {
	store         store.Store
	annotator     annotation.Annotator
	indexer       *tagging.Indexer
	preprocessors []preprocess.Func
	logger        *zap.Logger
}

func NewListTrainer(s store.Store, annotator annotation.Annotator, preprocessors []preprocess.Func, logger *zap.Logger) *ListTrainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListTrainer{
		store:         s,
		annotator:     annotator,
		indexer:       tagging.NewIndexer(annotator),
		preprocessors: preprocessors,
		logger:        logger,
	}
}

// Train stores conversation and returns how many statements were written.
// Pairs already in the corpus are left as they are.
func (t *ListTrainer) Train(ctx context.Context, conversation []string, tags []string) (int, error) {
	var stmts []*models.Statement
	var prev *models.Statement

	for _, line := range conversation {
		s := models.NewStatement(line)
		s = preprocess.Apply(s, t.preprocessors)
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		s.Conversation = TrainingConversation
		s.AddTags(tags...)

		idx, err := t.indexer.Index(ctx, s.Text)
		if err != nil {
			return 0, fmt.Errorf("index %q: %w", s.Text, err)
		}
		s.SearchText = idx

		if prev != nil {
			s.InResponseTo = prev.Text
			s.SearchInResponseTo = prev.SearchText
			doc, err := t.annotator.Annotate(ctx, prev.Text)
			if err != nil {
				return 0, fmt.Errorf("annotate %q: %w", prev.Text, err)
			}
			s.Vector = doc.Vector
			s.VectorNorm = doc.VectorNorm
		}
		stmts = append(stmts, s)
		prev = s
	}

	if err := t.store.CreateMany(ctx, stmts); err != nil {
		return 0, err
	}
	t.logger.Debug("trained conversation", zap.Int("statements", len(stmts)))
	return len(stmts), nil
}

// TrainCorpus trains every conversation of every corpus, tagging them with
// the corpus categories.
func (t *ListTrainer) TrainCorpus(ctx context.Context, corpora []Corpus) (*models.TrainResponse, error) {
	resp := &models.TrainResponse{}
	for _, c := range corpora {
		for _, conv := range c.Conversations {
			n, err := t.Train(ctx, conv, c.Categories)
			if err != nil {
				return resp, fmt.Errorf("train %s: %w", c.Path, err)
			}
			resp.Conversations++
			resp.Statements += n
		}
		t.logger.Info("trained corpus",
			zap.String("path", c.Path),
			zap.Int("conversations", len(c.Conversations)),
		)
	}
	return resp, nil
}
