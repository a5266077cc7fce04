package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/preprocess"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// learnExchange records that input answers the bot's previous turn, that
// response answers input, and that response is now the conversation's
// latest bot turn. Failures are logged and counted.
func (b *Bot) learnExchange(ctx context.Context, input, response *models.Statement) {
	if !input.HasTag(models.TagLearnResponseOnly) && !response.HasTag(models.TagLearnResponseOnly) {
		b.learnLogged(ctx, input, nil)
	} else {
		input.RemoveTag(models.TagLearnResponseOnly)
	}

	latest := response.Clone()
	if !input.HasTag(models.TagNewResponse) && !response.HasTag(models.TagNewResponse) {
		b.learnLogged(ctx, response, input)
		latest.Tags = []string{}
	} else {
		latest.Tags = []string{models.TagNewResponse}
	}

	if _, err := b.store.MergeUpsert(ctx, latest, store.LatestPolicy); err != nil {
		b.logger.Error("failed to record latest response",
			zap.String("conversation", latest.Conversation),
			zap.Error(err),
		)
		b.metrics.RecordLearn("error")
	}
}

func (b *Bot) learnLogged(ctx context.Context, s, previous *models.Statement) {
	out, err := b.LearnResponse(ctx, s, previous)
	switch {
	case err != nil:
		b.logger.Error("failed to learn response", zap.String("text", s.Text), zap.Error(err))
		b.metrics.RecordLearn("error")
	case out == nil:
		b.metrics.RecordLearn("skipped")
	default:
		b.metrics.RecordLearn("success")
	}
}

// LearnResponse stores s as a reply to previous. When previous is nil it
// falls back to s.InResponseTo, then to the conversation's latest bot turn
// within the recent window. Nothing is stored, and nil is returned, when
// no previous turn is found or the previous turn was a default answer.
// s itself is not modified.
func (b *Bot) LearnResponse(ctx context.Context, s, previous *models.Statement) (*models.Statement, error) {
	st := s.Clone()
	if st.SearchText == "" {
		idx, err := b.indexer.Index(ctx, st.Text)
		if err != nil {
			return nil, fmt.Errorf("index text: %w", err)
		}
		st.SearchText = idx
	}

	if previous == nil && st.InResponseTo != "" {
		previous = &models.Statement{Text: st.InResponseTo, SearchText: st.SearchInResponseTo}
	}
	if previous == nil {
		latest, err := b.GetLatestResponse(ctx, st.Conversation, LatestOptions{
			FromBot: true,
			Recent:  b.recent,
		})
		if err != nil {
			return nil, err
		}
		previous = latest
	}
	if previous == nil || previous.HasTag(models.TagNewResponse) {
		return nil, nil
	}

	st.InResponseTo = previous.Text
	if st.SearchInResponseTo == "" {
		st.SearchInResponseTo = previous.SearchText
	}
	if st.SearchInResponseTo == "" {
		idx, err := b.indexer.Index(ctx, previous.Text)
		if err != nil {
			return nil, fmt.Errorf("index in_response_to: %w", err)
		}
		st.SearchInResponseTo = idx
	}
	if len(st.Vector) == 0 {
		doc, err := b.annotator.Annotate(ctx, previous.Text)
		if err != nil {
			return nil, fmt.Errorf("annotate previous statement: %w", err)
		}
		st.Vector = doc.Vector
		st.VectorNorm = doc.VectorNorm
	}

	b.logger.Info("learning response",
		zap.String("text", st.Text),
		zap.String("in_response_to", st.InResponseTo),
	)
	st = preprocess.Apply(st, b.preprocessors)
	st.Confidence = 0
	return b.store.MergeUpsert(ctx, st, store.LearnPolicy)
}

// Learn stores an explicitly taught statement. Unlike learning inside
// GetResponse, failures are returned.
func (b *Bot) Learn(ctx context.Context, req *models.LearnRequest) (*models.Statement, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrInput
	}
	if b.readOnly {
		return nil, ErrReadOnly
	}
	s := models.NewStatement(req.Text)
	s.InResponseTo = req.InResponseTo
	s.Conversation = req.Conversation
	s.Persona = req.Persona
	s.AddTags(req.Tags...)
	return b.LearnResponse(ctx, s, nil)
}

// LatestOptions select what GetLatestResponse looks at.
type LatestOptions struct {
	// FromBot restricts the lookup to this bot's turns.
	FromBot bool
	// Recent is the maximum age of the result; zero or less disables the
	// check.
	Recent time.Duration
	// UseStatements searches the corpus instead of the latest-response
	// index.
	UseStatements bool
}

// GetLatestResponse returns the most recent statement of a conversation,
// or nil when there is none or it is older than opts.Recent.
func (b *Bot) GetLatestResponse(ctx context.Context, conversation string, opts LatestOptions) (*models.Statement, error) {
	q := store.Query{
		Collection:   store.CollectionLatest,
		Conversation: conversation,
		Sort:         []store.SortField{{Field: "created_at", Desc: true}},
	}
	if opts.UseStatements {
		q.Collection = store.CollectionStatements
	}
	if opts.FromBot {
		q.Persona = b.Persona()
	}
	if conversation != "" {
		q.PageSize = 1
	}

	var latest *models.Statement
	for s, err := range b.store.Filter(ctx, q) {
		if err != nil {
			return nil, fmt.Errorf("latest response: %w", err)
		}
		// An empty conversation id disables the store predicate, so the
		// match is checked here.
		if s.Conversation == conversation {
			latest = s
			break
		}
	}
	if latest == nil || opts.Recent <= 0 {
		return latest, nil
	}
	if latest.CreatedAt.Before(time.Now().Add(-opts.Recent)) {
		return nil, nil
	}
	return latest, nil
}
