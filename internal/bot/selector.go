package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/logic"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// quorum is the number of candidates from which agreement between
// adapters can override the single most confident one.
const quorum = 3

const (
	modeDirect = "direct"
	modeVoting = "voting"
)

type candidate struct {
	adapter   string
	statement *models.Statement
}

type resultOption struct {
	candidate
	count int
}

// GenerateResponse asks every adapter for a candidate and selects one.
// The returned statement is new: its text comes from the winner, it
// replies to input and carries the bot persona.
func (b *Bot) GenerateResponse(ctx context.Context, input *models.Statement, params store.Query) (*models.Statement, error) {
	candidates, err := b.collect(ctx, input, params)
	if err != nil {
		return nil, err
	}
	best, mode, ok := selectCandidate(candidates)
	if !ok {
		return nil, fmt.Errorf("%w: every adapter declined %q", ErrAdapterConfiguration, input.Text)
	}
	b.metrics.RecordResponse(best.adapter, mode)

	response := models.NewStatement(best.statement.Text)
	response.InResponseTo = input.Text
	response.Conversation = input.Conversation
	response.Persona = b.Persona()
	response.Confidence = best.statement.Confidence
	if best.statement.HasTag(models.TagNewResponse) {
		response.AddTags(models.TagNewResponse)
	}
	return response, nil
}

// collect runs the adapters in order. An adapter that fails is logged and
// treated as having no candidate.
func (b *Bot) collect(ctx context.Context, input *models.Statement, params store.Query) ([]candidate, error) {
	var out []candidate
	for _, a := range b.adapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !a.CanProcess(ctx, input) {
			b.logger.Debug("not processing the statement", zap.String("adapter", a.Name()))
			b.metrics.RecordAdapter(a.Name(), "declined")
			continue
		}

		s, err := a.Process(ctx, input, params)
		if errors.Is(err, logic.ErrNoCandidate) {
			b.metrics.RecordAdapter(a.Name(), "declined")
			continue
		}
		if err != nil {
			b.logger.Warn("logic adapter failed", zap.String("adapter", a.Name()), zap.Error(err))
			b.metrics.RecordAdapter(a.Name(), "error")
			continue
		}

		b.logger.Info("candidate selected",
			zap.String("adapter", a.Name()),
			zap.String("text", s.Text),
			zap.Float64("confidence", s.Confidence),
		)
		b.metrics.RecordAdapter(a.Name(), "candidate")
		out = append(out, candidate{adapter: a.Name(), statement: s})
	}
	return out, nil
}

// selectCandidate keeps the most confident candidate, the first one on
// ties. With at least quorum candidates, a (text, in_response_to) pair
// proposed by more adapters than any other replaces it, provided more
// than one adapter proposed it. Equal-sized groups go to the first seen.
func selectCandidate(cs []candidate) (candidate, string, bool) {
	if len(cs) == 0 {
		return candidate{}, "", false
	}

	best := cs[0]
	for _, c := range cs[1:] {
		if c.statement.Confidence > best.statement.Confidence {
			best = c
		}
	}
	if len(cs) < quorum {
		return best, modeDirect, true
	}

	var order []string
	groups := map[string]*resultOption{}
	for _, c := range cs {
		key := c.statement.Text + ":" + c.statement.InResponseTo
		g, ok := groups[key]
		if !ok {
			groups[key] = &resultOption{candidate: c, count: 1}
			order = append(order, key)
			continue
		}
		g.count++
		if g.statement.Confidence < c.statement.Confidence {
			g.candidate = c
		}
	}

	mostCommon := groups[order[0]]
	for _, key := range order[1:] {
		if g := groups[key]; g.count > mostCommon.count {
			mostCommon = g
		}
	}
	if mostCommon.count > 1 {
		best = mostCommon.candidate
	}
	return best, modeVoting, true
}
