// Package bot ties annotation, spelling, logic adapters and the store into
// the respond-and-learn loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation"
	"github.com/iammorganparry/clive/apps/learnbot/internal/logic"
	"github.com/iammorganparry/clive/apps/learnbot/internal/metrics"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/preprocess"
	"github.com/iammorganparry/clive/apps/learnbot/internal/spelling"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
	"github.com/iammorganparry/clive/apps/learnbot/internal/tagging"
)

var (
	// ErrInput means the request carried no text.
	ErrInput = errors.New("text is required")
	// ErrAdapterConfiguration means no adapter is configured, or none
	// produced a candidate.
	ErrAdapterConfiguration = errors.New("adapter configuration")
	// ErrReadOnly is returned by explicit learning on a read-only bot.
	ErrReadOnly = errors.New("bot is read-only")
)

// DefaultRecentWindow bounds how old the previous bot turn may be for an
// input to be learned as a reply to it.
const DefaultRecentWindow = time.Minute

// Options configure a Bot. Store, Annotator and at least one adapter are
// required.
type Options struct {
	Name      string
	Store     store.Store
	Annotator annotation.Annotator
	// Corrector is optional; nil disables spelling correction.
	Corrector     *spelling.Corrector
	Adapters      []logic.Adapter
	Preprocessors []preprocess.Func
	ReadOnly      bool
	// RecentWindow is passed to GetLatestResponse when resolving the turn
	// an input replies to. Zero means DefaultRecentWindow, negative
	// disables the window.
	RecentWindow time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Bot answers utterances from the corpus and learns from every exchange.
// It holds no per-request state and is safe for concurrent use.
type Bot struct {
	name          string
	store         store.Store
	annotator     annotation.Annotator
	indexer       *tagging.Indexer
	corrector     *spelling.Corrector
	adapters      []logic.Adapter
	preprocessors []preprocess.Func
	readOnly      bool
	recent        time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func New(opts Options) (*Bot, error) {
	if len(opts.Adapters) == 0 {
		return nil, fmt.Errorf("%w: no logic adapters configured", ErrAdapterConfiguration)
	}
	if opts.Store == nil || opts.Annotator == nil {
		return nil, errors.New("bot requires a store and an annotator")
	}
	if opts.Name == "" {
		opts.Name = "learnbot"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RecentWindow == 0 {
		opts.RecentWindow = DefaultRecentWindow
	}
	return &Bot{
		name:          opts.Name,
		store:         opts.Store,
		annotator:     opts.Annotator,
		indexer:       tagging.NewIndexer(opts.Annotator),
		corrector:     opts.Corrector,
		adapters:      opts.Adapters,
		preprocessors: opts.Preprocessors,
		readOnly:      opts.ReadOnly,
		recent:        opts.RecentWindow,
		logger:        opts.Logger.With(zap.String("bot", opts.Name)),
		metrics:       opts.Metrics,
	}, nil
}

func (b *Bot) Name() string { return b.name }

// Persona is the persona stamped on every response.
func (b *Bot) Persona() string { return models.BotPersonaPrefix + b.name }

func (b *Bot) ReadOnly() bool { return b.readOnly }

// Adapters returns the configured adapter names in order.
func (b *Bot) Adapters() []string {
	names := make([]string, len(b.adapters))
	for i, a := range b.adapters {
		names[i] = a.Name()
	}
	return names
}

// GetResponse selects a reply for req and, unless learning is suppressed,
// learns the exchange. Learning failures are logged and never returned.
func (b *Bot) GetResponse(ctx context.Context, req *models.RespondRequest) (*models.Statement, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrInput
	}

	doc, err := b.annotator.Annotate(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("annotate input: %w", err)
	}

	tags := slices.Clone(req.Tags)
	if b.corrector != nil && req.SpellingEnabled() {
		corrected, changed, err := b.corrector.CorrectDocument(ctx, doc)
		switch {
		case err != nil:
			b.logger.Warn("spelling check failed, using input as given", zap.Error(err))
		case corrected != doc.Text:
			doc, err = b.annotator.Annotate(ctx, corrected)
			if err != nil {
				return nil, fmt.Errorf("annotate corrected input: %w", err)
			}
			if changed {
				tags = append(tags, models.TagSkipLearning)
			}
		}
	}

	input := models.NewStatement(doc.Text)
	input.InResponseTo = req.InResponseTo
	input.Conversation = req.Conversation
	input.Persona = req.Persona
	input.Vector = doc.Vector
	input.VectorNorm = doc.VectorNorm
	input.AddTags(tags...)

	input = preprocess.Apply(input, b.preprocessors)
	if err := b.index(ctx, input); err != nil {
		return nil, err
	}

	var params store.Query
	if len(req.SelectionTags) > 0 {
		params.Tags = req.SelectionTags
	}
	response, err := b.GenerateResponse(ctx, input, params)
	if err != nil {
		return nil, err
	}

	if pv := req.PersistValues; pv != nil {
		input.AddTags(pv.Tags...)
		response.AddTags(pv.Tags...)
		if pv.Conversation != "" {
			input.Conversation = pv.Conversation
			response.Conversation = pv.Conversation
		}
		if pv.Persona != "" {
			input.Persona = pv.Persona
			response.Persona = pv.Persona
		}
	}

	// The stored vector of a statement embeds the text it replies to, so
	// the input's own vector must not be learned.
	input.Vector = nil
	input.VectorNorm = 0

	switch {
	case req.BannedFromLearning, b.readOnly:
		b.metrics.RecordLearn("skipped")
	case input.HasTag(models.TagSkipLearning):
		b.logger.Debug("learning skipped", zap.String("text", input.Text))
		b.metrics.RecordLearn("skipped")
	default:
		b.learnExchange(ctx, input, response)
	}
	return response, nil
}

// index fills the derived search fields that are still empty.
func (b *Bot) index(ctx context.Context, s *models.Statement) error {
	if s.SearchText == "" {
		idx, err := b.indexer.Index(ctx, s.Text)
		if err != nil {
			return fmt.Errorf("index text: %w", err)
		}
		s.SearchText = idx
	}
	if s.SearchInResponseTo == "" && s.InResponseTo != "" {
		idx, err := b.indexer.Index(ctx, s.InResponseTo)
		if err != nil {
			return fmt.Errorf("index in_response_to: %w", err)
		}
		s.SearchInResponseTo = idx
	}
	return nil
}
