package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

// DefaultPageSize caps a Filter when the query does not set one.
const DefaultPageSize = 1000

var (
	// ErrEmptyCorpus is returned by Random when no statements exist.
	ErrEmptyCorpus = errors.New("corpus is empty")
	// ErrTransientStorage is returned when a merge keeps losing write
	// conflicts after the retry budget is spent.
	ErrTransientStorage = errors.New("transient storage error")
	// ErrInvalidPolicy is returned for merge policies a collection cannot honour.
	ErrInvalidPolicy = errors.New("invalid merge policy")
)

// Collection selects the statements corpus or the latest-response index.
type Collection int

const (
	CollectionStatements Collection = iota
	CollectionLatest
)

func (c Collection) String() string {
	if c == CollectionLatest {
		return "latest_responses"
	}
	return "statements"
}

// Store is the contract every storage backend implements.
type Store interface {
	// Filter streams the statements matching q. The sequence is finite and
	// can be ranged again to re-run the query. Callers must not issue other
	// store calls from inside the range body.
	Filter(ctx context.Context, q Query) iter.Seq2[*models.Statement, error]
	// MergeUpsert atomically inserts or merges s according to p and returns
	// the persisted record.
	MergeUpsert(ctx context.Context, s *models.Statement, p MergePolicy) (*models.Statement, error)
	// Create inserts s unless a statement with the same text and
	// in_response_to exists, and returns the stored record either way.
	Create(ctx context.Context, s *models.Statement) (*models.Statement, error)
	CreateMany(ctx context.Context, stmts []*models.Statement) error
	Count(ctx context.Context) (int, error)
	Random(ctx context.Context) (*models.Statement, error)
	// Remove deletes every statement with the given text.
	Remove(ctx context.Context, text string) error
	// Drop deletes all statements and the latest-response index.
	Drop(ctx context.Context) error
	Close() error
}

// SortField orders Filter results.
type SortField struct {
	Field string
	Desc  bool
}

// Query is the conjunction of predicates accepted by Filter. Zero values
// disable a predicate.
type Query struct {
	Collection Collection

	Text         string
	InResponseTo string
	Conversation string
	Persona      string
	// ExcludeBotPersona drops statements whose persona starts with "bot:".
	ExcludeBotPersona bool

	// Tags keeps statements carrying any of these tags.
	Tags        []string
	ExcludeTags []string

	ExcludeText      []string
	ExcludeTextWords []string

	// The *Contains fields match any of their space separated words on a
	// case-insensitive word boundary.
	TextContains               string
	SearchTextContains         string
	InResponseToContains       string
	SearchInResponseToContains string

	Sort []SortField
	// GroupBy keeps only the first statement per value of this field,
	// after sorting.
	GroupBy  string
	PageSize int
}

// Limit returns the effective page size.
func (q Query) Limit() int {
	if q.PageSize <= 0 {
		return DefaultPageSize
	}
	return q.PageSize
}

// Merge overlays extra onto q: equality fields and word filters set in
// extra win, tag and exclusion lists are concatenated.
func (q Query) Merge(extra Query) Query {
	out := q
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Text, extra.Text)
	set(&out.InResponseTo, extra.InResponseTo)
	set(&out.Conversation, extra.Conversation)
	set(&out.Persona, extra.Persona)
	set(&out.TextContains, extra.TextContains)
	set(&out.SearchTextContains, extra.SearchTextContains)
	set(&out.InResponseToContains, extra.InResponseToContains)
	set(&out.SearchInResponseToContains, extra.SearchInResponseToContains)
	set(&out.GroupBy, extra.GroupBy)
	out.ExcludeBotPersona = q.ExcludeBotPersona || extra.ExcludeBotPersona
	out.Tags = append(slices.Clone(q.Tags), extra.Tags...)
	out.ExcludeTags = append(slices.Clone(q.ExcludeTags), extra.ExcludeTags...)
	out.ExcludeText = append(slices.Clone(q.ExcludeText), extra.ExcludeText...)
	out.ExcludeTextWords = append(slices.Clone(q.ExcludeTextWords), extra.ExcludeTextWords...)
	if len(extra.Sort) > 0 {
		out.Sort = extra.Sort
	}
	if extra.PageSize > 0 {
		out.PageSize = extra.PageSize
	}
	return out
}

var sortable = map[string]bool{
	"text": true, "in_response_to": true, "conversation": true, "persona": true,
	"count": true, "created_at": true, "last_updated_at": true,
}

var groupable = map[string]bool{
	"text": true, "in_response_to": true, "conversation": true,
	"search_text": true, "search_in_response_to": true, "persona": true,
}

// Validate rejects unknown sort and group fields.
func (q Query) Validate() error {
	for _, s := range q.Sort {
		if !sortable[s.Field] {
			return fmt.Errorf("unknown sort field %q", s.Field)
		}
	}
	if q.GroupBy != "" && !groupable[q.GroupBy] {
		return fmt.Errorf("unknown group field %q", q.GroupBy)
	}
	return nil
}

// ParseSort reads "-created_at,count" style sort expressions; a leading "-"
// means descending.
func ParseSort(expr string) []SortField {
	var out []SortField
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := SortField{Field: strings.TrimPrefix(part, "-"), Desc: strings.HasPrefix(part, "-")}
		out = append(out, f)
	}
	return out
}

// GroupKey returns the value of field used for grouping.
func GroupKey(s *models.Statement, field string) string {
	switch field {
	case "text":
		return s.Text
	case "in_response_to":
		return s.InResponseTo
	case "conversation":
		return s.Conversation
	case "search_text":
		return s.SearchText
	case "search_in_response_to":
		return s.SearchInResponseTo
	case "persona":
		return s.Persona
	}
	return s.ID
}

// WordsPattern builds a case-insensitive regular expression matching any
// of the space separated words of text on word boundaries. It returns ""
// when text has no words.
func WordsPattern(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return `(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`
}

// MergePolicy says how MergeUpsert locates and combines records.
type MergePolicy struct {
	MatchText         bool
	MatchInResponseTo bool
	MatchConversation bool
	// ReplaceTags overwrites tags instead of taking the union.
	ReplaceTags bool
	Target      Collection
	// ProtectWriteOnce keeps created_at, conversation, search_in_response_to
	// and the vector of an existing record.
	ProtectWriteOnce bool
}

// LearnPolicy merges a learned exchange into the corpus.
var LearnPolicy = MergePolicy{
	MatchText:         true,
	MatchInResponseTo: true,
	Target:            CollectionStatements,
	ProtectWriteOnce:  true,
}

// LatestPolicy overwrites the latest bot turn of a conversation.
var LatestPolicy = MergePolicy{
	MatchConversation: true,
	ReplaceTags:       true,
	Target:            CollectionLatest,
}

// Validate checks the policy against its target collection.
func (p MergePolicy) Validate() error {
	if p.Target == CollectionLatest {
		if !p.MatchConversation || p.MatchText || p.MatchInResponseTo {
			return fmt.Errorf("%w: latest responses are keyed by conversation only", ErrInvalidPolicy)
		}
		return nil
	}
	if !p.MatchText && !p.MatchInResponseTo && !p.MatchConversation {
		return fmt.Errorf("%w: no match fields", ErrInvalidPolicy)
	}
	return nil
}

// NaturalKey reports whether the policy matches exactly on the unique
// (text, in_response_to) pair.
func (p MergePolicy) NaturalKey() bool {
	return p.Target == CollectionStatements && p.MatchText && p.MatchInResponseTo && !p.MatchConversation
}

// Merge combines an incoming statement into an existing record the way
// MergeUpsert does: count is incremented, tags are unioned or replaced,
// write-once fields are kept when protected, everything else is taken
// from incoming.
func Merge(existing, incoming *models.Statement, p MergePolicy, now time.Time) *models.Statement {
	out := incoming.Clone()
	out.ID = existing.ID
	out.Count = existing.Count + 1
	out.LastUpdatedAt = now
	if out.CreatedAt.IsZero() {
		out.CreatedAt = existing.CreatedAt
	}
	if !p.ReplaceTags {
		out.Tags = models.MergeTags(existing.Tags, incoming.Tags)
	}
	if p.ProtectWriteOnce {
		out.Text = existing.Text
		out.CreatedAt = existing.CreatedAt
		out.Conversation = existing.Conversation
		out.SearchInResponseTo = existing.SearchInResponseTo
		out.Vector = existing.Vector
		out.VectorNorm = existing.VectorNorm
	}
	out.Confidence = 0
	return out
}

// Collect drains a Filter sequence into a slice.
func Collect(seq iter.Seq2[*models.Statement, error]) ([]*models.Statement, error) {
	var out []*models.Statement
	for s, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// First returns the first statement of seq, or nil when it is empty.
func First(seq iter.Seq2[*models.Statement, error]) (*models.Statement, error) {
	for s, err := range seq {
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}
