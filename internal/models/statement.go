package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// BotPersonaPrefix marks personas authored by the bot itself.
const BotPersonaPrefix = "bot:"

// Control tags steer the learning path of a single exchange.
const (
	TagSkipLearning      = "skipLearning"
	TagLearnResponseOnly = "learnResponseOnly"
	TagNewResponse       = "newResponse"
)

// ControlTags are consumed by the engine and never treated as topical tags.
var ControlTags = []string{TagSkipLearning, TagLearnResponseOnly, TagNewResponse}

// Statement is a single utterance in the corpus. Text, CreatedAt,
// SearchInResponseTo, Vector and VectorNorm are write-once: merges
// never overwrite them on an existing record.
type Statement struct {
	ID                 string    `json:"id,omitempty"`
	Text               string    `json:"text"`
	SearchText         string    `json:"searchText,omitempty"`
	InResponseTo       string    `json:"inResponseTo,omitempty"`
	SearchInResponseTo string    `json:"searchInResponseTo,omitempty"`
	Conversation       string    `json:"conversation,omitempty"`
	Persona            string    `json:"persona,omitempty"`
	Tags               []string  `json:"tags"`
	Vector             []float32 `json:"-"`
	VectorNorm         float64   `json:"-"`
	Confidence         float64   `json:"confidence"`
	Count              int       `json:"count,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	LastUpdatedAt      time.Time `json:"lastUpdatedAt"`
}

// NewStatement returns a statement stamped with the current time.
func NewStatement(text string) *Statement {
	now := time.Now().UTC()
	return &Statement{
		Text:          text,
		Tags:          []string{},
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// Validate checks the fields the store relies on.
func (s *Statement) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return errors.New("statement text is required")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1], got %f", s.Confidence)
	}
	return nil
}

// AddTags appends tags not already present, preserving order.
func (s *Statement) AddTags(tags ...string) {
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(s.Tags, t) {
			continue
		}
		s.Tags = append(s.Tags, t)
	}
}

func (s *Statement) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// RemoveTag deletes every occurrence of tag.
func (s *Statement) RemoveTag(tag string) {
	s.Tags = slices.DeleteFunc(s.Tags, func(t string) bool { return t == tag })
}

// TopicTags returns the tags that are not control tags.
func (s *Statement) TopicTags() []string {
	var out []string
	for _, t := range s.Tags {
		if !slices.Contains(ControlTags, t) {
			out = append(out, t)
		}
	}
	return out
}

// IsBot reports whether the statement was authored by a bot persona.
func (s *Statement) IsBot() bool {
	return strings.HasPrefix(s.Persona, BotPersonaPrefix)
}

// Clone returns a deep copy.
func (s *Statement) Clone() *Statement {
	c := *s
	c.Tags = slices.Clone(s.Tags)
	c.Vector = slices.Clone(s.Vector)
	return &c
}

// MergeTags returns the set union of a and b, a's order first.
func MergeTags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, t := range append(slices.Clone(a), b...) {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
