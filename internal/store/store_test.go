package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

func TestWordsPattern(t *testing.T) {
	assert.Equal(t, "", WordsPattern("   "))
	assert.Equal(t, `(?i)\b(?:a\.b|c)\b`, WordsPattern("a.b c"))

	ok, err := regexpMatch(WordsPattern("NOUN:cat"), "VERB:see NOUN:cat")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = regexpMatch(WordsPattern("cat"), "category")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, []SortField{{Field: "created_at", Desc: true}, {Field: "count"}}, ParseSort("-created_at, count,"))
	assert.Nil(t, ParseSort(""))
}

func TestQueryMerge(t *testing.T) {
	base := Query{ExcludeBotPersona: true, Tags: []string{"a"}, PageSize: 10}
	out := base.Merge(Query{Tags: []string{"b"}, Text: "x", PageSize: 5})

	assert.True(t, out.ExcludeBotPersona)
	assert.Equal(t, []string{"a", "b"}, out.Tags)
	assert.Equal(t, []string{"a"}, base.Tags)
	assert.Equal(t, "x", out.Text)
	assert.Equal(t, 5, out.Limit())
	assert.Equal(t, DefaultPageSize, Query{}.Limit())
}

func TestMergeFunction(t *testing.T) {
	now := time.Now()
	existing := &models.Statement{
		ID: "1", Text: "hi", Count: 2, Tags: []string{"a"},
		Conversation: "c1", Vector: []float32{1}, CreatedAt: now.Add(-time.Hour),
	}
	incoming := &models.Statement{
		Text: "hi", Tags: []string{"b"}, Conversation: "c2",
		Vector: []float32{2}, Persona: "p", Confidence: 0.7, CreatedAt: now,
	}

	out := Merge(existing, incoming, LearnPolicy, now)
	assert.Equal(t, "1", out.ID)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, []string{"a", "b"}, out.Tags)
	assert.Equal(t, "c1", out.Conversation)
	assert.Equal(t, []float32{1}, out.Vector)
	assert.Equal(t, existing.CreatedAt, out.CreatedAt)
	assert.Equal(t, "p", out.Persona)
	assert.Zero(t, out.Confidence)

	replaced := Merge(existing, incoming, MergePolicy{MatchText: true, ReplaceTags: true}, now)
	assert.Equal(t, []string{"b"}, replaced.Tags)
	assert.Equal(t, "c2", replaced.Conversation)
}

func TestBuildSelectGroupSkipsLimit(t *testing.T) {
	q, args, err := buildSelect(Query{GroupBy: "text", Text: "x"})
	require.NoError(t, err)
	assert.NotContains(t, q, "LIMIT")
	assert.Equal(t, []any{"x"}, args)

	q, args, err = buildSelect(Query{Collection: CollectionLatest, PageSize: 1})
	require.NoError(t, err)
	assert.Contains(t, q, "FROM latest_responses")
	assert.Equal(t, []any{1}, args)
}
