package spelling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation/annotationtest"
)

type fakeDict struct {
	known       map[string]bool
	corrections map[string]string
	suggestions map[string][]string
	candidates  map[string][]string
	asked       []string
	err         error
}

func (d *fakeDict) IsCorrect(_ context.Context, w string) (bool, error) {
	d.asked = append(d.asked, w)
	return d.known[w], d.err
}

func (d *fakeDict) Suggestions(_ context.Context, w string) ([]string, error) {
	return d.suggestions[w], nil
}

func (d *fakeDict) Correction(_ context.Context, w string) (string, error) {
	return d.corrections[w], nil
}

func (d *fakeDict) Candidates(_ context.Context, w string) ([]string, error) {
	return d.candidates[w], nil
}

func newDict() *fakeDict {
	return &fakeDict{
		known: map[string]bool{"I": true, "pizza": true, "the": true, "cat": true, "like": true,
			"tehran": true, "is": true, "capital": true},
		corrections: map[string]string{
			"lik":   "like",
			"lcik":  "lick",
			"cta":   "zzz",
			"teh":   "the",
			"helo":  "hello",
			"paris": "Paris",
			"qwrt":  "qwerty",
		},
		suggestions: map[string][]string{
			"lik":   {"like", "lick"},
			"lcik":  {"like", "lick"},
			"cta":   {"cat", "act"},
			"dgo":   {"dog"},
			"teh":   {"the"},
			"helo":  {"hello"},
			"paris": {"Paris"},
			"qwrt":  {"quart"},
		},
		candidates: map[string][]string{
			"dgo": {"dog", "ego"},
		},
	}
}

func TestCorrect(t *testing.T) {
	vocab := map[string]bool{"i": true, "pizza": true, "the": true, "cat": true, "like": true, "dgo": true, "qwrt": true}

	tests := []struct {
		name        string
		in          string
		want        string
		wantChanged bool
	}{
		{"correction equals top suggestion", "I lik pizza", "I like pizza", true},
		{"correction among suggestions", "I lcik pizza", "I lick pizza", true},
		{"out of vocabulary takes top suggestion", "the cta", "the cat", true},
		{"top suggestion among statistical candidates", "the dgo", "the dog", true},
		{"no trustworthy correction", "the qwrt", "the qwrt", false},
		{"repeated misspelling replaced per occurrence", "teh cat teh", "the cat the", true},
		{"whole words only", "tehran is teh capital", "tehran is the capital", true},
		{"case-only change is not a change", "paris", "Paris", false},
		{"correct text untouched", "I like pizza", "I like pizza", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCorrector(newDict(), &annotationtest.Fake{Vocabulary: vocab}, nil)
			got, changed, err := c.Correct(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestCorrectSkipsApostrophesAndPunctuation(t *testing.T) {
	d := newDict()
	c := NewCorrector(d, &annotationtest.Fake{}, nil)

	got, changed, err := c.Correct(context.Background(), "I can't, 42!")
	require.NoError(t, err)
	assert.Equal(t, "I can't, 42!", got)
	assert.False(t, changed)
	assert.Equal(t, []string{"I"}, d.asked)
}

func TestCorrectDictionaryError(t *testing.T) {
	d := newDict()
	d.err = errors.New("offline")
	c := NewCorrector(d, &annotationtest.Fake{}, nil)

	got, changed, err := c.Correct(context.Background(), "helo")
	assert.Error(t, err)
	assert.Equal(t, "helo", got)
	assert.False(t, changed)
}

func TestHTTPDictionary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		word := r.URL.Query().Get("word")
		switch r.URL.Path {
		case "/check":
			json.NewEncoder(w).Encode(map[string]bool{"correct": word == "hello"})
		case "/suggest":
			json.NewEncoder(w).Encode(map[string][]string{"suggestions": {"hello", "hell"}})
		case "/correction":
			json.NewEncoder(w).Encode(map[string]string{"correction": "hello"})
		case "/candidates":
			json.NewEncoder(w).Encode(map[string][]string{"candidates": {"hello"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewHTTPDictionary(srv.URL, time.Second)
	ctx := context.Background()

	ok, err := d.IsCorrect(ctx, "hello")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.IsCorrect(ctx, "helo wrld")
	require.NoError(t, err)
	assert.False(t, ok)

	sugg, err := d.Suggestions(ctx, "helo")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "hell"}, sugg)

	corr, err := d.Correction(ctx, "helo")
	require.NoError(t, err)
	assert.Equal(t, "hello", corr)

	cands, err := d.Candidates(ctx, "helo")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, cands)
}
