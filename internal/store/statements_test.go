package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

func setupTestStore(t *testing.T) (*store.StatementStore, func()) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "open test db")
	s := store.NewStatementStore(db, store.Options{MaxRetries: 10, RetryDelay: time.Millisecond})
	return s, func() { s.Close() }
}

func stmt(text, inResponseTo string, tags ...string) *models.Statement {
	s := models.NewStatement(text)
	s.InResponseTo = inResponseTo
	s.SearchText = text
	s.Conversation = "conv-1"
	s.Persona = "user"
	s.AddTags(tags...)
	return s
}

func TestMergeUpsertLearnPolicy(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("first merge inserts with count 1", func(t *testing.T) {
		out, err := s.MergeUpsert(ctx, stmt("Hello", "Hi", "greeting"), store.LearnPolicy)
		require.NoError(t, err)
		assert.NotEmpty(t, out.ID)
		assert.Equal(t, 1, out.Count)
		assert.Equal(t, []string{"greeting"}, out.Tags)
	})

	t.Run("repeat merges increment count on one record", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := s.MergeUpsert(ctx, stmt("Hello", "Hi"), store.LearnPolicy)
			require.NoError(t, err)
		}
		all, err := store.Collect(s.Filter(ctx, store.Query{Text: "Hello"}))
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 4, all[0].Count)
	})

	t.Run("tags are unioned", func(t *testing.T) {
		out, err := s.MergeUpsert(ctx, stmt("Hello", "Hi", "polite", "greeting"), store.LearnPolicy)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"greeting", "polite"}, out.Tags)
	})

	t.Run("write-once fields survive later merges", func(t *testing.T) {
		first := stmt("Bye", "See you")
		first.Vector = []float32{1, 0}
		first.VectorNorm = 1
		first.SearchInResponseTo = "see you"
		first.CreatedAt = time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
		orig, err := s.MergeUpsert(ctx, first, store.LearnPolicy)
		require.NoError(t, err)

		second := stmt("Bye", "See you")
		second.Vector = []float32{0, 1}
		second.VectorNorm = 1
		second.SearchInResponseTo = "changed"
		second.Conversation = "conv-2"
		second.Persona = "someone"
		out, err := s.MergeUpsert(ctx, second, store.LearnPolicy)
		require.NoError(t, err)

		assert.Equal(t, orig.ID, out.ID)
		assert.Equal(t, []float32{1, 0}, out.Vector)
		assert.Equal(t, "see you", out.SearchInResponseTo)
		assert.Equal(t, "conv-1", out.Conversation)
		assert.True(t, orig.CreatedAt.Equal(out.CreatedAt))
		assert.Equal(t, "someone", out.Persona)
		assert.False(t, out.LastUpdatedAt.Before(orig.LastUpdatedAt))
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		_, err := s.MergeUpsert(ctx, stmt("", "x"), store.LearnPolicy)
		assert.Error(t, err)
	})
}

func TestMergeUpsertConcurrent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.MergeUpsert(ctx, stmt("ping", "pong"), store.LearnPolicy)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			p := store.MergePolicy{MatchText: true, Target: store.CollectionStatements, ProtectWriteOnce: true}
			_, err := s.MergeUpsert(ctx, stmt("solo", ""), p)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for text, want := range map[string]int{"ping": workers, "solo": workers} {
		all, err := store.Collect(s.Filter(ctx, store.Query{Text: text}))
		require.NoError(t, err)
		require.Len(t, all, 1, text)
		assert.Equal(t, want, all[0].Count, text)
	}
}

func TestFilterDuringMerges(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	const writers = 8
	const merges = 25
	done := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, writers*merges)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < merges; j++ {
				_, err := s.MergeUpsert(ctx, stmt("ping", "pong", fmt.Sprintf("w%d", i)), store.LearnPolicy)
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}

	readErr := make(chan error, 1)
	reads := 0
	go func() {
		defer close(readErr)
		for {
			select {
			case <-done:
				return
			default:
			}
			all, err := store.Collect(s.Filter(ctx, store.Query{InResponseTo: "pong"}))
			if err != nil {
				readErr <- err
				return
			}
			reads++
			for _, st := range all {
				if st.Text != "ping" || st.Count < 1 || len(st.Tags) == 0 {
					readErr <- fmt.Errorf("partial record: %+v", st)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(done)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, <-readErr)
	assert.Positive(t, reads)

	all, err := store.Collect(s.Filter(ctx, store.Query{InResponseTo: "pong"}))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, writers*merges, all[0].Count)
	assert.Len(t, all[0].Tags, writers)
}

func TestMergeUpsertOptimisticKey(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	p := store.MergePolicy{MatchText: true, MatchConversation: true, Target: store.CollectionStatements}

	_, err := s.MergeUpsert(ctx, stmt("hey", "", "a"), p)
	require.NoError(t, err)

	replace := p
	replace.ReplaceTags = true
	out, err := s.MergeUpsert(ctx, stmt("hey", "", "b"), replace)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, []string{"b"}, out.Tags)

	t.Run("merging by id", func(t *testing.T) {
		byID := stmt("hey", "", "c")
		byID.ID = out.ID
		merged, err := s.MergeUpsert(ctx, byID, p)
		require.NoError(t, err)
		assert.Equal(t, 3, merged.Count)
		assert.ElementsMatch(t, []string{"b", "c"}, merged.Tags)
	})
}

func TestMergePolicyValidation(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := s.MergeUpsert(context.Background(), stmt("x", ""), store.MergePolicy{Target: store.CollectionLatest, MatchText: true})
	assert.True(t, errors.Is(err, store.ErrInvalidPolicy))

	_, err = s.MergeUpsert(context.Background(), stmt("x", ""), store.MergePolicy{})
	assert.True(t, errors.Is(err, store.ErrInvalidPolicy))
}

func TestLatestResponses(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	first := stmt("first reply", "hi", "newResponse")
	first.Persona = "bot:learnbot"
	_, err := s.MergeUpsert(ctx, first, store.LatestPolicy)
	require.NoError(t, err)

	second := stmt("second reply", "how are you")
	second.Persona = "bot:learnbot"
	out, err := s.MergeUpsert(ctx, second, store.LatestPolicy)
	require.NoError(t, err)
	assert.Equal(t, "second reply", out.Text)
	assert.Empty(t, out.Tags, "tags are replaced, not merged")

	latest, err := store.Collect(s.Filter(ctx, store.Query{Collection: store.CollectionLatest, Conversation: "conv-1"}))
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "second reply", latest[0].Text)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "latest index does not feed the corpus")
}

func TestFilter(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seed := []*models.Statement{
		stmt("The weather is nice", "How is the weather", "weather"),
		stmt("I like pizza", "What food do you like", "food"),
		stmt("Pizza is great", "Tell me about pizza", "food"),
		stmt("Hello there", ""),
	}
	bot := stmt("I am a bot", "Who are you")
	bot.Persona = "bot:learnbot"
	seed = append(seed, bot)
	require.NoError(t, s.CreateMany(ctx, seed))

	texts := func(t *testing.T, q store.Query) []string {
		t.Helper()
		all, err := store.Collect(s.Filter(ctx, q))
		require.NoError(t, err)
		out := make([]string, 0, len(all))
		for _, st := range all {
			out = append(out, st.Text)
		}
		return out
	}

	tests := []struct {
		name string
		q    store.Query
		want []string
	}{
		{"word boundary is case insensitive", store.Query{TextContains: "PIZZA"}, []string{"I like pizza", "Pizza is great"}},
		{"partial words do not match", store.Query{TextContains: "pizz"}, []string{}},
		{"any word matches", store.Query{SearchTextContains: "weather hello"}, []string{"The weather is nice", "Hello there"}},
		{"in_response_to contains", store.Query{InResponseToContains: "food"}, []string{"I like pizza"}},
		{"tags include", store.Query{Tags: []string{"food"}}, []string{"I like pizza", "Pizza is great"}},
		{"tags exclude", store.Query{ExcludeTags: []string{"food", "weather"}, ExcludeBotPersona: true}, []string{"Hello there"}},
		{"exclude bot persona", store.Query{ExcludeBotPersona: true, TextContains: "I"}, []string{"I like pizza"}},
		{"exclude text", store.Query{Tags: []string{"food"}, ExcludeText: []string{"I like pizza"}}, []string{"Pizza is great"}},
		{"exclude text words", store.Query{Tags: []string{"food"}, ExcludeTextWords: []string{"great"}}, []string{"I like pizza"}},
		{"sort descending", store.Query{Tags: []string{"food"}, Sort: []store.SortField{{Field: "text", Desc: true}}}, []string{"Pizza is great", "I like pizza"}},
		{"page size", store.Query{PageSize: 2}, []string{"The weather is nice", "I like pizza"}},
		{"exact in_response_to", store.Query{InResponseTo: "Who are you"}, []string{"I am a bot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, texts(t, tt.q))
		})
	}

	t.Run("group keeps first per key after sort", func(t *testing.T) {
		require.NoError(t, s.CreateMany(ctx, []*models.Statement{stmt("Hello there", "Hi")}))
		_, err := s.MergeUpsert(ctx, stmt("Hello there", "Hi"), store.LearnPolicy)
		require.NoError(t, err)

		all, err := store.Collect(s.Filter(ctx, store.Query{
			Text:    "Hello there",
			GroupBy: "text",
			Sort:    []store.SortField{{Field: "count", Desc: true}},
		}))
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Hi", all[0].InResponseTo)
		assert.Equal(t, 2, all[0].Count)
	})

	t.Run("filter is restartable", func(t *testing.T) {
		seq := s.Filter(ctx, store.Query{Tags: []string{"food"}})
		a, err := store.Collect(seq)
		require.NoError(t, err)
		b, err := store.Collect(seq)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("unknown sort field is an error", func(t *testing.T) {
		_, err := store.Collect(s.Filter(ctx, store.Query{Sort: []store.SortField{{Field: "id; DROP TABLE"}}}))
		assert.Error(t, err)
	})
}

func TestCreateIsInsertIfAbsent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a, err := s.Create(ctx, stmt("one", "zero", "x"))
	require.NoError(t, err)
	b, err := s.Create(ctx, stmt("one", "zero", "y"))
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 1, b.Count)
	assert.Equal(t, []string{"x"}, b.Tags)
}

func TestCountRandomRemoveDrop(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := s.Random(ctx)
	assert.ErrorIs(t, err, store.ErrEmptyCorpus)

	require.NoError(t, s.CreateMany(ctx, []*models.Statement{stmt("a", ""), stmt("a", "b"), stmt("c", "")}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	r, err := s.Random(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"a", "c"}, r.Text)

	require.NoError(t, s.Remove(ctx, "a"))
	n, _ = s.Count(ctx)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Drop(ctx))
	n, _ = s.Count(ctx)
	assert.Zero(t, n)
}

func TestVectorCacheStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	c := store.NewVectorCacheStore(db)
	vec, err := c.Get(ctx, "hash", "model")
	require.NoError(t, err)
	assert.Nil(t, vec)

	require.NoError(t, c.Put(ctx, "hash", "model", []float32{1, 2}))
	require.NoError(t, c.Put(ctx, "hash", "model", []float32{3, 4}))
	vec, err = c.Get(ctx, "hash", "model")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, vec)

	vec, err = c.Get(ctx, "hash", "other-model")
	require.NoError(t, err)
	assert.Nil(t, vec)
}
