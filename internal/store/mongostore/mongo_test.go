package mongostore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// setupMongo connects to LEARNBOT_TEST_MONGO_URI and gives each test its own
// database. Tests are skipped when the variable is unset.
func setupMongo(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("LEARNBOT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("LEARNBOT_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, uri, Options{
		Database:   "learnbot_test_" + uuid.New().String()[:8],
		MaxRetries: 10,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})
	return s
}

func newStmt(text, inResponseTo, conversation string, tags ...string) *models.Statement {
	st := models.NewStatement(text)
	st.InResponseTo = inResponseTo
	st.SearchText = text
	st.Conversation = conversation
	st.Persona = "user"
	st.AddTags(tags...)
	return st
}

func TestMongoMergeUpsertWriteOnce(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	first, err := s.MergeUpsert(ctx, newStmt("Hello", "Hi", "c1", "a"), store.LearnPolicy)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	second, err := s.MergeUpsert(ctx, newStmt("Hello", "Hi", "c2", "b"), store.LearnPolicy)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, "c1", second.Conversation)
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, second.Tags)

	all, err := store.Collect(s.Filter(ctx, store.Query{Text: "Hello"}))
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestMongoMergeUpsertConcurrent(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MergeUpsert(ctx, newStmt("ping", "pong", "c1"), store.LearnPolicy)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := store.Collect(s.Filter(ctx, store.Query{Text: "ping"}))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, workers, all[0].Count)
}

func TestMongoLatestAndCorpus(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	_, err := s.Random(ctx)
	assert.ErrorIs(t, err, store.ErrEmptyCorpus)

	_, err = s.MergeUpsert(ctx, newStmt("one", "", "c1", "newResponse"), store.LatestPolicy)
	require.NoError(t, err)
	latest, err := s.MergeUpsert(ctx, newStmt("two", "", "c1"), store.LatestPolicy)
	require.NoError(t, err)
	assert.Equal(t, "two", latest.Text)
	assert.Empty(t, latest.Tags)

	created, err := s.Create(ctx, newStmt("x", "y", "c1", "first"))
	require.NoError(t, err)
	again, err := s.Create(ctx, newStmt("x", "y", "c2", "second"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, []string{"first"}, again.Tags)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Drop(ctx))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
