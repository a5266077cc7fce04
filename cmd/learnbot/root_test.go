package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmdStructure(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "learnbot", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{"ask", "learn", "chat", "train", "stats", "health", "random", "latest", "remove", "drop"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
			assert.NotNil(t, sub.RunE)
		})
	}

	for _, flag := range []string{"server", "api-key", "conversation", "persona", "timeout", "json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestAskPrintsReply(t *testing.T) {
	var got models.RespondRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/respond", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(models.RespondResponse{Text: "Hello"})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "ask", "-c", "kitchen", "--no-learn", "Hi", "there")
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", out)
	assert.Equal(t, "Hi there", got.Text)
	assert.Equal(t, "kitchen", got.Conversation)
	assert.True(t, got.BannedFromLearning)
	require.NotNil(t, got.CheckSpelling)
	assert.True(t, *got.CheckSpelling)
}

func TestTrainPostsEachCorpus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greetings.yml"), []byte(`
categories: [greetings]
conversations:
  - [Hello, Hi there]
  - [Good morning, Morning]
`), 0o644))

	var got models.TrainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/train", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(models.TrainResponse{Conversations: len(got.Conversations), Statements: 4})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "train", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Trained 2 conversations (4 statements)")
	assert.Equal(t, []string{"greetings"}, got.Tags)
	assert.Len(t, got.Conversations, 2)
}

func TestLatestNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "no recent response"})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "No recent reply.")
}

func TestDropRequiresConfirmation(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := execute(t, srv, "drop")
	require.Error(t, err)
	assert.False(t, called)

	out, err := execute(t, srv, "drop", "--yes")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, out, "Corpus dropped.")
}

func TestStatsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.StatsResponse{BotName: "b", Statements: 7})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "stats", "--json")
	require.NoError(t, err)
	var s models.StatsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 7, s.Statements)
}
