package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/client"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

type fakeAPI struct {
	respond *models.RespondRequest
	train   *models.TrainRequest
	latest  error
	learn   *models.LearnResponse
}

func (f *fakeAPI) Respond(_ context.Context, req *models.RespondRequest) (*models.RespondResponse, error) {
	f.respond = req
	return &models.RespondResponse{Text: "Hello", InResponseTo: req.Text, Persona: "bot:test"}, nil
}

func (f *fakeAPI) Learn(context.Context, *models.LearnRequest) (*models.LearnResponse, error) {
	return f.learn, nil
}

func (f *fakeAPI) Latest(context.Context, string, client.LatestParams) (*models.Statement, error) {
	if f.latest != nil {
		return nil, f.latest
	}
	return &models.Statement{Text: "Hello"}, nil
}

func (f *fakeAPI) Train(_ context.Context, req *models.TrainRequest) (*models.TrainResponse, error) {
	f.train = req
	return &models.TrainResponse{Conversations: 1, Statements: len(req.Conversations[0])}, nil
}

func (f *fakeAPI) Stats(context.Context) (*models.StatsResponse, error) {
	return nil, errors.New("boom")
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRespondTool(t *testing.T) {
	api := &fakeAPI{}
	h := &Handlers{api: api}

	res, err := h.Respond(context.Background(), call(map[string]any{
		"text":         "Hi",
		"conversation": "c1",
		"tags":         []any{"a"},
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), `"text": "Hello"`)
	assert.Equal(t, "c1", api.respond.Conversation)
	assert.Equal(t, "mcp", api.respond.Persona)
	assert.Equal(t, []string{"a"}, api.respond.Tags)
}

func TestRespondToolRequiresText(t *testing.T) {
	h := &Handlers{api: &fakeAPI{}}
	res, err := h.Respond(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestLearnToolSkipped(t *testing.T) {
	h := &Handlers{api: &fakeAPI{learn: &models.LearnResponse{Skipped: true}}}
	res, err := h.Learn(context.Background(), call(map[string]any{"text": "Paris"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), "nothing learned")
}

func TestLatestToolNotFound(t *testing.T) {
	h := &Handlers{api: &fakeAPI{latest: &client.APIError{Status: 404, Message: "no recent response"}}}
	res, err := h.Latest(context.Background(), call(map[string]any{"conversation": "c1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), "no recent reply")
}

func TestTrainTool(t *testing.T) {
	api := &fakeAPI{}
	h := &Handlers{api: api}

	res, err := h.Train(context.Background(), call(map[string]any{"lines": []any{"Hi", "Hello"}}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, [][]string{{"Hi", "Hello"}}, api.train.Conversations)

	res, err = h.Train(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestStatsToolError(t *testing.T) {
	h := &Handlers{api: &fakeAPI{}}
	res, err := h.Stats(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
