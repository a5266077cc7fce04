package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/iammorganparry/clive/apps/learnbot/internal/client"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

// API is the part of client.Client the tools use.
type API interface {
	Respond(ctx context.Context, req *models.RespondRequest) (*models.RespondResponse, error)
	Learn(ctx context.Context, req *models.LearnRequest) (*models.LearnResponse, error)
	Latest(ctx context.Context, conversation string, p client.LatestParams) (*models.Statement, error)
	Train(ctx context.Context, req *models.TrainRequest) (*models.TrainResponse, error)
	Stats(ctx context.Context) (*models.StatsResponse, error)
}

// Handlers implement the learnbot tools.
type Handlers struct {
	api API
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *Handlers) Respond(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required and must be a string"), nil
	}

	resp, err := h.api.Respond(ctx, &models.RespondRequest{
		Text:               text,
		Conversation:       request.GetString("conversation", ""),
		Persona:            request.GetString("persona", "mcp"),
		Tags:               request.GetStringSlice("tags", nil),
		BannedFromLearning: request.GetBool("bannedFromLearning", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("respond failed: %v", err)), nil
	}
	return jsonResult(resp)
}

func (h *Handlers) Learn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required and must be a string"), nil
	}

	resp, err := h.api.Learn(ctx, &models.LearnRequest{
		Text:         text,
		InResponseTo: request.GetString("inResponseTo", ""),
		Conversation: request.GetString("conversation", ""),
		Persona:      "mcp",
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("learn failed: %v", err)), nil
	}
	if resp.Skipped {
		return mcp.NewToolResultText("nothing learned: no previous statement to answer"), nil
	}
	return jsonResult(resp.Statement)
}

func (h *Handlers) Latest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversation, err := request.RequireString("conversation")
	if err != nil {
		return mcp.NewToolResultError("conversation argument is required and must be a string"), nil
	}

	s, err := h.api.Latest(ctx, conversation, client.LatestParams{
		FromBot:       true,
		RecentMinutes: request.GetInt("recentMinutes", 0),
	})
	if errors.Is(err, client.ErrNotFound) {
		return mcp.NewToolResultText("no recent reply in this conversation"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("latest failed: %v", err)), nil
	}
	return jsonResult(s)
}

func (h *Handlers) Train(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lines := request.GetStringSlice("lines", nil)
	if len(lines) == 0 {
		return mcp.NewToolResultError("lines argument is required and must be a non-empty array of strings"), nil
	}

	resp, err := h.api.Train(ctx, &models.TrainRequest{
		Conversations: [][]string{lines},
		Tags:          request.GetStringSlice("tags", nil),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("train failed: %v", err)), nil
	}
	return jsonResult(resp)
}

func (h *Handlers) Stats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := h.api.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}
	return jsonResult(resp)
}
