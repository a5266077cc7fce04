// Package mcp exposes the bot to MCP clients over stdio. Every tool
// delegates to the learnbot HTTP server.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools adds the learnbot tools to server.
func RegisterTools(server *mcpserver.MCPServer, api API) *Handlers {
	h := &Handlers{api: api}

	server.AddTool(mcp.Tool{
		Name: "learnbot_respond",
		Description: "Ask the bot for a reply. The exchange is learned unless bannedFromLearning is set. " +
			"Pass the same conversation id on every turn so replies are learned in context.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"text":         map[string]any{"type": "string", "description": "Input statement"},
				"conversation": map[string]any{"type": "string", "description": "Conversation id"},
				"persona":      map[string]any{"type": "string", "description": "Speaker of the input"},
				"tags": map[string]any{
					"type": "array", "items": map[string]any{"type": "string"},
					"description": "Tags added to the input",
				},
				"bannedFromLearning": map[string]any{
					"type": "boolean", "description": "Do not learn this exchange", "default": false,
				},
			},
			Required: []string{"text"},
		},
	}, h.Respond)

	server.AddTool(mcp.Tool{
		Name:        "learnbot_learn",
		Description: "Teach the bot that text is a good reply to inResponseTo.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"text":         map[string]any{"type": "string", "description": "The reply"},
				"inResponseTo": map[string]any{"type": "string", "description": "The statement it answers"},
				"conversation": map[string]any{"type": "string", "description": "Conversation id"},
			},
			Required: []string{"text"},
		},
	}, h.Learn)

	server.AddTool(mcp.Tool{
		Name:        "learnbot_latest",
		Description: "Get the bot's most recent reply in a conversation.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"conversation": map[string]any{"type": "string", "description": "Conversation id"},
				"recentMinutes": map[string]any{
					"type": "number", "description": "Ignore replies older than this (0 disables)", "default": 0,
				},
			},
			Required: []string{"conversation"},
		},
	}, h.Latest)

	server.AddTool(mcp.Tool{
		Name:        "learnbot_train",
		Description: "Train the bot on one conversation: each line is learned as a reply to the line before it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"lines": map[string]any{
					"type": "array", "items": map[string]any{"type": "string"},
					"description": "Ordered utterances",
				},
				"tags": map[string]any{
					"type": "array", "items": map[string]any{"type": "string"},
					"description": "Tags for every trained statement",
				},
			},
			Required: []string{"lines"},
		},
	}, h.Train)

	server.AddTool(mcp.Tool{
		Name:        "learnbot_stats",
		Description: "Report corpus size and bot configuration.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, h.Stats)

	return h
}
