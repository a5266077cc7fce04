package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/iammorganparry/clive/apps/learnbot/internal/client"
	"github.com/iammorganparry/clive/apps/learnbot/internal/config"
	"github.com/iammorganparry/clive/apps/learnbot/internal/mcp"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("LEARNBOT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		os.Exit(1)
	}

	api := client.New(cfg.Server.URL, cfg.Server.APIKey, 30*time.Second)
	server := mcpserver.NewMCPServer("learnbot", "1.0.0")
	mcp.RegisterTools(server, api)

	if err := mcpserver.ServeStdio(server); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %s\n", err)
		os.Exit(1)
	}
}
