package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iammorganparry/clive/apps/learnbot/internal/client"
)

// options are the global flags.
type options struct {
	server       string
	apiKey       string
	conversation string
	persona      string
	timeout      time.Duration
	jsonOutput   bool
}

func (o *options) client() *client.Client {
	return client.New(o.server, o.apiKey, o.timeout)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	// .env is optional
	_ = godotenv.Load()

	opts := &options{}
	cmd := &cobra.Command{
		Use:   "learnbot",
		Short: "Talk to and manage a learnbot server",
		Long: `learnbot talks to a learnbot HTTP server.

It asks the bot for replies, teaches it, trains it from corpus files,
and inspects or clears the stored corpus.

Examples:
  learnbot ask "Good morning"
  learnbot chat --conversation kitchen
  learnbot train ./corpus
  learnbot stats --json`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("LEARNBOT_SERVER_URL", "http://localhost:8741"), "learnbot server URL")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("LEARNBOT_SERVER_API_KEY"), "bearer token for the server")
	flags.StringVarP(&opts.conversation, "conversation", "c", "cli", "conversation id")
	flags.StringVar(&opts.persona, "persona", envOr("USER", "cli"), "persona of your statements")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print raw JSON")

	cmd.AddCommand(
		newAskCmd(opts),
		newLearnCmd(opts),
		newChatCmd(opts),
		newTrainCmd(opts),
		newStatsCmd(opts),
		newHealthCmd(opts),
		newRandomCmd(opts),
		newLatestCmd(opts),
		newRemoveCmd(opts),
		newDropCmd(opts),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
