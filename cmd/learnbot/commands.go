package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/clive/apps/learnbot/internal/client"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

func newAskCmd(opts *options) *cobra.Command {
	var (
		tags     []string
		noLearn  bool
		noSpell  bool
		selectBy []string
	)
	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Ask the bot for a reply",
		Long: `Ask the bot for a reply. The exchange is learned unless --no-learn is set.

Examples:
  learnbot ask "How are you?"
  learnbot ask --tag greeting --no-learn "Hi"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checkSpelling := !noSpell
			resp, err := opts.client().Respond(cmd.Context(), &models.RespondRequest{
				Text:               strings.Join(args, " "),
				Conversation:       opts.conversation,
				Persona:            opts.persona,
				Tags:               tags,
				BannedFromLearning: noLearn,
				CheckSpelling:      &checkSpelling,
				SelectionTags:      selectBy,
			})
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag the input (repeatable)")
	cmd.Flags().BoolVar(&noLearn, "no-learn", false, "do not learn this exchange")
	cmd.Flags().BoolVar(&noSpell, "no-spelling", false, "skip spelling correction")
	cmd.Flags().StringSliceVar(&selectBy, "select-tag", nil, "only consider replies carrying these tags")
	return cmd
}

func newLearnCmd(opts *options) *cobra.Command {
	var inResponseTo string
	cmd := &cobra.Command{
		Use:   "learn <text>",
		Short: "Teach the bot a reply",
		Long: `Teach the bot that text is a reply to --to. Without --to, the text is
learned as a reply to the bot's latest turn in the conversation.

Examples:
  learnbot learn --to "Capital of France?" Paris`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Learn(cmd.Context(), &models.LearnRequest{
				Text:         strings.Join(args, " "),
				InResponseTo: inResponseTo,
				Conversation: opts.conversation,
				Persona:      opts.persona,
			})
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if resp.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing learned: no previous statement to reply to.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Learned %q in response to %q (seen %d times)\n",
				resp.Statement.Text, resp.Statement.InResponseTo, resp.Statement.Count)
			return nil
		},
	}
	cmd.Flags().StringVar(&inResponseTo, "to", "", "statement the text replies to")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show corpus size and bot configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), s)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Bot:\t%s\n", s.BotName)
			fmt.Fprintf(w, "Statements:\t%d\n", s.Statements)
			fmt.Fprintf(w, "Read-only:\t%t\n", s.ReadOnly)
			fmt.Fprintf(w, "Adapters:\t%s\n", strings.Join(s.Adapters, ", "))
			return w.Flush()
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := opts.client().Health(cmd.Context())
			if h == nil {
				return err
			}
			if opts.jsonOutput {
				if perr := printJSON(cmd.OutOrStdout(), h); perr != nil {
					return perr
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", h.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "  database: %s %s\n", h.DB.Status, h.DB.Message)
			fmt.Fprintf(cmd.OutOrStdout(), "  annotation: %s %s\n", h.Annotation.Status, h.Annotation.Message)
			fmt.Fprintf(cmd.OutOrStdout(), "  statements: %d\n", h.StatementCount)
			return err
		},
	}
}

func printStatement(cmd *cobra.Command, opts *options, s *models.Statement) error {
	if opts.jsonOutput {
		return printJSON(cmd.OutOrStdout(), s)
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.Text)
	if s.InResponseTo != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  in response to: %s\n", s.InResponseTo)
	}
	return nil
}

func newRandomCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "random",
		Short: "Print a random statement from the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.client().Random(cmd.Context())
			if errors.Is(err, client.ErrNotFound) {
				return errors.New("the corpus is empty")
			}
			if err != nil {
				return err
			}
			return printStatement(cmd, opts, s)
		},
	}
}

func newLatestCmd(opts *options) *cobra.Command {
	var (
		recent     int
		anyone     bool
		statements bool
	)
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the bot's latest reply in the conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.client().Latest(cmd.Context(), opts.conversation, client.LatestParams{
				FromBot:       !anyone,
				RecentMinutes: recent,
				Statements:    statements,
			})
			if errors.Is(err, client.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No recent reply.")
				return nil
			}
			if err != nil {
				return err
			}
			return printStatement(cmd, opts, s)
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 0, "only consider replies from the last N minutes")
	cmd.Flags().BoolVar(&anyone, "any", false, "include statements from any persona")
	cmd.Flags().BoolVar(&statements, "statements", false, "search the corpus instead of the latest-response index")
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <text>",
		Short: "Remove every statement with this exact text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if err := opts.client().Remove(cmd.Context(), text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", text)
			return nil
		},
	}
}

func newDropCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete the whole corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to drop the corpus without --yes")
			}
			if err := opts.client().Drop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Corpus dropped.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}
