package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/trainer"
)

func newTrainCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "train <path>...",
		Short: "Train the bot from YAML corpus files",
		Long: `Train the bot from YAML corpus files or directories of them.

Each file has a list of categories, which become tags, and a list of
conversations. Each line of a conversation is learned as a reply to
the line before it.

  categories: [greetings]
  conversations:
    - [Hello, Hi there, How are you?, I am well]

Examples:
  learnbot train ./corpus
  learnbot train greetings.yml food.yml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corpora, err := trainer.LoadCorpus(args...)
			if err != nil {
				return err
			}
			if len(corpora) == 0 {
				return fmt.Errorf("no corpus files found in %v", args)
			}

			c := opts.client()
			total := models.TrainResponse{}
			for _, corpus := range corpora {
				if len(corpus.Conversations) == 0 {
					continue
				}
				resp, err := c.Train(cmd.Context(), &models.TrainRequest{
					Conversations: corpus.Conversations,
					Tags:          corpus.Categories,
				})
				if err != nil {
					return fmt.Errorf("train %s: %w", corpus.Path, err)
				}
				total.Conversations += resp.Conversations
				total.Statements += resp.Statements
				if !opts.jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d conversations, %d statements\n",
						corpus.Path, resp.Conversations, resp.Statements)
				}
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), total)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trained %d conversations (%d statements)\n", total.Conversations, total.Statements)
			return nil
		},
	}
}
