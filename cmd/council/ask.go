package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/guilhermeleaosoares/llm-council/internal/config"
	"github.com/guilhermeleaosoares/llm-council/internal/council"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

type askOptions struct {
	mode           string
	combine        bool
	search         bool
	deepSearch     bool
	king           string
	conversationID string
	systemPrompt   string
	verbose        bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the council a question",
		Long:  "Runs one council turn and prints the verdict. The turn is stored like any other conversation; pass --conversation to continue one.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cfg, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", string(models.ThinkDefault), "think mode: quick, default, deep or deeper")
	cmd.Flags().BoolVar(&opts.combine, "combine", false, "let the King merge every answer")
	cmd.Flags().BoolVar(&opts.search, "search", false, "add web search results")
	cmd.Flags().BoolVar(&opts.deepSearch, "deep-search", false, "add multi-query web search results")
	cmd.Flags().StringVar(&opts.king, "king", "", "pin the King by model id")
	cmd.Flags().StringVarP(&opts.conversationID, "conversation", "c", "", "continue an existing conversation")
	cmd.Flags().StringVar(&opts.systemPrompt, "system", "", "system prompt for a new conversation")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print every model's response")
	return cmd
}

func runAsk(ctx context.Context, out io.Writer, cfg *config.Config, question string, opts askOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	id := opts.conversationID
	if id == "" {
		id = uuid.New().String()
		if _, err := a.store.CreateConversation(id, opts.systemPrompt); err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	result, err := a.service.SendMessage(ctx, id, council.SendRequest{
		Text: question,
		Options: models.TurnOptions{
			ThinkMode:   models.ThinkMode(opts.mode),
			Combine:     opts.combine,
			SearchMode:  opts.search,
			DeepSearch:  opts.deepSearch,
			KingModelID: opts.king,
		},
		Progress: func(phase string) {
			if opts.verbose {
				fmt.Fprintf(out, "... %s\n", phase)
			}
		},
	})
	if err != nil {
		return err
	}

	printVerdict(out, result.CouncilMessage, opts.verbose)
	fmt.Fprintf(out, "\nconversation: %s\n", id)
	return nil
}

func printVerdict(out io.Writer, msg models.Message, verbose bool) {
	if msg.ModerationText != "" {
		fmt.Fprintln(out, msg.ModerationText)
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, msg.Text)

	if !verbose {
		return
	}
	for _, round := range msg.ReasoningTrace {
		fmt.Fprintf(out, "\n== %s ==\n", round.Label)
		for _, e := range round.Entries {
			fmt.Fprintf(out, "\n-- %s --\n%s\n", e.ModelName, e.Text)
		}
	}
	fmt.Fprintln(out, "\n== Weights ==")
	for _, r := range msg.Responses {
		king := ""
		if r.IsKing {
			king = " (King)"
		}
		fmt.Fprintf(out, "  %-24s %6.3f%s\n", r.ModelName, r.EffectiveWeight, king)
	}
}
