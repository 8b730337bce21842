package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guilhermeleaosoares/llm-council/internal/config"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
	"github.com/guilhermeleaosoares/llm-council/internal/provider"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		Long:  "Lists the models from the models file with the provider kind each one is routed to.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), cfg.Council.Models, cfg.Council.KingModelID)
			return nil
		},
	}
}

func printModels(out io.Writer, list []models.ModelDescriptor, king string) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No models configured.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODALITY\tPROVIDER\tTIER\tWEIGHT\tENABLED\tKEY")
	for _, m := range list {
		id := m.ID
		if m.ID == king {
			id += " *"
		}
		key := "missing"
		if m.APIKey != "" {
			key = "set"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
			id, m.Name, m.Modality, provider.KindOf(m), m.Tier, m.Weight, m.Enabled, key)
	}
	w.Flush()
}

func newVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <query>",
		Short: "Run a King election without answering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runVote(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func runVote(ctx context.Context, out io.Writer, cfg *config.Config, query string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.voter.RunVotingRound(ctx, a.registry.Enabled(models.ModalityText), query)
	if err != nil {
		return err
	}
	printElection(out, result)
	return nil
}

func printElection(out io.Writer, result *models.ConsensusResult) {
	fmt.Fprintf(out, "King: %s (%s domain, %dms, ~%d tokens)\n\n",
		result.ElectedKingName, result.ConsensusDomain, result.LatencyMs, result.EstimatedTokens)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tDOMAIN\tCONFIDENCE\tREASON")
	for _, v := range result.Votes {
		reason := v.Reason
		if v.Error != "" {
			reason = "error: " + v.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", v.ModelName, v.Domain, v.Confidence, reason)
	}
	w.Flush()
}

