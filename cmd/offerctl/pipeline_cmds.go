package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/pipeline"
)

// errRunFailed makes the process exit non-zero after the result is printed.
var errRunFailed = errors.New("pipeline run failed")

func newAnalyzeCmd() *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Rank niche recommendations for a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile domain.Profile
			if err := readJSON(cmd.InOrStdin(), profilePath, &profile); err != nil {
				return err
			}
			p, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := p.Analyze(cmd.Context(), profile)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"recommendations": recs})
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "-", "profile JSON file (- for stdin)")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the offer pipeline on an invocation payload",
		Long: `Reads {chosenRecommendation, profile, answers} and prints the pipeline
result. Exits non-zero when the run fails; the partial result is still printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in pipeline.Input
			if err := readJSON(cmd.InOrStdin(), inputPath, &in); err != nil {
				return err
			}
			p, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}
			res, err := p.Generate(cmd.Context(), in, nil)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Succeeded() {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "-", "invocation JSON file (- for stdin)")
	return cmd
}
