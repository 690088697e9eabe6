// offerctl runs the offer pipeline and migrations without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/offerforge/internal/agents"
	"github.com/ashureev/offerforge/internal/config"
	"github.com/ashureev/offerforge/internal/llm"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/pipeline"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "offerctl",
		Short:         "offerctl - offline tools for the offer builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAnalyzeCmd(), newGenerateCmd(), newMigrateCmd())
	return root
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, os.Getenv("LOG_LEVEL"), "text"))

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newPipeline builds the pipeline from the same configuration as the server.
func newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	model, err := llm.FromConfig(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	return pipeline.New(agents.NewSet(model)), nil
}

// readJSON decodes the file at path, or stdin for "-".
func readJSON(in io.Reader, path string, v any) error {
	var r io.Reader = in
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
