// Command equityagg runs the equity-aggregation pipeline: seed the cache
// store from the three authoritative feeds, export the canonical table as
// a compressed NDJSON artifact, or download and install a pre-built one.
// Grounded on cmd/cryptorun/main.go's cobra root-command layout and
// zerolog/TTY setup.
package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	runID := uuid.NewString()

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.With().Str("run_id", runID).Logger()

	rootCmd := &cobra.Command{
		Use:     "equityagg",
		Short:   "Equity aggregation pipeline: merge, identify, enrich, and export canonical equities",
		Version: version,
	}

	var configPath, venuesPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (optional)")
	rootCmd.PersistentFlags().StringVar(&venuesPath, "venues", "", "path to venue->MIC yaml table (optional)")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Run the full pipeline and upsert results into the cache store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), configPath, venuesPath)
		},
	}

	var exportOut string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the canonical table as a gzip-compressed NDJSON artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(configPath, exportOut)
		},
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (defaults to data_store_dir/canonical_equities.jsonl.gz)")

	var downloadURL string
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch a pre-built artifact and replace the canonical table atomically",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), configPath, downloadURL)
		},
	}
	downloadCmd.Flags().StringVar(&downloadURL, "url", "", "remote artifact URL (required)")
	_ = downloadCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(seedCmd, exportCmd, downloadCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
