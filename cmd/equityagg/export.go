package main

import (
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/config"
)

// runExport writes the canonical table as a gzip-compressed, FIGI-sorted
// NDJSON artifact (spec.md §6's export operation).
func runExport(configPath, out string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if out == "" {
		out = filepath.Join(cfg.DataStoreDir, "canonical_equities.jsonl.gz")
	}

	store, err := cachestore.Open(filepath.Join(cfg.DataStoreDir, "data_store.db"), cfg.CacheTTLMinutes)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Export(out); err != nil {
		return err
	}

	log.Info().Str("path", out).Msg("export: wrote canonical equities artifact")
	return nil
}
