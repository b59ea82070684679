package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/apperr"
	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/config"
	"github.com/equityagg/equityagg/internal/httpfactory"
)

// runDownload fetches a pre-built artifact over the shared HTTP client
// factory into a temp file, then replaces the canonical table via
// RebuildFromExport, which itself rejects a malformed artifact before
// touching the store (spec.md §6's download operation, §7's atomic
// temp-file-plus-rename requirement).
func runDownload(ctx context.Context, configPath, url string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataStoreDir, 0o755); err != nil {
		return apperr.NewStorageError("mkdir_download", err)
	}

	tmp, err := os.CreateTemp(cfg.DataStoreDir, "download-*.jsonl.gz")
	if err != nil {
		return apperr.NewStorageError("create_download_tmp", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	client := httpfactory.New(httpfactory.DefaultConfig())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download: %w", err)
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		tmp.Close()
		return fmt.Errorf("download: vendor returned status %d", resp.StatusCode)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return apperr.NewStorageError("write_download_tmp", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.NewStorageError("close_download_tmp", err)
	}

	store, err := cachestore.Open(filepath.Join(cfg.DataStoreDir, "data_store.db"), cfg.CacheTTLMinutes)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RebuildFromExport(tmpPath); err != nil {
		return err
	}

	log.Info().Str("url", url).Msg("download: canonical table rebuilt from remote artifact")
	return nil
}
