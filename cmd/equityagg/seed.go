package main

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/cachestore"
	"github.com/equityagg/equityagg/internal/config"
	"github.com/equityagg/equityagg/internal/enrich"
	"github.com/equityagg/equityagg/internal/feeds"
	"github.com/equityagg/equityagg/internal/feeds/euronext"
	"github.com/equityagg/equityagg/internal/feeds/lse"
	"github.com/equityagg/equityagg/internal/feeds/xetra"
	"github.com/equityagg/equityagg/internal/fxconv"
	"github.com/equityagg/equityagg/internal/httpfactory"
	"github.com/equityagg/equityagg/internal/pipeline"
	"github.com/equityagg/equityagg/internal/refid"
	"github.com/equityagg/equityagg/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

// runSeed wires every component per SPEC_FULL.md §6 and runs the pipeline
// once, upserting every canonical equity produced into the data store.
func runSeed(ctx context.Context, configPath, venuesPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	venues := config.DefaultVenues()
	if venuesPath != "" {
		venues, err = config.LoadVenues(venuesPath)
		if err != nil {
			return err
		}
	}

	store, err := cachestore.Open(filepath.Join(cfg.DataStoreDir, "data_store.db"), cfg.CacheTTLMinutes)
	if err != nil {
		return err
	}
	defer store.Close()

	client := httpfactory.New(httpfactory.DefaultConfig())

	euronextFeed := euronext.New(client, cfg.EuronextBaseURL, venues, store, cfg.FeedConcurrency, cfg.FeedFailurePolicy)
	lseFeed := lse.New(client, cfg.LSEBaseURL, store, cfg.FeedConcurrency, cfg.FeedFailurePolicy)
	xetraFeed := xetra.New(client, cfg.XetraBaseURL, store, cfg.FeedConcurrency, cfg.FeedFailurePolicy)

	resolver := refid.New(client, cfg.RefidBaseURL, cfg.RefidAPIKey, store, cfg.RefidBatchSize, cfg.RefidMaxInFlight)

	converter, err := fxconv.Load(ctx, client, cfg.FXBaseURL, cfg.FXAPIKey, store, cfg.CacheTTLMinutes)
	if err != nil {
		return err
	}

	session := enrich.New(client, store, cfg.EnrichBaseURL, cfg.EnrichAuthURL, cfg.EnrichTokenURL, nil, cfg.EnrichFuzzyMinScore, cfg.EnrichStreamCap)

	tel := telemetry.NewRegistry(prometheus.NewRegistry())

	runner := &pipeline.Runner{
		Sources:   []feeds.Source{euronextFeed, lseFeed, xetraFeed},
		Resolver:  resolver,
		Converter: converter,
		Enricher:  session,
		Telemetry: tel,
		Policy:    cfg.FeedFailurePolicy,
	}

	results, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if err := store.SaveCanonicalEquities(results); err != nil {
		return err
	}

	log.Info().Int("canonical_equities", len(results)).Msg("seed: pipeline run complete")
	return nil
}
