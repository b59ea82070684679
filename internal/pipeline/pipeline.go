package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/config"
	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/enrich"
	"github.com/equityagg/equityagg/internal/feeds"
	"github.com/equityagg/equityagg/internal/fxconv"
	"github.com/equityagg/equityagg/internal/refid"
	"github.com/equityagg/equityagg/internal/telemetry"
)

// Runner wires a set of source feeds through the six pipeline stages
// (spec.md §27: "the pipeline runner builds the resolver... pipes its
// output through the six stages, materialises the terminal stream").
type Runner struct {
	Sources   []feeds.Source
	Resolver  *refid.Resolver
	Converter *fxconv.Converter
	Enricher  *enrich.Session
	Telemetry *telemetry.Registry
	Policy    config.FailurePolicy
}

// Run merges every source's record stream, pipes it through parse →
// convert → identify → deduplicate → enrich → canonicalise, and
// materialises the terminal CanonicalEquity slice.
//
// Each feed already applies r.Policy to its own upstream failures before an
// error ever reaches mergeSources: in fatal mode the feed goroutine exits
// the process directly, so any error observed here is, by construction,
// from an isolate-mode feed whose crawl stopped early — logged, not
// re-escalated. FX-missing-rate and resolver failures have no feed-level
// policy to apply and are unconditionally fatal (spec.md §4.5, §8).
func (r *Runner) Run(ctx context.Context) ([]domain.CanonicalEquity, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := r.mergeSources(ctx)

	parsed := Parse(ctx, merged, r.Telemetry)
	converted, convertErrc := Convert(ctx, parsed, r.Converter, r.Telemetry)
	identified, identifyErrc := Identify(ctx, converted, r.Resolver, r.Telemetry)
	deduped := Deduplicate(ctx, identified, r.Telemetry)
	enriched := Enrich(ctx, deduped, r.Enricher, r.Converter, r.Telemetry)
	canonical := Canonicalise(ctx, enriched, r.Telemetry)

	results := drain(ctx, canonical)

	if err := firstError(convertErrc, identifyErrc); err != nil {
		cancel()
		return results, err
	}

	return results, nil
}

// mergeSources fans every source's StreamRecords into one channel. Each
// feed has already applied r.Policy to its own upstream failures (fatal
// mode exits the process before anything reaches here), so an error
// observed on a feed's error channel is only ever logged, never
// re-escalated.
func (r *Runner) mergeSources(ctx context.Context) <-chan domain.FeedRecord {
	out := make(chan domain.FeedRecord)

	var wg sync.WaitGroup
	for _, source := range r.Sources {
		records, errs := source.StreamRecords(ctx)

		wg.Add(1)
		go func(records <-chan domain.FeedRecord) {
			defer wg.Done()
			for {
				select {
				case rec, ok := <-records:
					if !ok {
						return
					}
					select {
					case out <- rec:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(records)

		wg.Add(1)
		go func(errs <-chan error) {
			defer wg.Done()
			for err := range errs {
				log.Error().Err(err).Msg("pipeline: source feed reported a fatal error, feed isolated")
			}
		}(errs)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func firstError(channels ...<-chan error) error {
	for _, c := range channels {
		select {
		case err, ok := <-c:
			if ok && err != nil {
				return err
			}
		default:
		}
	}
	return nil
}
