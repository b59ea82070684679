package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/enrich"
	"github.com/equityagg/equityagg/internal/fxconv"
	"github.com/equityagg/equityagg/internal/telemetry"
)

// Enrich fires one enrichment fetch per input concurrently and yields
// results as their task completes, not in input order (spec.md §4.7's
// enrich stage). A lookup failure of any kind passes the source record
// through unchanged, per §4.6's error taxonomy ("recoverable at the
// pipeline level").
func Enrich(ctx context.Context, in <-chan domain.RawEquity, session *enrich.Session, converter *fxconv.Converter, tel *telemetry.Registry) <-chan domain.RawEquity {
	out := make(chan domain.RawEquity)

	go func() {
		defer close(out)
		var wg sync.WaitGroup

		for {
			select {
			case source, ok := <-in:
				if !ok {
					wg.Wait()
					return
				}
				wg.Add(1)
				go func(source domain.RawEquity) {
					defer wg.Done()
					result := enrichOne(ctx, session, converter, source, tel)
					select {
					case out <- result:
					case <-ctx.Done():
					}
				}(source)
			case <-ctx.Done():
				wg.Wait()
				return
			}
		}
	}()

	return out
}

func enrichOne(ctx context.Context, session *enrich.Session, converter *fxconv.Converter, source domain.RawEquity, tel *telemetry.Registry) domain.RawEquity {
	summary, err := session.Lookup(ctx, source)
	if err != nil {
		log.Debug().Err(err).Str("symbol", source.Symbol).Msg("enrich: lookup failed, passing through")
		tel.RecordDropped("enrich")
		return source
	}

	vendorEquity, err := enrich.ToRawEquity(summary, source.Symbol, source.Name)
	if err != nil {
		log.Debug().Err(err).Str("symbol", source.Symbol).Msg("enrich: schema rejected payload, passing through")
		tel.RecordDropped("enrich")
		return source
	}

	converted, err := converter.Convert(vendorEquity)
	if err != nil {
		log.Debug().Err(err).Str("symbol", source.Symbol).Msg("enrich: fx conversion failed, passing through")
		tel.RecordDropped("enrich")
		return source
	}

	tel.RecordForwarded("enrich")
	return source.FillMissing(converted)
}
