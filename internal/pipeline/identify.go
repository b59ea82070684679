package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/refid"
	"github.com/equityagg/equityagg/internal/telemetry"
)

// Identify materialises the input stream and calls the Reference
// Identifier once (spec.md §4.7's identify stage: "Materialise the
// stream... unavoidable: the resolver is batch-oriented"). Resolved
// triplets override name/symbol/share_class_figi on their source record;
// unresolved inputs are dropped. Order is preserved between materialised
// input and resolver output, matching §5's invariant.
func Identify(ctx context.Context, in <-chan domain.RawEquity, resolver *refid.Resolver, tel *telemetry.Registry) (<-chan domain.RawEquity, <-chan error) {
	out := make(chan domain.RawEquity)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		equities := drain(ctx, in)
		if len(equities) == 0 {
			return
		}

		triplets, err := resolver.Resolve(ctx, equities)
		if err != nil {
			errc <- err
			return
		}

		identified, dropped := 0, 0
		for i, t := range triplets {
			if !t.Resolved() {
				dropped++
				continue
			}
			identified++
			rec := equities[i].WithIdentity(t.Name, t.Symbol, t.FIGI)
			tel.RecordForwarded("identify")
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
		log.Info().Int("identified", identified).Int("dropped", dropped).Msg("identify: resolution complete")
		for i := 0; i < dropped; i++ {
			tel.RecordDropped("identify")
		}
	}()

	return out, errc
}
