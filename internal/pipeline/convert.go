package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/apperr"
	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/fxconv"
	"github.com/equityagg/equityagg/internal/telemetry"
)

// Convert applies FX conversion to every RawEquity (spec.md §4.5/§4.7's
// convert stage). An unknown-currency data error drops the record; a zero
// exchange rate is fatal per spec.md §4.5 and is surfaced on the returned
// error channel instead, which closes the output stream.
func Convert(ctx context.Context, in <-chan domain.RawEquity, converter *fxconv.Converter, tel *telemetry.Registry) (<-chan domain.RawEquity, <-chan error) {
	out := make(chan domain.RawEquity)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		for {
			select {
			case eq, ok := <-in:
				if !ok {
					return
				}
				converted, err := converter.Convert(eq)
				if err != nil {
					var fatal *apperr.FeedFatalError
					if errors.As(err, &fatal) {
						errc <- err
						return
					}
					log.Warn().Err(err).Str("symbol", eq.Symbol).Msg("convert: dropping record")
					tel.RecordDropped("convert")
					continue
				}
				tel.RecordForwarded("convert")
				select {
				case out <- converted:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}
