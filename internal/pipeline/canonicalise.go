package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/telemetry"
)

// Canonicalise builds a CanonicalEquity for every RawEquity with a
// non-null FIGI, dropping those without (spec.md §4.7's canonicalise
// stage).
func Canonicalise(ctx context.Context, in <-chan domain.RawEquity, tel *telemetry.Registry) <-chan domain.CanonicalEquity {
	return fanStage(ctx, in, func(eq domain.RawEquity) (domain.CanonicalEquity, bool) {
		c, err := domain.NewCanonicalEquity(eq)
		if err != nil {
			log.Warn().Err(err).Str("symbol", eq.Symbol).Msg("canonicalise: dropping record without figi")
			tel.RecordDropped("canonicalise")
			return domain.CanonicalEquity{}, false
		}
		tel.RecordForwarded("canonicalise")
		return c, true
	})
}
