package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/feeds/euronext"
	"github.com/equityagg/equityagg/internal/feeds/lse"
	"github.com/equityagg/equityagg/internal/feeds/xetra"
	"github.com/equityagg/equityagg/internal/telemetry"
)

// Parse applies the tag-specific normaliser to every FeedRecord, dropping
// invalid records with a warning (spec.md §4.7's parse stage).
func Parse(ctx context.Context, in <-chan domain.FeedRecord, tel *telemetry.Registry) <-chan domain.RawEquity {
	return fanStage(ctx, in, func(rec domain.FeedRecord) (domain.RawEquity, bool) {
		var (
			eq  domain.RawEquity
			err error
		)
		switch rec.FeedTag {
		case domain.FeedEuronext:
			eq, err = euronext.Normalise(rec.Payload)
		case domain.FeedLSE:
			eq, err = lse.Normalise(rec.Payload)
		case domain.FeedXetra:
			eq, err = xetra.Normalise(rec.Payload)
		default:
			log.Warn().Str("feed_tag", string(rec.FeedTag)).Msg("parse: unknown feed tag, dropping record")
			tel.RecordDropped("parse")
			return domain.RawEquity{}, false
		}
		if err != nil {
			log.Warn().Err(err).Str("feed_tag", string(rec.FeedTag)).Msg("parse: invalid record, dropping")
			tel.RecordDropped("parse")
			return domain.RawEquity{}, false
		}
		tel.RecordForwarded("parse")
		return eq, true
	})
}
