package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/equityagg/equityagg/internal/domain"
	"github.com/equityagg/equityagg/internal/merge"
	"github.com/equityagg/equityagg/internal/telemetry"
)

// Deduplicate groups records by share_class_figi (now guaranteed non-null
// by Identify) and reduces each group with the Merger, in first-seen group
// order (spec.md §4.7's deduplicate stage, §4.8).
func Deduplicate(ctx context.Context, in <-chan domain.RawEquity, tel *telemetry.Registry) <-chan domain.RawEquity {
	out := make(chan domain.RawEquity)

	go func() {
		defer close(out)

		var order []string
		groups := make(map[string][]domain.RawEquity)
		for _, eq := range drain(ctx, in) {
			key := ""
			if eq.ShareClassFIGI != nil {
				key = *eq.ShareClassFIGI
			}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], eq)
		}

		for _, key := range order {
			merged, err := merge.Merge(groups[key])
			if err != nil {
				log.Error().Err(err).Str("share_class_figi", key).Msg("deduplicate: merge failed, dropping group")
				tel.RecordDropped("deduplicate")
				continue
			}
			tel.RecordForwarded("deduplicate")
			select {
			case out <- merged:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
