// Package pipeline composes the six stream transforms described in
// spec.md §4.7 (parse, convert, identify, deduplicate, enrich,
// canonicalise) into a single channel-pipe. Grounded on
// internal/infrastructure/async/pipeline.go's PipelineStage[T]/Pipeline[T]
// generics: this package keeps that file's generic *stage function* shape
// (a stage is a pure func(ctx, <-chan In) <-chan Out) but drops its
// dynamic N-worker pool, retry/backoff and batching wrapper, which are
// overkill for this fixed six-stage assembly line (justified in
// DESIGN.md).
package pipeline

import "context"

// fanStage applies fn to every item read from in, forwarding only the
// items fn accepts (second return value true). It is the generic shape
// every 1:1 stage in this package is built from.
func fanStage[In, Out any](ctx context.Context, in <-chan In, fn func(In) (Out, bool)) <-chan Out {
	out := make(chan Out)
	go func() {
		defer close(out)
		for {
			select {
			case item, ok := <-in:
				if !ok {
					return
				}
				result, keep := fn(item)
				if !keep {
					continue
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// drain materialises every item on in into a slice, blocking until in is
// closed or ctx is done.
func drain[T any](ctx context.Context, in <-chan T) []T {
	var out []T
	for {
		select {
		case item, ok := <-in:
			if !ok {
				return out
			}
			out = append(out, item)
		case <-ctx.Done():
			return out
		}
	}
}

// feed replays items onto a fresh channel, closing it once all items have
// been sent or ctx is done.
func feed[T any](ctx context.Context, items []T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, item := range items {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
