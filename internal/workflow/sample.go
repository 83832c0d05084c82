package workflow

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
)

// sampleCandidates returns up to count candidates chosen uniformly at
// random without replacement. The input slice is left untouched.
func sampleCandidates(candidates []Candidate, count int) []Candidate {
	if len(candidates) == 0 || count <= 0 {
		return nil
	}

	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	if count < len(out) {
		out = out[:count]
	}
	return out
}

// forEachChunked runs fn over items in fixed-size chunks, the items within
// a chunk concurrently and the chunks sequentially with a pause in between.
// This is how third-party rate limits are respected: a small concurrency
// window, not a general worker pool. fn must confine its writes to its own
// index; results are merged after each chunk completes.
func forEachChunked[T any](ctx context.Context, items []T, size int, delay time.Duration, fn func(ctx context.Context, i int, item T)) {
	if size <= 0 {
		size = 1
	}

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				fn(gctx, i, items[i])
				return nil
			})
		}
		_ = g.Wait()

		if delay > 0 && end < len(items) {
			time.Sleep(delay)
		}
	}
}
