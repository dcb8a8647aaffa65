package ingest

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/MrWong99/frameingest/internal/profile"
)

// Ingester runs a single ingestion. *Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, req profile.Request) (*Result, error)
}

// Outcome is the result of one request in a batch.
type Outcome struct {
	// Index is the position of the request in the input slice.
	Index  int
	FID    int64
	Result *Result
	Err    error
}

// Batch ingests reqs on a pool of workers goroutines and returns one Outcome
// per request, in input order. Per-item failures are reported in the
// outcomes; the returned error is only set when the pool itself fails.
// Requests not yet started when ctx ends fail with the context error.
// workers <= 0 means runtime.NumCPU().
func Batch(ctx context.Context, ing Ingester, reqs []profile.Request, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("ingest: create worker pool: %w", err)
	}
	defer pool.Release()

	out := make([]Outcome, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		out[i] = Outcome{Index: i, FID: req.Profile.FID}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return
			}
			out[i].Result, out[i].Err = ing.Ingest(ctx, req)
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return out, fmt.Errorf("ingest: submit request %d: %w", i, submitErr)
		}
	}
	wg.Wait()
	return out, nil
}

// Summary counts outcomes by Kind. Successful items count under "ok".
func Summary(outcomes []Outcome) map[string]int {
	counts := make(map[string]int)
	for _, o := range outcomes {
		if o.Err == nil {
			counts["ok"]++
			continue
		}
		counts[string(KindOf(o.Err))]++
	}
	return counts
}
