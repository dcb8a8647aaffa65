package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/frameingest/internal/enrich"
	"github.com/MrWong99/frameingest/internal/profile"
)

type fakeIngester struct {
	mu      sync.Mutex
	seen    []int64
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
	fail    map[int64]error
}

func (f *fakeIngester) Ingest(ctx context.Context, req profile.Request) (*Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.seen = append(f.seen, req.Profile.FID)
	err := f.fail[req.Profile.FID]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Summary: "ok"}, nil
}

func requests(fids ...int64) []profile.Request {
	reqs := make([]profile.Request, len(fids))
	for i, fid := range fids {
		reqs[i] = profile.Request{Profile: profile.Profile{FID: fid}}
	}
	return reqs
}

func TestBatch_ReturnsOutcomesInOrder(t *testing.T) {
	ing := &fakeIngester{fail: map[int64]error{
		2: &Error{Kind: KindEnrichmentParse, FID: 2, Err: errors.New("bad reply")},
	}}

	out, err := Batch(context.Background(), ing, requests(1, 2, 3), 2)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, fid := range []int64{1, 2, 3} {
		assert.Equal(t, i, out[i].Index)
		assert.Equal(t, fid, out[i].FID)
	}
	assert.NoError(t, out[0].Err)
	assert.Equal(t, "ok", out[0].Result.Summary)
	assert.Equal(t, KindEnrichmentParse, KindOf(out[1].Err))
	assert.Nil(t, out[1].Result)
	assert.NoError(t, out[2].Err)

	assert.ElementsMatch(t, []int64{1, 2, 3}, ing.seen)
	assert.Equal(t, map[string]int{"ok": 2, "enrichment_parse": 1}, Summary(out))
}

func TestBatch_BoundsConcurrency(t *testing.T) {
	ing := &fakeIngester{delay: 20 * time.Millisecond}

	out, err := Batch(context.Background(), ing, requests(1, 2, 3, 4, 5, 6, 7, 8), 3)
	require.NoError(t, err)
	assert.Len(t, out, 8)
	assert.LessOrEqual(t, ing.maxSeen.Load(), int32(3))
	assert.GreaterOrEqual(t, ing.maxSeen.Load(), int32(1))
}

func TestBatch_DefaultWorkers(t *testing.T) {
	ing := &fakeIngester{}

	out, err := Batch(context.Background(), ing, requests(1, 2), 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ok": 2}, Summary(out))
}

func TestBatch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ing := &fakeIngester{}

	out, err := Batch(ctx, ing, requests(1, 2, 3), 2)
	require.NoError(t, err)
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.Empty(t, ing.seen)
}

func TestBatch_EmptyInput(t *testing.T) {
	out, err := Batch(context.Background(), &fakeIngester{}, nil, 4)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSummary_CountsByKind(t *testing.T) {
	out := []Outcome{
		{Err: nil},
		{Err: &Error{Kind: KindStore}},
		{Err: &enrich.ServiceError{Op: "embed", Transient: true}},
		{Err: &Error{Kind: KindStore}},
	}
	assert.Equal(t, map[string]int{"ok": 1, "store": 2, "enrichment_transient": 1}, Summary(out))
}
