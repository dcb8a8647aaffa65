// Package mock provides an in-memory test double for [profilestore.Store].
//
// Store keeps records in a map so tests can observe real upsert semantics,
// records every method call for assertion, and exposes exported fields that
// inject errors. It is safe for concurrent use.
//
// Typical usage:
//
//	store := mock.New()
//	store.UpsertErr = &profilestore.Error{Op: "upsert", Reason: profilestore.ReasonConnectivity}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("Upsert"); got != 1 {
//	    t.Errorf("expected 1 Upsert call, got %d", got)
//	}
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/frameingest/pkg/profilestore"
)

var _ profilestore.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [profilestore.Store].
type Store struct {
	mu      sync.Mutex
	calls   []Call
	records map[int64]profilestore.Profile
	closed  bool

	// Dimensions, when positive, is enforced by Upsert like a real backend.
	Dimensions int

	// Now is the clock used for CreatedAt/UpdatedAt. Defaults to time.Now.
	Now func() time.Time

	// UpsertErr is returned by [Store.Upsert] when non-nil; nothing is stored.
	UpsertErr error

	// GetErr is returned by [Store.Get] when non-nil.
	GetErr error

	// SearchErr is returned by [Store.Search] when non-nil.
	SearchErr error

	// PingErr is returned by [Store.Ping] when non-nil.
	PingErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[int64]profilestore.Profile)}
}

func (m *Store) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

func (m *Store) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Upsert implements [profilestore.Store].
func (m *Store) Upsert(_ context.Context, p profilestore.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Upsert", p)

	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if err := profilestore.Validate(p, m.Dimensions); err != nil {
		return err
	}
	if m.records == nil {
		m.records = make(map[int64]profilestore.Profile)
	}

	now := m.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if existing, ok := m.records[p.FID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	p.Tags = slices.Clone(p.Tags)
	p.Embedding = slices.Clone(p.Embedding)
	m.records[p.FID] = p
	return nil
}

// Get implements [profilestore.Store].
func (m *Store) Get(_ context.Context, fid int64) (*profilestore.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Get", fid)

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	p, ok := m.records[fid]
	if !ok {
		return nil, &profilestore.Error{Op: "get", Reason: profilestore.ReasonNotFound, FID: fid, Err: profilestore.ErrNotFound}
	}
	return &p, nil
}

// Search implements [profilestore.Store] with an in-process scan.
func (m *Store) Search(_ context.Context, embedding []float32, k int, excludeFID int64) ([]profilestore.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Search", embedding, k, excludeFID)

	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	matches := []profilestore.Match{}
	for fid, p := range m.records {
		if fid == excludeFID {
			continue
		}
		matches = append(matches, profilestore.Match{Profile: p, Distance: profilestore.CosineDistance(embedding, p.Embedding)})
	}
	if k < 0 {
		k = 0
	}
	return profilestore.RankMatches(matches, k), nil
}

// Ping implements [profilestore.Store].
func (m *Store) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Ping")
	return m.PingErr
}

// Close implements [profilestore.Store].
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Close")
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Store) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Len returns the number of stored records.
func (m *Store) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and stored records. Error fields are kept.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.records = make(map[int64]profilestore.Profile)
}
