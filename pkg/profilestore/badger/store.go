// Package badger implements [profilestore.Store] on an embedded BadgerDB.
//
// Profiles are stored as JSON values under "profile:<fid>". Similarity search
// scans the key prefix and ranks in process, so it suits development setups
// and small graphs rather than large deployments.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/MrWong99/frameingest/pkg/profilestore"
)

const (
	profilePrefix = "profile:"

	// maxConflictRetries bounds how often Upsert retries a transaction that
	// lost an optimistic-concurrency race on the same key.
	maxConflictRetries = 5
)

var _ profilestore.Store = (*Store)(nil)

// Store is the BadgerDB-backed [profilestore.Store]. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	dims   int
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used for badger's internal messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a BadgerDB database in dir, creating the directory if needed.
// An empty dir opens an in-memory database.
//
// embeddingDimensions, when positive, is enforced on every Upsert.
func Open(dir string, embeddingDimensions int, opts ...Option) (*Store, error) {
	s := &Store{dims: embeddingDimensions, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}

	var bopts badger.Options
	if dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("badger store: %w", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("badger store: %w", err)
			}
			if info, err = os.Stat(dir); err != nil {
				return nil, fmt.Errorf("badger store: %w", err)
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("badger store: %s is not a directory", dir)
		}
		bopts = badger.DefaultOptions(dir)
	}

	bopts.Logger = &badgerLoggerAdapter{logger: s.logger.With("component", "badger")}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger store: open: %w", err)
	}
	s.db = db
	return s, nil
}

func profileKey(fid int64) []byte {
	return []byte(fmt.Sprintf("%s%d", profilePrefix, fid))
}

// Upsert implements [profilestore.Store].
func (s *Store) Upsert(ctx context.Context, p profilestore.Profile) error {
	if err := profilestore.Validate(p, s.dims); err != nil {
		return err
	}

	var err error
	for range maxConflictRetries {
		if cerr := ctx.Err(); cerr != nil {
			return classify("upsert", p.FID, cerr)
		}
		err = s.upsertOnce(p)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return classify("upsert", p.FID, err)
	}
	return nil
}

func (s *Store) upsertOnce(p profilestore.Profile) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	key := profileKey(p.FID)
	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	existing, err := readProfile(tx, key)
	switch {
	case err == nil:
		p.CreatedAt = existing.CreatedAt
	case !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	value, err := json.Marshal(p)
	if err != nil {
		return &serializationError{err}
	}
	if err := tx.Set(key, value); err != nil {
		return err
	}
	return tx.Commit()
}

// Get implements [profilestore.Store].
func (s *Store) Get(ctx context.Context, fid int64) (*profilestore.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("get", fid, err)
	}
	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	p, err := readProfile(tx, profileKey(fid))
	if err != nil {
		return nil, classify("get", fid, err)
	}
	return p, nil
}

// Search implements [profilestore.Store] by scanning every stored profile.
func (s *Store) Search(ctx context.Context, embedding []float32, k int, excludeFID int64) ([]profilestore.Match, error) {
	if k <= 0 {
		return []profilestore.Match{}, nil
	}
	if s.dims > 0 && len(embedding) != s.dims {
		return nil, &profilestore.Error{
			Op:     "search",
			Reason: profilestore.ReasonSerialization,
			Err:    &profilestore.DimensionError{Got: len(embedding), Want: s.dims},
		}
	}

	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(profilePrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var matches []profilestore.Match
	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, classify("search", 0, err)
		}
		var p profilestore.Profile
		err := iter.Item().Value(func(val []byte) error {
			if err := json.Unmarshal(val, &p); err != nil {
				return &serializationError{err}
			}
			return nil
		})
		if err != nil {
			return nil, classify("search", 0, err)
		}
		if p.FID == excludeFID {
			continue
		}
		matches = append(matches, profilestore.Match{
			Profile:  p,
			Distance: profilestore.CosineDistance(embedding, p.Embedding),
		})
	}
	if matches == nil {
		return []profilestore.Match{}, nil
	}
	return profilestore.RankMatches(matches, k), nil
}

// Ping implements [profilestore.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classify("ping", 0, err)
	}
	if s.db.IsClosed() {
		return classify("ping", 0, badger.ErrDBClosed)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func readProfile(tx *badger.Txn, key []byte) (*profilestore.Profile, error) {
	item, err := tx.Get(key)
	if err != nil {
		return nil, err
	}
	var p profilestore.Profile
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &p); err != nil {
			return &serializationError{err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type serializationError struct{ err error }

func (e *serializationError) Error() string { return "encode profile: " + e.err.Error() }
func (e *serializationError) Unwrap() error { return e.err }

func classify(op string, fid int64, err error) error {
	reason := profilestore.ReasonUnknown
	var serr *serializationError
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		reason = profilestore.ReasonNotFound
	case errors.As(err, &serr):
		reason = profilestore.ReasonSerialization
	case errors.Is(err, badger.ErrDBClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		reason = profilestore.ReasonConnectivity
	}
	return &profilestore.Error{Op: op, Reason: reason, FID: fid, Err: err}
}
