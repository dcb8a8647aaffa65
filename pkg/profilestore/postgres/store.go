package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/frameingest/pkg/profilestore"
)

var _ profilestore.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [profilestore.Store]. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	table   string
	dims    int
	migrate bool
	now     func() time.Time

	// Pre-rendered statements; the table name is fixed at construction.
	qUpsert string
	qGet    string
	qSearch string
}

// Option configures a [Store].
type Option func(*Store)

// WithTable overrides the table name (default [DefaultTable]).
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithoutMigrate skips running [Migrate] in [NewStore]. Use it when the schema
// is managed out of band (e.g. by "profilectl migrate").
func WithoutMigrate() Option {
	return func(s *Store) { s.migrate = false }
}

// NewStore creates a Store, establishes a connection pool to the database at
// dsn, registers pgvector types on every connection, and runs [Migrate].
//
// embeddingDimensions is the length every stored embedding must have.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int, opts ...Option) (*Store, error) {
	if embeddingDimensions <= 0 {
		return nil, fmt.Errorf("postgres store: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	s := &Store{table: DefaultTable, dims: embeddingDimensions, migrate: true, now: time.Now}
	for _, o := range opts {
		o(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	if s.migrate {
		// The vector type does not exist until the extension is installed, so
		// the first migration runs on a pool without the AfterConnect hook.
		if err := migrateWithBootstrapPool(ctx, dsn, s.table, s.dims); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify("ping", 0, err)
	}

	s.pool = pool
	s.prepareQueries()
	return s, nil
}

func migrateWithBootstrapPool(ctx context.Context, dsn, table string, dims int) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres store: create migration pool: %w", err)
	}
	defer pool.Close()
	if err := Migrate(ctx, pool, table, dims); err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	return nil
}

func (s *Store) prepareQueries() {
	t := pgx.Identifier{s.table}.Sanitize()
	const cols = `fid, username, display_name, bio, summary, tags, style, embedding, ingest_id, created_at, updated_at`

	s.qUpsert = fmt.Sprintf(`
		INSERT INTO %s (`+cols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (fid) DO UPDATE SET
		    username     = EXCLUDED.username,
		    display_name = EXCLUDED.display_name,
		    bio          = EXCLUDED.bio,
		    summary      = EXCLUDED.summary,
		    tags         = EXCLUDED.tags,
		    style        = EXCLUDED.style,
		    embedding    = EXCLUDED.embedding,
		    ingest_id    = EXCLUDED.ingest_id,
		    updated_at   = EXCLUDED.updated_at`, t)

	s.qGet = fmt.Sprintf(`SELECT `+cols+` FROM %s WHERE fid = $1`, t)

	s.qSearch = fmt.Sprintf(`
		SELECT `+cols+`,
		       embedding <=> $1 AS distance
		FROM   %s
		WHERE  fid <> $2
		ORDER  BY distance, fid
		LIMIT  $3`, t)
}

// Upsert implements [profilestore.Store]. The row for p.FID is inserted or
// replaced in place; created_at keeps its first-insert value.
func (s *Store) Upsert(ctx context.Context, p profilestore.Profile) error {
	if err := profilestore.Validate(p, s.dims); err != nil {
		return err
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.pool.Exec(ctx, s.qUpsert,
		p.FID,
		p.Username,
		p.DisplayName,
		p.Bio,
		p.Summary,
		tags,
		p.Style,
		pgvector.NewVector(p.Embedding),
		p.IngestID,
		s.now().UTC(),
	)
	if err != nil {
		return classify("upsert", p.FID, err)
	}
	return nil
}

// Get implements [profilestore.Store].
func (s *Store) Get(ctx context.Context, fid int64) (*profilestore.Profile, error) {
	rows, err := s.pool.Query(ctx, s.qGet, fid)
	if err != nil {
		return nil, classify("get", fid, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (profilestore.Profile, error) {
		return scanProfile(row)
	})
	if err != nil {
		return nil, classify("get", fid, err)
	}
	return &p, nil
}

// Search implements [profilestore.Store]. Results are ordered by ascending
// cosine distance (most similar first).
func (s *Store) Search(ctx context.Context, embedding []float32, k int, excludeFID int64) ([]profilestore.Match, error) {
	if k <= 0 {
		return []profilestore.Match{}, nil
	}
	if len(embedding) != s.dims {
		return nil, &profilestore.Error{
			Op:     "search",
			Reason: profilestore.ReasonSerialization,
			Err:    &profilestore.DimensionError{Got: len(embedding), Want: s.dims},
		}
	}

	rows, err := s.pool.Query(ctx, s.qSearch, pgvector.NewVector(embedding), excludeFID, k)
	if err != nil {
		return nil, classify("search", 0, err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profilestore.Match, error) {
		var m profilestore.Match
		p, err := scanProfile(row, &m.Distance)
		if err != nil {
			return profilestore.Match{}, err
		}
		m.Profile = p
		return m, nil
	})
	if err != nil {
		return nil, classify("search", 0, err)
	}
	if results == nil {
		results = []profilestore.Match{}
	}
	return results, nil
}

// Ping implements [profilestore.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify("ping", 0, err)
	}
	return nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for maintenance tasks such as [Migrate].
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func scanProfile(row pgx.CollectableRow, extra ...any) (profilestore.Profile, error) {
	var (
		p   profilestore.Profile
		vec pgvector.Vector
	)
	dest := []any{
		&p.FID,
		&p.Username,
		&p.DisplayName,
		&p.Bio,
		&p.Summary,
		&p.Tags,
		&p.Style,
		&vec,
		&p.IngestID,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return profilestore.Profile{}, err
	}
	p.Embedding = vec.Slice()
	return p, nil
}
