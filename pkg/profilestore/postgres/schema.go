// Package postgres implements [profilestore.Store] on PostgreSQL with the
// pgvector extension.
//
// Each user is a single row keyed on fid. Embeddings live in a vector(N)
// column with an HNSW cosine index, up to [MaxIndexedDimensions], so
// [Store.Search] can run nearest neighbour queries in the database. [Migrate] installs the extension and
// creates the table and indexes; it is idempotent.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Upsert(ctx, profile)
//	p, _ := store.Get(ctx, 42)
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table name used when [WithTable] is not given.
const DefaultTable = "users"

// MaxIndexedDimensions is the largest vector pgvector's HNSW index accepts.
// Wider embeddings are stored without it and searched by sequential scan.
const MaxIndexedDimensions = 2000

// ddl returns the schema for table with the embedding dimension substituted.
// The vector dimension is baked into the column type at creation time.
func ddl(table string, embeddingDimensions int) []string {
	t := pgx.Identifier{table}.Sanitize()
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    fid           BIGINT       PRIMARY KEY CHECK (fid > 0),
    username      TEXT         NOT NULL DEFAULT '',
    display_name  TEXT         NOT NULL DEFAULT '',
    bio           TEXT         NOT NULL DEFAULT '',
    summary       TEXT         NOT NULL,
    tags          TEXT[]       NOT NULL DEFAULT '{}',
    style         TEXT         NOT NULL DEFAULT '',
    embedding     vector(%d)   NOT NULL,
    ingest_id     UUID         NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
)`, t, embeddingDimensions),
		fmt.Sprintf(`
CREATE INDEX IF NOT EXISTS %s
    ON %s USING GIN (tags)`,
			pgx.Identifier{table + "_tags_gin"}.Sanitize(), t),
	}
	if embeddingDimensions <= MaxIndexedDimensions {
		stmts = append(stmts, fmt.Sprintf(`
CREATE INDEX IF NOT EXISTS %s
    ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{table + "_embedding_hnsw"}.Sanitize(), t))
	}
	return stmts
}

// Migrate creates the pgvector extension, the profile table, and its indexes.
// It is safe to call on every start.
//
// embeddingDimensions must match the embedding model (e.g. 1536 for OpenAI
// text-embedding-3-small, 768 for nomic-embed-text). Changing it after the
// first migration requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, table string, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	if table == "" {
		table = DefaultTable
	}
	if embeddingDimensions > MaxIndexedDimensions {
		slog.Warn("postgres migrate: embeddings too wide for an HNSW index, search will scan",
			"table", table, "dimensions", embeddingDimensions, "max_indexed", MaxIndexedDimensions)
	}
	for _, stmt := range ddl(table, embeddingDimensions) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
