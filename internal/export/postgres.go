package export

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matsen/papertree/internal/paper"
)

// PostgresExporter upserts a tree into a PostgreSQL table with JSONB
// author and reference columns.
type PostgresExporter struct {
	URL          string
	Table        string
	DropExisting bool
}

// Export implements Exporter.
func (e *PostgresExporter) Export(ctx context.Context, t *paper.Tree) error {
	if err := e.export(ctx, t); err != nil {
		return &ExportError{Format: FormatPostgres, Dest: redactURL(e.URL), Err: err}
	}
	return nil
}

func (e *PostgresExporter) export(ctx context.Context, t *paper.Tree) error {
	table := e.Table
	if table == "" {
		table = DefaultTable
	}
	ident, err := tableIdent(table)
	if err != nil {
		return err
	}

	pool, err := openPool(ctx, e.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", ErrDatabase, err)
	}
	defer tx.Rollback(ctx)

	if e.DropExisting {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident+" CASCADE"); err != nil {
			return fmt.Errorf("%w: dropping table: %w", ErrDatabase, err)
		}
	}
	for _, stmt := range postgresSchema(table, ident) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: creating schema: %w", ErrDatabase, err)
		}
	}

	insert := `
		INSERT INTO ` + ident + ` (
			paper_id, title, year, citation_count, abstract,
			authors, depth, "references",
			root_id, root_title, build_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (paper_id) DO UPDATE SET
			title = EXCLUDED.title,
			year = EXCLUDED.year,
			citation_count = EXCLUDED.citation_count,
			abstract = EXCLUDED.abstract,
			authors = EXCLUDED.authors,
			depth = EXCLUDED.depth,
			"references" = EXCLUDED."references",
			root_id = EXCLUDED.root_id,
			root_title = EXCLUDED.root_title,
			build_id = EXCLUDED.build_id
	`

	papers := sortedPapers(t)
	rootID, rootTitle, buildID := t.RootID(), t.RootTitle(), t.BuildID()

	batch := &pgx.Batch{}
	for _, p := range papers {
		authorsJSON, referencesJSON, err := marshalEdges(p)
		if err != nil {
			return err
		}
		batch.Queue(insert,
			p.ID,
			nullableString(p.Title),
			p.Year,
			p.CitationCount,
			p.Abstract,
			authorsJSON,
			p.Depth,
			referencesJSON,
			rootID,
			rootTitle,
			buildID,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for _, p := range papers {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("%w: inserting %s: %w", ErrDatabase, p.ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("%w: closing batch: %w", ErrDatabase, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing: %w", ErrDatabase, err)
	}
	return nil
}

func postgresSchema(table, ident string) []string {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS ` + ident + ` (
			paper_id VARCHAR(255) PRIMARY KEY,
			title TEXT,
			year INTEGER,
			citation_count INTEGER,
			abstract TEXT,
			authors JSONB,
			depth INTEGER NOT NULL,
			"references" JSONB,
			root_id VARCHAR(255) NOT NULL,
			root_title TEXT NOT NULL,
			build_id TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, col := range []string{"depth", "year", "citation_count", "root_title"} {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexIdent(table, col), ident, col))
	}
	stmts = append(stmts, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING gin(to_tsvector('english', coalesce(title, '')))",
		indexIdent(table, "title"), ident))
	return stmts
}

// openPool connects to PostgreSQL and verifies the connection.
func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	// A single export needs few connections.
	config.MaxConns = 4
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return pool, nil
}

// redactURL hides the password of a connection URL for error messages.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "postgres"
	}
	return u.Redacted()
}
