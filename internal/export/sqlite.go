package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/matsen/papertree/internal/paper"
)

// SQLiteExporter upserts a tree into a SQLite table. Rows from earlier
// exports of other trees are kept unless DropExisting is set.
type SQLiteExporter struct {
	Path         string
	Table        string
	DropExisting bool
}

// Export implements Exporter.
func (e *SQLiteExporter) Export(ctx context.Context, t *paper.Tree) error {
	if err := e.export(ctx, t); err != nil {
		return &ExportError{Format: FormatSQLite, Dest: e.Path, Err: err}
	}
	return nil
}

func (e *SQLiteExporter) export(ctx context.Context, t *paper.Tree) error {
	table := e.Table
	if table == "" {
		table = DefaultTable
	}
	ident, err := tableIdent(table)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", e.Path)
	if err != nil {
		return fmt.Errorf("%w: opening database: %w", ErrDatabase, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", ErrDatabase, err)
	}
	defer tx.Rollback()

	if e.DropExisting {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
			return fmt.Errorf("%w: dropping table: %w", ErrDatabase, err)
		}
	}
	if err := createSQLiteSchema(ctx, tx, table, ident); err != nil {
		return fmt.Errorf("%w: creating schema: %w", ErrDatabase, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+ident+` (
			paper_id, title, year, citation_count, abstract,
			authors_json, depth, references_json,
			root_id, root_title, build_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET
			title = excluded.title,
			year = excluded.year,
			citation_count = excluded.citation_count,
			abstract = excluded.abstract,
			authors_json = excluded.authors_json,
			depth = excluded.depth,
			references_json = excluded.references_json,
			root_id = excluded.root_id,
			root_title = excluded.root_title,
			build_id = excluded.build_id
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing insert: %w", ErrDatabase, err)
	}
	defer stmt.Close()

	rootID, rootTitle, buildID := t.RootID(), t.RootTitle(), t.BuildID()
	for _, p := range sortedPapers(t) {
		authorsJSON, referencesJSON, err := marshalEdges(p)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			p.ID,
			nullableString(p.Title),
			nullableInt(p.Year),
			nullableInt(p.CitationCount),
			nullableStringPtr(p.Abstract),
			string(authorsJSON),
			p.Depth,
			string(referencesJSON),
			rootID,
			rootTitle,
			buildID,
		)
		if err != nil {
			return fmt.Errorf("%w: inserting %s: %w", ErrDatabase, p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %w", ErrDatabase, err)
	}
	return nil
}

func createSQLiteSchema(ctx context.Context, tx *sql.Tx, table, ident string) error {
	schema := `
		CREATE TABLE IF NOT EXISTS ` + ident + ` (
			paper_id TEXT PRIMARY KEY,
			title TEXT,
			year INTEGER,
			citation_count INTEGER,
			abstract TEXT,
			authors_json TEXT NOT NULL,
			depth INTEGER NOT NULL,
			references_json TEXT NOT NULL,
			root_id TEXT NOT NULL,
			root_title TEXT NOT NULL,
			build_id TEXT NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		);`
	for _, col := range []string{"depth", "year", "citation_count", "root_title"} {
		schema += fmt.Sprintf("\nCREATE INDEX IF NOT EXISTS %s ON %s(%s);", indexIdent(table, col), ident, col)
	}
	_, err := tx.ExecContext(ctx, schema)
	return err
}

// marshalEdges encodes a paper's authors and references for storage.
func marshalEdges(p paper.Paper) (authors, references []byte, err error) {
	authorList := p.Authors
	if authorList == nil {
		authorList = []paper.Author{}
	}
	refs := p.References
	if refs == nil {
		refs = []string{}
	}
	authors, err = json.Marshal(authorList)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling authors for %s: %w", p.ID, err)
	}
	references, err = json.Marshal(refs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling references for %s: %w", p.ID, err)
	}
	return authors, references, nil
}

// nullableString returns nil for empty strings, otherwise the string.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
