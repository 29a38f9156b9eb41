// Package export writes citation trees to files and databases.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/matsen/papertree/internal/paper"
)

// Supported formats.
const (
	FormatJSON     = "json"
	FormatJSONL    = "jsonl"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
	FormatBibTeX   = "bibtex"
)

// DefaultTable is the table name used by the database exporters.
const DefaultTable = "citation_tree"

var (
	// ErrDatabase marks failures talking to a database.
	ErrDatabase = errors.New("database error")

	// ErrUnknownFormat is returned by New for an unsupported format.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrInvalidTable is returned for a table name that is not a plain identifier.
	ErrInvalidTable = errors.New("invalid table name")
)

// Exporter writes a tree to some destination. Exporters only read the tree.
type Exporter interface {
	Export(ctx context.Context, t *paper.Tree) error
}

// ExportError describes a failed export or load.
type ExportError struct {
	Format string
	Dest   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("%s export to %s failed: %v", e.Format, e.Dest, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsDatabaseError reports whether err came from a database exporter.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// Options holds settings for exporters created by New.
type Options struct {
	Table        string // sqlite, postgres
	DropExisting bool   // sqlite, postgres
	Indent       int    // json
}

// Formats lists the formats New accepts.
func Formats() []string {
	return []string{FormatJSON, FormatJSONL, FormatSQLite, FormatPostgres, FormatBibTeX}
}

// New returns the exporter for format writing to dest, a file path or, for
// postgres, a connection URL.
func New(format, dest string, opts Options) (Exporter, error) {
	if dest == "" {
		return nil, &ExportError{Format: format, Dest: dest, Err: errors.New("destination is required")}
	}
	table := opts.Table
	if table == "" {
		table = DefaultTable
	}

	switch strings.ToLower(format) {
	case FormatJSON:
		return &JSONExporter{Path: dest, Indent: opts.Indent}, nil
	case FormatJSONL:
		return &JSONLExporter{Path: dest}, nil
	case FormatSQLite:
		return &SQLiteExporter{Path: dest, Table: table, DropExisting: opts.DropExisting}, nil
	case FormatPostgres:
		return &PostgresExporter{URL: dest, Table: table, DropExisting: opts.DropExisting}, nil
	case FormatBibTeX, "bib":
		return &BibTeXExporter{Path: dest}, nil
	}
	return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
}

// LoadTree reads a tree saved as JSON or, for a .jsonl path, as JSONL.
func LoadTree(path string) (*paper.Tree, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return LoadJSONL(path)
	}
	return LoadJSON(path)
}

// sortedPapers returns the tree's papers ordered by ID.
func sortedPapers(t *paper.Tree) []paper.Paper {
	papers := t.Papers()
	sort.Slice(papers, func(i, j int) bool {
		return papers[i].ID < papers[j].ID
	})
	return papers
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// tableIdent validates a table name and returns it quoted for SQL.
func tableIdent(table string) (string, error) {
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

func indexIdent(table, column string) string {
	return pgx.Identifier{"idx_" + table + "_" + column}.Sanitize()
}

// writeFileAtomic writes through a temporary file in the destination
// directory and renames it into place, so readers never see a partial file.
func writeFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
