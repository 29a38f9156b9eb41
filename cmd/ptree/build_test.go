package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matsen/papertree/internal/export"
)

func TestInferFormat(t *testing.T) {
	tests := []struct {
		dest string
		want string
	}{
		{"tree.json", export.FormatJSON},
		{"tree.JSONL", export.FormatJSONL},
		{"papers.db", export.FormatSQLite},
		{"papers.sqlite3", export.FormatSQLite},
		{"refs.bib", export.FormatBibTeX},
		{"postgres://u:p@localhost/papers", export.FormatPostgres},
		{"postgresql://localhost/papers", export.FormatPostgres},
		{"no-extension", export.FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			if got := inferFormat(tt.dest); got != tt.want {
				t.Errorf("inferFormat(%q) = %q, want %q", tt.dest, got, tt.want)
			}
		})
	}
}

func TestManyDest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "trees")

	got, err := manyDest(export.FormatJSON, dir, "ARXIV:1706.03762")
	if err != nil {
		t.Fatalf("manyDest() error = %v", err)
	}
	if want := filepath.Join(dir, "ARXIV_1706.03762.json"); got != want {
		t.Errorf("manyDest() = %q, want %q", got, want)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("manyDest() should create %s", dir)
	}

	got, err = manyDest(export.FormatBibTeX, dir, "DOI:10.1038/nature14539")
	if err != nil {
		t.Fatalf("manyDest() error = %v", err)
	}
	if want := filepath.Join(dir, "DOI_10.1038_nature14539.bib"); got != want {
		t.Errorf("manyDest() = %q, want %q", got, want)
	}

	// Database formats share one destination.
	got, err = manyDest(export.FormatSQLite, "papers.db", "P0")
	if err != nil || got != "papers.db" {
		t.Errorf("manyDest(sqlite) = %q, %v", got, err)
	}
}

func TestReadRootsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roots.txt")
	content := "# transformers\nARXIV:1706.03762\n\n  ARXIV:1810.04805  \n# done\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := readRootsFile(path)
	if err != nil {
		t.Fatalf("readRootsFile() error = %v", err)
	}
	want := []string{"ARXIV:1706.03762", "ARXIV:1810.04805"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("readRootsFile() = %v, want %v", got, want)
	}

	if _, err := readRootsFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("readRootsFile() on missing file should fail")
	}
}

func TestDisplayDest(t *testing.T) {
	got := displayDest(export.FormatPostgres, "postgres://user:secret@db/papers")
	if got != "postgres://user:****@db/papers" {
		t.Errorf("displayDest() = %q", got)
	}
	if got := displayDest(export.FormatJSON, "tree.json"); got != "tree.json" {
		t.Errorf("displayDest() = %q", got)
	}
}
