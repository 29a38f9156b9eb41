package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/matsen/papertree/internal/paper"
)

// DefaultIndent is the JSON indentation used when none is set.
const DefaultIndent = 2

// Document is the on-disk JSON form of a tree.
type Document struct {
	RootID          string                 `json:"root_id"`
	RequestedRootID string                 `json:"requested_root_id"`
	BuildID         string                 `json:"build_id"`
	RootTitle       string                 `json:"root_title"`
	Statistics      paper.Stats            `json:"statistics"`
	Papers          map[string]paper.Paper `json:"papers"`
}

// NewDocument captures a tree as a Document.
func NewDocument(t *paper.Tree) Document {
	doc := Document{
		RootID:          t.RootID(),
		RequestedRootID: t.RequestedRootID(),
		BuildID:         t.BuildID(),
		RootTitle:       t.RootTitle(),
		Statistics:      t.Stats(),
		Papers:          make(map[string]paper.Paper, t.Size()),
	}
	for _, p := range t.Papers() {
		doc.Papers[p.ID] = p
	}
	return doc
}

// JSONExporter writes a tree as a single JSON document.
type JSONExporter struct {
	Path   string
	Indent int // spaces; 0 uses DefaultIndent, negative writes compact JSON
}

// Export implements Exporter.
func (e *JSONExporter) Export(ctx context.Context, t *paper.Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := writeFileAtomic(e.Path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if indent := e.indent(); indent > 0 {
			enc.SetIndent("", strings.Repeat(" ", indent))
		}
		if err := enc.Encode(NewDocument(t)); err != nil {
			return fmt.Errorf("encoding tree: %w", err)
		}
		return nil
	})
	if err != nil {
		return &ExportError{Format: FormatJSON, Dest: e.Path, Err: err}
	}
	return nil
}

func (e *JSONExporter) indent() int {
	if e.Indent == 0 {
		return DefaultIndent
	}
	return e.Indent
}

// LoadJSON reads a tree written by JSONExporter. Every paper is checked
// against the same rules the builder applies, and the result is frozen.
func LoadJSON(path string) (*paper.Tree, error) {
	fail := func(err error) error {
		return &ExportError{Format: FormatJSON, Dest: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fail(fmt.Errorf("reading file: %w", err))
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fail(fmt.Errorf("parsing document: %w", err))
	}

	t, err := doc.Tree()
	if err != nil {
		return nil, fail(err)
	}
	return t, nil
}

// Tree rebuilds a frozen tree from the document.
func (d Document) Tree() (*paper.Tree, error) {
	requested := d.RequestedRootID
	if requested == "" {
		requested = d.RootID
	}
	t := paper.NewTree(requested, d.BuildID)

	keys := make([]string, 0, len(d.Papers))
	for k := range d.Papers {
		keys = append(keys, k)
	}
	// Root first so it is established before anything else.
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := d.Papers[keys[i]], d.Papers[keys[j]]
		if pi.Depth != pj.Depth {
			return pi.Depth < pj.Depth
		}
		return keys[i] < keys[j]
	})

	for _, key := range keys {
		p := d.Papers[key]
		if p.ID != key {
			return nil, &paper.ValidationError{
				Field:   "paperId",
				Message: fmt.Sprintf("does not match its key %q", key),
				PaperID: p.ID,
			}
		}
		if err := t.Add(p); err != nil {
			return nil, fmt.Errorf("loading paper %s: %w", key, err)
		}
	}

	if d.RootID != "" && t.RootID() != d.RootID {
		return nil, &paper.ValidationError{
			Field:   "root_id",
			Message: fmt.Sprintf("root %q has no depth-0 paper", d.RootID),
		}
	}

	t.Freeze()
	return t, nil
}
