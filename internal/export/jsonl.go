package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matsen/papertree/internal/paper"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// JSONLExporter writes one paper per line, ordered by ID.
type JSONLExporter struct {
	Path string
}

// Export implements Exporter.
func (e *JSONLExporter) Export(ctx context.Context, t *paper.Tree) error {
	err := writeFileAtomic(e.Path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		enc.SetEscapeHTML(false)
		for _, p := range sortedPapers(t) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := enc.Encode(p); err != nil {
				return fmt.Errorf("encoding paper %s: %w", p.ID, err)
			}
		}
		return bw.Flush()
	})
	if err != nil {
		return &ExportError{Format: FormatJSONL, Dest: e.Path, Err: err}
	}
	return nil
}

// ReadJSONL reads all papers from a JSONL file written by JSONLExporter.
func ReadJSONL(path string) ([]paper.Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExportError{Format: FormatJSONL, Dest: path, Err: fmt.Errorf("opening file: %w", err)}
	}
	defer f.Close()

	var papers []paper.Paper
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long abstracts
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}

		var p paper.Paper
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, &ExportError{Format: FormatJSONL, Dest: path, Err: fmt.Errorf("parsing line %d: %w", lineNum, err)}
		}
		if err := p.Validate(); err != nil {
			return nil, &ExportError{Format: FormatJSONL, Dest: path, Err: fmt.Errorf("line %d: %w", lineNum, err)}
		}
		papers = append(papers, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, &ExportError{Format: FormatJSONL, Dest: path, Err: fmt.Errorf("reading file: %w", err)}
	}

	return papers, nil
}

// LoadJSONL rebuilds a frozen tree from a file written by JSONLExporter. The
// root is the depth-0 paper. JSONL carries no build metadata, so the tree
// gets a fresh build ID and its requested root is the root's own ID.
func LoadJSONL(path string) (*paper.Tree, error) {
	papers, err := ReadJSONL(path)
	if err != nil {
		return nil, err
	}
	fail := func(err error) error {
		return &ExportError{Format: FormatJSONL, Dest: path, Err: err}
	}

	doc := Document{Papers: make(map[string]paper.Paper, len(papers))}
	for _, p := range papers {
		if _, dup := doc.Papers[p.ID]; dup {
			return nil, fail(&paper.ValidationError{Field: "paperId", Message: "appears on more than one line", PaperID: p.ID})
		}
		if p.Depth == 0 {
			doc.RootID = p.ID
		}
		doc.Papers[p.ID] = p
	}
	if doc.RootID == "" {
		return nil, fail(&paper.ValidationError{Field: "depth", Message: "no depth-0 root paper"})
	}

	t, err := doc.Tree()
	if err != nil {
		return nil, fail(err)
	}
	return t, nil
}
