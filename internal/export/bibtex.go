package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/matsen/papertree/internal/paper"
)

// paperURLBase is the Semantic Scholar landing page prefix for a paper ID.
const paperURLBase = "https://www.semanticscholar.org/paper/"

// BibTeXExporter writes one @article entry per paper, ordered by ID.
type BibTeXExporter struct {
	Path string
}

// Export implements Exporter.
func (e *BibTeXExporter) Export(ctx context.Context, t *paper.Tree) error {
	err := writeFileAtomic(e.Path, func(w io.Writer) error {
		for i, p := range sortedPapers(t) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, ToBibTeX(p)); err != nil {
				return fmt.Errorf("writing entry %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return &ExportError{Format: FormatBibTeX, Dest: e.Path, Err: err}
	}
	return nil
}

// ToBibTeX converts a paper to a BibTeX entry.
func ToBibTeX(p paper.Paper) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@article{%s,\n", CiteKey(p.ID)))

	// Authors
	if len(p.Authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(p.Authors)))
	}

	// Title
	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(p.Title)))

	// Year (optional)
	if p.Year != nil {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", *p.Year))
	}

	// Abstract (optional, if present)
	if p.Abstract != nil && *p.Abstract != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(*p.Abstract)))
	}

	b.WriteString(fmt.Sprintf("  url = {%s%s},\n", paperURLBase, p.ID))
	b.WriteString(fmt.Sprintf("  note = {citation tree depth %d},\n", p.Depth))

	b.WriteString("}\n")

	return b.String()
}

// CiteKey turns a paper ID into a BibTeX key, replacing characters BibTeX
// does not allow in keys.
func CiteKey(id string) string {
	var key strings.Builder
	for _, r := range id {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			key.WriteRune(r)
		case r == '-' || r == '_' || r == ':' || r == '.':
			key.WriteRune(r)
		default:
			key.WriteRune('_')
		}
	}
	return key.String()
}

// Common name suffixes to keep with the last name.
var nameSuffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"phd":  true,
	"ph.d": true,
	"md":   true,
	"m.d":  true,
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First"
func formatAuthors(authors []paper.Author) string {
	var formatted []string
	for _, a := range authors {
		first, last := splitAuthorName(a.Name)
		switch {
		case last == "":
			continue
		case first != "":
			formatted = append(formatted, fmt.Sprintf("%s, %s", escapeLatex(last), escapeLatex(first)))
		default:
			formatted = append(formatted, escapeLatex(last))
		}
	}
	return strings.Join(formatted, " and ")
}

// splitAuthorName splits a display name into first and last name.
// Suffixes (Jr, III, PhD) stay with the last name. Multi-part surnames such
// as "van der Waals" split at the final word.
func splitAuthorName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	}

	lastPart := strings.ToLower(parts[len(parts)-1])
	if nameSuffixes[lastPart] && len(parts) > 2 {
		last = parts[len(parts)-2] + " " + parts[len(parts)-1]
		first = strings.Join(parts[:len(parts)-2], " ")
		return first, last
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\textbackslash{}`,
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
