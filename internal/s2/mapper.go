package s2

import (
	"strings"

	"github.com/matsen/papertree/internal/paper"
)

// ToPaper converts a batch record into a tree paper at the given depth.
//
// Field mapping:
//
//	paperId               -> ID (required)
//	title                 -> Title ("" when missing)
//	year                  -> Year
//	citationCount         -> CitationCount
//	abstract              -> Abstract
//	authors[].authorId    -> Authors[].ID ("" when missing)
//	authors[].name        -> Authors[].Name ("" when missing)
//	references[].paperId  -> References (missing/empty skipped, duplicates collapsed)
func ToPaper(raw RawPaper, depth int) (paper.Paper, error) {
	p := paper.Paper{
		ID:            strings.TrimSpace(raw.PaperID),
		Title:         deref(raw.Title),
		Year:          raw.Year,
		CitationCount: raw.CitationCount,
		Abstract:      raw.Abstract,
		Authors:       mapAuthors(raw.Authors),
		Depth:         depth,
		References:    mapReferences(raw.References),
	}
	if err := p.Validate(); err != nil {
		return paper.Paper{}, err
	}
	return p, nil
}

// mapAuthors converts batch authors, keeping their order.
func mapAuthors(raw []RawAuthor) []paper.Author {
	if len(raw) == 0 {
		return nil
	}
	authors := make([]paper.Author, 0, len(raw))
	for _, a := range raw {
		authors = append(authors, paper.Author{
			ID:   deref(a.AuthorID),
			Name: deref(a.Name),
		})
	}
	return authors
}

// mapReferences extracts cited paper IDs.
func mapReferences(raw []RawReference) []string {
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		if r.PaperID != nil {
			ids = append(ids, *r.PaperID)
		}
	}
	return paper.UniqueReferences(ids)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
