// Package paper defines the core domain types for citation trees: papers,
// their authors, and the deduplicated tree a traversal produces.
package paper

import (
	"slices"
	"strings"
)

// Author represents a paper author as reported by Semantic Scholar.
type Author struct {
	ID   string `json:"authorId"` // S2 author ID, empty when unknown
	Name string `json:"name"`
}

// Paper is one node of a citation tree.
//
// Optional metadata is held in pointers; nil means the service did not
// report the field. References is an ordered set of outgoing citation
// edges and may name papers that are not part of the tree.
type Paper struct {
	// Identity
	ID string `json:"paperId"`

	// Metadata
	Title         string   `json:"title"`
	Year          *int     `json:"year"`
	CitationCount *int     `json:"citationCount"`
	Abstract      *string  `json:"abstract"`
	Authors       []Author `json:"authors"`

	// Graph
	Depth      int      `json:"depth"`
	References []string `json:"references"`
}

// Validate checks the invariants every Paper must satisfy.
// Only the identifier is required; all other metadata is optional.
func (p Paper) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{Field: "paperId", Message: "identifier is missing or empty"}
	}
	if p.Depth < 0 {
		return &ValidationError{Field: "depth", Message: "depth must be non-negative", PaperID: p.ID}
	}
	return nil
}

// Equal reports whether two papers share an identifier.
func (p Paper) Equal(other Paper) bool {
	return p.ID == other.ID
}

// HasReference reports whether p cites the given identifier.
func (p Paper) HasReference(id string) bool {
	return slices.Contains(p.References, id)
}

// clone returns a copy of p that shares no slices with the original.
func (p Paper) clone() Paper {
	p.Authors = slices.Clone(p.Authors)
	p.References = slices.Clone(p.References)
	return p
}

// UniqueReferences removes empty and repeated identifiers while keeping
// first-seen order.
func UniqueReferences(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// IntPtr returns a pointer to v. Handy for building optional fields.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
