// Package s2 provides a client for the Semantic Scholar Academic Graph
// batch endpoint and the mapping from its records to citation tree papers.
package s2

// RawPaper is one record returned by the batch paper endpoint.
// Every field except PaperID may be missing from the response, so optional
// fields are pointers.
type RawPaper struct {
	PaperID       string         `json:"paperId"`
	Title         *string        `json:"title,omitempty"`
	Year          *int           `json:"year,omitempty"`
	CitationCount *int           `json:"citationCount,omitempty"`
	Abstract      *string        `json:"abstract,omitempty"`
	Authors       []RawAuthor    `json:"authors,omitempty"`
	References    []RawReference `json:"references,omitempty"`
}

// RawAuthor represents an author entry in a batch record.
type RawAuthor struct {
	AuthorID *string `json:"authorId,omitempty"`
	Name     *string `json:"name,omitempty"`
}

// RawReference is a cited paper stub; only its ID is requested.
type RawReference struct {
	PaperID *string `json:"paperId,omitempty"`
}

// PaperBatchRequest is the request body for the batch paper lookup.
type PaperBatchRequest struct {
	IDs []string `json:"ids"`
}

// BatchResult maps each requested identifier to its record.
//
// A key with a nil value means the service confirmed the identifier unknown.
// A requested identifier with no key at all was not fetched, because its
// sub-batch failed.
type BatchResult map[string]*RawPaper

// Found returns the record for id, if the service returned one.
func (r BatchResult) Found(id string) (*RawPaper, bool) {
	p, ok := r[id]
	return p, ok && p != nil
}

// IsAbsent reports whether the service confirmed id unknown.
func (r BatchResult) IsAbsent(id string) bool {
	p, ok := r[id]
	return ok && p == nil
}

// Fetched reports whether id was answered at all, found or absent.
func (r BatchResult) Fetched(id string) bool {
	_, ok := r[id]
	return ok
}

// Counts returns the number of found and absent identifiers.
func (r BatchResult) Counts() (found, absent int) {
	for _, p := range r {
		if p == nil {
			absent++
		} else {
			found++
		}
	}
	return found, absent
}
