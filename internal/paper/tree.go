package paper

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// UnknownRootTitle is reported when a tree has no root paper.
const UnknownRootTitle = "Unknown"

// Tree is a deduplicated citation tree keyed by paper ID.
//
// A Tree is filled by the traversal engine (or a loader) through Add and then
// frozen; accessors hand out copies so a frozen tree cannot be modified.
type Tree struct {
	rootID          string
	requestedRootID string
	buildID         string
	papers          map[string]Paper
	maxDepth        int
	frozen          bool
}

// Stats summarizes a tree.
type Stats struct {
	TotalPapers   int         `json:"total_papers"`
	RootTitle     string      `json:"root_title"`
	MaxDepth      int         `json:"max_depth"`
	PapersByDepth map[int]int `json:"papers_by_depth"`
}

// NewTree creates an empty tree for the given requested root identifier.
// A new build ID is generated when buildID is empty.
func NewTree(requestedRootID, buildID string) *Tree {
	if buildID == "" {
		buildID = uuid.NewString()
	}
	return &Tree{
		requestedRootID: requestedRootID,
		buildID:         buildID,
		papers:          make(map[string]Paper),
	}
}

// Add inserts a paper. The first write for an ID wins: a second paper with
// the same ID is rejected with ErrDuplicatePaper and the tree is unchanged.
// The first depth-0 paper becomes the root.
func (t *Tree) Add(p Paper) error {
	if t.frozen {
		return ErrTreeFrozen
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := t.papers[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePaper, p.ID)
	}
	if p.Depth == 0 {
		if t.rootID != "" {
			return fmt.Errorf("%w: %s (root is %s)", ErrDuplicateRoot, p.ID, t.rootID)
		}
		t.rootID = p.ID
	}

	p = p.clone()
	p.References = UniqueReferences(p.References)
	t.papers[p.ID] = p
	if p.Depth > t.maxDepth {
		t.maxDepth = p.Depth
	}
	return nil
}

// Freeze makes the tree read-only. Further calls to Add fail.
func (t *Tree) Freeze() {
	t.frozen = true
}

// Frozen reports whether the tree is read-only.
func (t *Tree) Frozen() bool {
	return t.frozen
}

// RootID returns the canonical identifier of the root paper, or "" if the
// tree has no root.
func (t *Tree) RootID() string {
	return t.rootID
}

// RequestedRootID returns the identifier the build was started from. It may
// be an alias (e.g. ARXIV:1706.03762) of RootID.
func (t *Tree) RequestedRootID() string {
	return t.requestedRootID
}

// BuildID returns the identifier of the build that produced the tree.
func (t *Tree) BuildID() string {
	return t.buildID
}

// Get returns the paper with the given ID.
func (t *Tree) Get(id string) (Paper, bool) {
	p, ok := t.papers[id]
	if !ok {
		return Paper{}, false
	}
	return p.clone(), true
}

// Contains reports whether the tree holds a paper with the given ID.
func (t *Tree) Contains(id string) bool {
	_, ok := t.papers[id]
	return ok
}

// Root returns the depth-0 paper.
func (t *Tree) Root() (Paper, bool) {
	if t.rootID == "" {
		return Paper{}, false
	}
	return t.Get(t.rootID)
}

// RootTitle returns the root paper's title, or UnknownRootTitle.
func (t *Tree) RootTitle() string {
	root, ok := t.Root()
	if !ok || root.Title == "" {
		return UnknownRootTitle
	}
	return root.Title
}

// Size returns the number of papers in the tree.
func (t *Tree) Size() int {
	return len(t.papers)
}

// MaxDepth returns the highest depth populated in the tree.
func (t *Tree) MaxDepth() int {
	return t.maxDepth
}

// IDs returns all paper IDs in sorted order.
func (t *Tree) IDs() []string {
	ids := make([]string, 0, len(t.papers))
	for id := range t.papers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Papers returns copies of all papers sorted by depth, then ID.
func (t *Tree) Papers() []Paper {
	out := make([]Paper, 0, len(t.papers))
	for _, p := range t.papers {
		out = append(out, p.clone())
	}
	slices.SortFunc(out, func(a, b Paper) int {
		if a.Depth != b.Depth {
			return a.Depth - b.Depth
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// AtDepth returns the papers at depth d sorted by ID.
func (t *Tree) AtDepth(d int) []Paper {
	var out []Paper
	for _, p := range t.papers {
		if p.Depth == d {
			out = append(out, p.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns aggregate counts for the tree.
func (t *Tree) Stats() Stats {
	byDepth := make(map[int]int)
	for _, p := range t.papers {
		byDepth[p.Depth]++
	}
	return Stats{
		TotalPapers:   len(t.papers),
		RootTitle:     t.RootTitle(),
		MaxDepth:      t.maxDepth,
		PapersByDepth: byDepth,
	}
}
