package paper

import (
	"errors"
	"testing"
)

func samplePaper(id string, depth int, refs ...string) Paper {
	return Paper{
		ID:         id,
		Title:      "Title of " + id,
		Depth:      depth,
		References: refs,
	}
}

func TestPaper_Validate(t *testing.T) {
	tests := []struct {
		name      string
		paper     Paper
		wantField string
	}{
		{"valid", samplePaper("P0", 0), ""},
		{"empty id", Paper{Title: "x"}, "paperId"},
		{"whitespace id", Paper{ID: "   "}, "paperId"},
		{"negative depth", Paper{ID: "P1", Depth: -1}, "depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.paper.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestPaper_Equal(t *testing.T) {
	a := samplePaper("P0", 0)
	b := samplePaper("P0", 3)
	b.Title = "Different"
	if !a.Equal(b) {
		t.Error("papers with the same ID should be equal")
	}
	if a.Equal(samplePaper("P1", 0)) {
		t.Error("papers with different IDs should not be equal")
	}
}

func TestUniqueReferences(t *testing.T) {
	got := UniqueReferences([]string{"b", "a", "", "b", " c ", "a"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("UniqueReferences() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UniqueReferences()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTree_AddFirstWriteWins(t *testing.T) {
	tree := NewTree("P0", "")
	if err := tree.Add(samplePaper("P0", 0, "P1")); err != nil {
		t.Fatalf("Add(root) error = %v", err)
	}
	if err := tree.Add(samplePaper("P1", 1)); err != nil {
		t.Fatalf("Add(P1) error = %v", err)
	}

	dup := samplePaper("P1", 2)
	dup.Title = "overwritten"
	err := tree.Add(dup)
	if !errors.Is(err, ErrDuplicatePaper) {
		t.Fatalf("Add(duplicate) error = %v, want ErrDuplicatePaper", err)
	}

	got, _ := tree.Get("P1")
	if got.Depth != 1 || got.Title != "Title of P1" {
		t.Errorf("duplicate add changed paper: %+v", got)
	}
	if tree.MaxDepth() != 1 {
		t.Errorf("MaxDepth() = %d, want 1", tree.MaxDepth())
	}
}

func TestTree_RootHandling(t *testing.T) {
	tree := NewTree("ARXIV:1706.03762", "build-1")
	if _, ok := tree.Root(); ok {
		t.Error("empty tree should have no root")
	}
	if tree.RootTitle() != UnknownRootTitle {
		t.Errorf("RootTitle() = %q, want %q", tree.RootTitle(), UnknownRootTitle)
	}

	if err := tree.Add(samplePaper("abc", 0)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if tree.RootID() != "abc" {
		t.Errorf("RootID() = %q, want abc", tree.RootID())
	}
	if tree.RequestedRootID() != "ARXIV:1706.03762" {
		t.Errorf("RequestedRootID() = %q", tree.RequestedRootID())
	}
	if tree.BuildID() != "build-1" {
		t.Errorf("BuildID() = %q, want build-1", tree.BuildID())
	}
	if tree.RootTitle() != "Title of abc" {
		t.Errorf("RootTitle() = %q", tree.RootTitle())
	}

	if err := tree.Add(samplePaper("other", 0)); !errors.Is(err, ErrDuplicateRoot) {
		t.Errorf("second root error = %v, want ErrDuplicateRoot", err)
	}
}

func TestTree_GeneratesBuildID(t *testing.T) {
	a := NewTree("P0", "")
	b := NewTree("P0", "")
	if a.BuildID() == "" || a.BuildID() == b.BuildID() {
		t.Errorf("build IDs should be unique and non-empty: %q %q", a.BuildID(), b.BuildID())
	}
}

func TestTree_Freeze(t *testing.T) {
	tree := NewTree("P0", "")
	if err := tree.Add(samplePaper("P0", 0)); err != nil {
		t.Fatal(err)
	}
	tree.Freeze()
	if err := tree.Add(samplePaper("P1", 1)); !errors.Is(err, ErrTreeFrozen) {
		t.Errorf("Add after Freeze error = %v, want ErrTreeFrozen", err)
	}
	if tree.Size() != 1 {
		t.Errorf("Size() = %d, want 1", tree.Size())
	}
}

func TestTree_GetReturnsCopy(t *testing.T) {
	tree := NewTree("P0", "")
	if err := tree.Add(samplePaper("P0", 0, "P1", "P2")); err != nil {
		t.Fatal(err)
	}

	got, _ := tree.Get("P0")
	got.References[0] = "mutated"

	again, _ := tree.Get("P0")
	if again.References[0] != "P1" {
		t.Errorf("mutating a returned paper changed the tree: %v", again.References)
	}
}

func TestTree_AccessorsAndStats(t *testing.T) {
	tree := NewTree("P0", "")
	papers := []Paper{
		samplePaper("P0", 0, "P2", "P1"),
		samplePaper("P2", 1),
		samplePaper("P1", 1, "P3"),
		samplePaper("P3", 2),
	}
	for _, p := range papers {
		if err := tree.Add(p); err != nil {
			t.Fatalf("Add(%s) error = %v", p.ID, err)
		}
	}

	if tree.Size() != 4 {
		t.Errorf("Size() = %d, want 4", tree.Size())
	}
	if !tree.Contains("P3") || tree.Contains("P9") {
		t.Error("Contains() returned wrong result")
	}

	atOne := tree.AtDepth(1)
	if len(atOne) != 2 || atOne[0].ID != "P1" || atOne[1].ID != "P2" {
		t.Errorf("AtDepth(1) = %v, want [P1 P2]", atOne)
	}
	if len(tree.AtDepth(5)) != 0 {
		t.Error("AtDepth(5) should be empty")
	}

	ids := tree.IDs()
	if ids[0] != "P0" || ids[3] != "P3" {
		t.Errorf("IDs() = %v, want sorted", ids)
	}

	all := tree.Papers()
	if all[0].ID != "P0" || all[1].ID != "P1" || all[3].ID != "P3" {
		t.Errorf("Papers() not ordered by depth then ID: %v", all)
	}

	stats := tree.Stats()
	if stats.TotalPapers != 4 || stats.MaxDepth != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.PapersByDepth[0] != 1 || stats.PapersByDepth[1] != 2 || stats.PapersByDepth[2] != 1 {
		t.Errorf("PapersByDepth = %v", stats.PapersByDepth)
	}
	if stats.RootTitle != "Title of P0" {
		t.Errorf("RootTitle = %q", stats.RootTitle)
	}
}
