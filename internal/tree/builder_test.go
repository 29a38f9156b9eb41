package tree

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/papertree/internal/paper"
	"github.com/matsen/papertree/internal/s2"
)

// fakeFetcher serves a fixed citation graph. IDs missing from papers are
// reported absent; IDs in failing are left out of the result and reported in
// the returned error.
type fakeFetcher struct {
	papers  map[string]*s2.RawPaper
	failing map[string]bool
	calls   [][]string
}

func (f *fakeFetcher) FetchBatch(_ context.Context, ids []string) (s2.BatchResult, error) {
	f.calls = append(f.calls, slices.Clone(ids))

	result := make(s2.BatchResult, len(ids))
	var failed []string
	for _, id := range ids {
		if f.failing[id] {
			failed = append(failed, id)
			continue
		}
		result[id] = f.papers[id]
	}
	if len(failed) > 0 {
		return result, &s2.APIError{StatusCode: 500, Code: s2.CodeAPI, Message: "boom", IDs: failed, Attempts: 4}
	}
	return result, nil
}

func (f *fakeFetcher) requested(id string) int {
	n := 0
	for _, call := range f.calls {
		if slices.Contains(call, id) {
			n++
		}
	}
	return n
}

// graph builds a fake fetcher from an adjacency list.
func graph(edges map[string][]string) *fakeFetcher {
	f := &fakeFetcher{papers: make(map[string]*s2.RawPaper), failing: make(map[string]bool)}
	for id, refs := range edges {
		f.papers[id] = rawPaper(id, refs...)
	}
	return f
}

func rawPaper(id string, refs ...string) *s2.RawPaper {
	title := "Title " + id
	raw := &s2.RawPaper{PaperID: id, Title: &title}
	for _, r := range refs {
		raw.References = append(raw.References, s2.RawReference{PaperID: &r})
	}
	return raw
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBuilder(f Fetcher, opts ...Option) *Builder {
	return NewBuilder(f, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func depths(t *paper.Tree) map[string]int {
	out := make(map[string]int)
	for _, p := range t.Papers() {
		out[p.ID] = p.Depth
	}
	return out
}

func TestBuild_DepthIsShortestDistance(t *testing.T) {
	f := graph(map[string][]string{
		"P0": {"P1", "P2"},
		"P1": {"P3"},
		"P2": {"P1", "P3"},
		"P3": {"P4"},
		"P4": {"P0"},
	})

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 3)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"P0": 0, "P1": 1, "P2": 1, "P3": 2, "P4": 3}, depths(tr))
	assert.Equal(t, "P0", tr.RootID())
	assert.Equal(t, 3, tr.MaxDepth())
	assert.True(t, tr.Frozen())

	// Every non-root paper is cited by a paper one level up.
	for _, p := range tr.Papers() {
		if p.Depth == 0 {
			continue
		}
		cited := false
		for _, parent := range tr.AtDepth(p.Depth - 1) {
			if parent.HasReference(p.ID) {
				cited = true
			}
		}
		assert.True(t, cited, "%s has no parent at depth %d", p.ID, p.Depth-1)
	}
}

func TestBuild_AbsentReferenceSkipped(t *testing.T) {
	f := graph(map[string][]string{
		"P0": {"P1", "P2"},
		"P1": nil,
	})

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"P0", "P1"}, tr.IDs())
	root, ok := tr.Root()
	require.True(t, ok)
	assert.Equal(t, []string{"P1", "P2"}, root.References)
}

func TestBuild_CycleCollapses(t *testing.T) {
	f := graph(map[string][]string{
		"P0": {"P1"},
		"P1": {"P0"},
	})

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 2)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"P0": 0, "P1": 1}, depths(tr))
	p1, ok := tr.Get("P1")
	require.True(t, ok)
	assert.Equal(t, []string{"P0"}, p1.References)
	assert.Equal(t, 1, f.requested("P0"))
	assert.Len(t, f.calls, 2)
}

func TestBuild_MaxDepthZero(t *testing.T) {
	f := graph(map[string][]string{"P0": {"P1", "P2"}})

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"P0"}, tr.IDs())
	assert.Equal(t, 0, tr.MaxDepth())
	assert.Len(t, f.calls, 1)
}

func TestBuild_SharedReferenceFetchedOnce(t *testing.T) {
	f := graph(map[string][]string{
		"P0": {"P1", "P2"},
		"P1": {"P3"},
		"P2": {"P3"},
		"P3": nil,
	})

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 2)
	require.NoError(t, err)

	assert.Equal(t, 4, tr.Size())
	assert.Equal(t, 1, f.requested("P3"))
}

func TestBuild_Idempotent(t *testing.T) {
	edges := map[string][]string{
		"P0": {"P1", "P2"},
		"P1": {"P2", "P3"},
		"P2": {"P4"},
		"P3": {"P0"},
	}

	first, err := newTestBuilder(graph(edges)).Build(context.Background(), "P0", 2)
	require.NoError(t, err)
	second, err := newTestBuilder(graph(edges)).Build(context.Background(), "P0", 2)
	require.NoError(t, err)

	assert.Equal(t, depths(first), depths(second))
	assert.NotEqual(t, first.BuildID(), second.BuildID())
}

func TestBuild_RootAbsent(t *testing.T) {
	f := graph(map[string][]string{})

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 2)
	require.Error(t, err)
	assert.Nil(t, tr)
	assert.True(t, s2.IsNotFound(err))
	assert.True(t, s2.IsAPIError(err))
}

func TestBuild_RootFetchFails(t *testing.T) {
	f := graph(map[string][]string{"P0": {"P1"}})
	f.failing["P0"] = true

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 2)
	require.Error(t, err)
	assert.Nil(t, tr)

	var apiErr *s2.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"P0"}, apiErr.IDs)
}

func TestBuild_NonRootFailurePruned(t *testing.T) {
	f := graph(map[string][]string{
		"P0": {"P1", "P2"},
		"P1": nil,
		"P2": {"P3"},
		"P3": nil,
	})
	f.failing["P2"] = true

	var reports []LevelReport
	tr, err := newTestBuilder(f, WithProgress(func(r LevelReport) {
		reports = append(reports, r)
	})).Build(context.Background(), "P0", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"P0", "P1"}, tr.IDs())
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[1].Failed)
	assert.Equal(t, []string{"P2"}, reports[1].FailedIDs)
	assert.Equal(t, 1, reports[1].Fetched)
	assert.Equal(t, 0, f.requested("P3"))
}

func TestBuild_ProgressReports(t *testing.T) {
	f := graph(map[string][]string{
		"P0": {"P1", "P2", "P3"},
		"P1": {"P4"},
		"P2": {"P4", "P5"},
	})

	var reports []LevelReport
	_, err := newTestBuilder(f, WithProgress(func(r LevelReport) {
		reports = append(reports, r)
	})).Build(context.Background(), "P0", 1)
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, LevelReport{RootID: "P0", Depth: 0, Requested: 1, Fetched: 1, Added: 1, NextFrontier: 3}, reports[0])
	// The last level does not schedule a further frontier.
	assert.Equal(t, LevelReport{RootID: "P0", Depth: 1, Requested: 3, Fetched: 2, Absent: 1, Added: 2}, reports[1])
}

func TestBuild_AliasedRoot(t *testing.T) {
	f := graph(map[string][]string{
		"C0": {"P1"},
		"P1": {"C0"},
	})
	f.papers["ARXIV:1706.03762"] = f.papers["C0"]

	tr, err := newTestBuilder(f).Build(context.Background(), "ARXIV:1706.03762", 2)
	require.NoError(t, err)

	assert.Equal(t, "C0", tr.RootID())
	assert.Equal(t, "ARXIV:1706.03762", tr.RequestedRootID())
	assert.Equal(t, []string{"C0", "P1"}, tr.IDs())
	assert.Equal(t, 0, f.requested("C0"))
}

func TestBuild_RecordWithoutID(t *testing.T) {
	f := graph(map[string][]string{"P0": {"P1"}})
	f.papers["P1"] = &s2.RawPaper{}

	tr, err := newTestBuilder(f).Build(context.Background(), "P0", 1)
	require.NoError(t, err)
	assert.True(t, tr.Contains("P1"))
}

func TestBuild_InvalidArguments(t *testing.T) {
	b := newTestBuilder(graph(nil))

	_, err := b.Build(context.Background(), "P0", -1)
	assert.ErrorIs(t, err, ErrInvalidDepth)

	_, err = b.Build(context.Background(), "  ", 1)
	assert.True(t, paper.IsValidationError(err))
}

func TestBuild_ContextCanceled(t *testing.T) {
	f := graph(map[string][]string{"P0": nil})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, err := newTestBuilder(f).Build(ctx, "P0", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, tr)
	assert.Empty(t, f.calls)
}

func TestBuildMany(t *testing.T) {
	f := graph(map[string][]string{
		"A": {"X"},
		"B": {"X"},
		"X": nil,
	})

	trees, err := newTestBuilder(f).BuildMany(context.Background(), []string{"A", "B"}, 1)
	require.NoError(t, err)
	require.Len(t, trees, 2)

	assert.Equal(t, "A", trees[0].RootID())
	assert.Equal(t, "B", trees[1].RootID())
	assert.True(t, trees[1].Contains("X"))
	assert.NotEqual(t, trees[0].BuildID(), trees[1].BuildID())
	// Trees are independent, so X is fetched once per tree.
	assert.Equal(t, 2, f.requested("X"))
}

func TestBuildMany_StopsAtFailure(t *testing.T) {
	f := graph(map[string][]string{
		"A": nil,
		"C": nil,
	})

	trees, err := newTestBuilder(f).BuildMany(context.Background(), []string{"A", "B", "C"}, 1)
	require.Error(t, err)
	assert.True(t, s2.IsNotFound(err))
	require.Len(t, trees, 1)
	assert.Equal(t, "A", trees[0].RootID())
	assert.Equal(t, 0, f.requested("C"))
}

func TestBuildMany_FloorAcrossRoots(t *testing.T) {
	refs := map[string][]string{
		"A": {"X"},
		"B": {"Y"},
	}
	var (
		mu       sync.Mutex
		arrivals []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req s2.PaperBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()

		out := make([]s2.RawPaper, len(req.IDs))
		for i, id := range req.IDs {
			out[i] = s2.RawPaper{PaperID: id, Title: paper.StringPtr("Title " + id)}
			for _, ref := range refs[id] {
				out[i].References = append(out[i].References, s2.RawReference{PaperID: &ref})
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	delay := 20 * time.Millisecond
	t.Setenv("S2_API_KEY", "")
	client := s2.NewClient(
		s2.WithBaseURL(srv.URL),
		s2.WithRateLimitDelay(delay),
		s2.WithLogger(quietLogger()),
	)
	defer client.Close()

	trees, err := newTestBuilder(client).BuildMany(context.Background(), []string{"A", "B"}, 1)
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.True(t, trees[0].Contains("X"))
	assert.True(t, trees[1].Contains("Y"))

	mu.Lock()
	defer mu.Unlock()
	// A, X, B, Y: the step from X to B crosses a root boundary.
	require.Len(t, arrivals, 4)
	for i := 1; i < len(arrivals); i++ {
		gap := arrivals[i].Sub(arrivals[i-1])
		assert.GreaterOrEqual(t, gap, 15*time.Millisecond, "gap between call %d and %d", i, i+1)
	}
}

func TestBuild_RootRetriesExhaustedAgainstClient(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	t.Setenv("S2_API_KEY", "")
	client := s2.NewClient(
		s2.WithBaseURL(srv.URL),
		s2.WithRateLimitDelay(time.Millisecond),
		s2.WithMaxRetries(3),
		s2.WithLogger(quietLogger()),
	)
	defer client.Close()

	tr, err := newTestBuilder(client).Build(context.Background(), "P0", 2)
	require.Error(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, int32(4), attempts.Load())

	var apiErr *s2.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, s2.IsRateLimited(err))
	assert.Equal(t, 4, apiErr.Attempts)
}
