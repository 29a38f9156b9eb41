// Package tree builds bounded-depth citation trees by walking references
// breadth-first through the Semantic Scholar batch endpoint.
package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/matsen/papertree/internal/metrics"
	"github.com/matsen/papertree/internal/paper"
	"github.com/matsen/papertree/internal/s2"
)

// DefaultMaxDepth is the traversal depth used when the caller has no preference.
const DefaultMaxDepth = 2

// ErrInvalidDepth is returned for a negative maximum depth.
var ErrInvalidDepth = errors.New("max depth must be non-negative")

// Fetcher resolves a set of identifiers to batch records.
// *s2.Client satisfies it.
type Fetcher interface {
	FetchBatch(ctx context.Context, ids []string) (s2.BatchResult, error)
}

// LevelReport summarizes one breadth-first level.
type LevelReport struct {
	RootID       string
	Depth        int
	Requested    int // identifiers sent to the fetcher
	Fetched      int // records returned
	Absent       int // identifiers the service does not know
	Failed       int // identifiers lost to failed sub-batches
	FailedIDs    []string
	Added        int // papers inserted into the tree
	NextFrontier int // identifiers scheduled for the next level
}

// ProgressFunc receives a report after each level.
type ProgressFunc func(LevelReport)

// Builder drives a Fetcher level by level to assemble citation trees.
// It never closes the Fetcher.
type Builder struct {
	fetcher  Fetcher
	logger   *slog.Logger
	verbose  bool
	progress ProgressFunc
	metrics  *metrics.Registry
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger for level progress.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithVerbose logs level progress at Info instead of Debug.
func WithVerbose(v bool) Option {
	return func(b *Builder) {
		b.verbose = v
	}
}

// WithProgress registers a callback invoked after every level.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) {
		b.progress = fn
	}
}

// WithMetrics records level and build outcomes in the given registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// NewBuilder creates a Builder backed by f.
func NewBuilder(f Fetcher, opts ...Option) *Builder {
	b := &Builder{
		fetcher: f,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build fetches rootID and then, level by level, every paper it cites
// transitively, down to maxDepth edges away from the root.
//
// Each identifier is requested at most once per build, so every paper
// lands at its shortest distance from the root. Papers the service does not
// know are skipped. If the root cannot be fetched, Build returns no tree; a
// failure at a deeper level only prunes the identifiers it affected.
func (b *Builder) Build(ctx context.Context, rootID string, maxDepth int) (*paper.Tree, error) {
	t, err := b.build(ctx, rootID, maxDepth)
	if err != nil {
		b.metrics.RecordBuild("failed")
		return nil, err
	}
	b.metrics.RecordBuild("ok")
	return t, nil
}

func (b *Builder) build(ctx context.Context, rootID string, maxDepth int) (*paper.Tree, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, maxDepth)
	}
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return nil, &paper.ValidationError{Field: "paperId", Message: "root identifier is empty"}
	}

	t := paper.NewTree(rootID, "")
	logger := b.logger.With("root", rootID, "build_id", t.BuildID())
	logger.Info("building citation tree", "max_depth", maxDepth)

	discovered := map[string]bool{rootID: true}
	frontier := []string{rootID}

	for depth := 0; len(frontier) > 0 && depth <= maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report := LevelReport{RootID: rootID, Depth: depth, Requested: len(frontier)}

		result, fetchErr := b.fetcher.FetchBatch(ctx, frontier)
		if fetchErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("fetching depth %d: %w", depth, ctxErr)
			}
			if depth == 0 {
				return nil, fmt.Errorf("fetching root %s: %w", rootID, fetchErr)
			}
			report.FailedIDs = s2.FailedIDs(fetchErr)
			sort.Strings(report.FailedIDs)
			logger.Warn("pruning identifiers after fetch failure",
				"depth", depth,
				"failed", len(report.FailedIDs),
				"failed_ids", report.FailedIDs,
				"error", fetchErr)
		}

		added, err := b.addLevel(t, result, frontier, depth, discovered, &report, logger)
		if err != nil {
			return nil, err
		}

		var next []string
		if depth < maxDepth {
			next = nextFrontier(added, discovered)
		}
		report.NextFrontier = len(next)

		b.report(logger, report)
		frontier = next
	}

	t.Freeze()

	stats := t.Stats()
	logger.Info("citation tree built",
		"root_id", t.RootID(),
		"papers", stats.TotalPapers,
		"max_depth_reached", stats.MaxDepth,
		"discovered", len(discovered))

	return t, nil
}

// addLevel inserts every record returned for frontier at depth and marks
// their canonical IDs discovered. It returns the papers actually added.
func (b *Builder) addLevel(
	t *paper.Tree,
	result s2.BatchResult,
	frontier []string,
	depth int,
	discovered map[string]bool,
	report *LevelReport,
	logger *slog.Logger,
) ([]paper.Paper, error) {
	var added []paper.Paper

	for _, id := range frontier {
		raw, ok := result.Found(id)
		if !ok {
			if result.IsAbsent(id) {
				report.Absent++
			} else {
				report.Failed++
			}
			if depth == 0 {
				return nil, rootNotFound(id)
			}
			continue
		}
		report.Fetched++

		rec := *raw
		if strings.TrimSpace(rec.PaperID) == "" {
			rec.PaperID = id
		}
		p, err := s2.ToPaper(rec, depth)
		if err != nil {
			if depth == 0 {
				return nil, fmt.Errorf("mapping root %s: %w", id, err)
			}
			logger.Warn("skipping invalid record", "id", id, "depth", depth, "error", err)
			continue
		}

		// The service may answer an alias (ARXIV:..., DOI:...) with a
		// different canonical ID; both count as visited.
		discovered[p.ID] = true

		if err := t.Add(p); err != nil {
			if errors.Is(err, paper.ErrDuplicatePaper) {
				logger.Debug("alias resolved to a paper already in the tree", "id", id, "paper_id", p.ID)
				continue
			}
			return nil, fmt.Errorf("adding paper %s: %w", p.ID, err)
		}
		added = append(added, p)
	}

	report.Added = len(added)
	return added, nil
}

// nextFrontier collects the undiscovered references of papers, marking them
// discovered. The result is sorted.
func nextFrontier(papers []paper.Paper, discovered map[string]bool) []string {
	var next []string
	for _, p := range papers {
		for _, ref := range p.References {
			if discovered[ref] {
				continue
			}
			discovered[ref] = true
			next = append(next, ref)
		}
	}
	sort.Strings(next)
	return next
}

func (b *Builder) report(logger *slog.Logger, r LevelReport) {
	level := slog.LevelDebug
	if b.verbose {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, "level complete",
		"depth", r.Depth,
		"requested", r.Requested,
		"fetched", r.Fetched,
		"absent", r.Absent,
		"failed", r.Failed,
		"added", r.Added,
		"next", r.NextFrontier)

	b.metrics.RecordLevel(r.Depth, r.Added, r.Failed)
	if b.progress != nil {
		b.progress(r)
	}
}

// BuildMany builds one tree per root, sequentially, through the same
// Fetcher. On the first failure it returns the trees completed so far along
// with the error.
func (b *Builder) BuildMany(ctx context.Context, rootIDs []string, maxDepth int) ([]*paper.Tree, error) {
	trees := make([]*paper.Tree, 0, len(rootIDs))
	for i, id := range rootIDs {
		b.logger.Info("building tree", "tree", i+1, "trees", len(rootIDs), "root", id)

		t, err := b.Build(ctx, id, maxDepth)
		if err != nil {
			return trees, fmt.Errorf("building tree %d/%d (%s): %w", i+1, len(rootIDs), id, err)
		}
		trees = append(trees, t)
	}
	return trees, nil
}

func rootNotFound(id string) error {
	return &s2.APIError{
		StatusCode: http.StatusNotFound,
		Code:       s2.CodeNotFound,
		Message:    "root paper not found",
		IDs:        []string{id},
	}
}
