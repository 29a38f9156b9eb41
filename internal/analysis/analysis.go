// Package analysis computes descriptive statistics over a citation tree.
package analysis

import (
	"sort"

	"github.com/matsen/papertree/internal/paper"
)

// DefaultTopN is the list length used when the caller passes zero.
const DefaultTopN = 10

// Report is the JSON output of Analyze.
type Report struct {
	RootID      string         `json:"root_id"`
	RootTitle   string         `json:"root_title"`
	TotalPapers int            `json:"total_papers"`
	MaxDepth    int            `json:"max_depth"`
	Depths      []DepthShare   `json:"depths"`
	TopCited    []CitedPaper   `json:"top_cited"`
	Years       YearSummary    `json:"years"`
	TopAuthors  []AuthorCount  `json:"top_authors"`
	References  ReferenceStats `json:"references"`
	Citations   []DepthCites   `json:"citations_by_depth"`
	Gaps        []Gap          `json:"gaps"`
}

// DepthShare is the number of papers at one depth.
type DepthShare struct {
	Depth   int     `json:"depth"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// CitedPaper is an entry in the most-cited list.
type CitedPaper struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Depth         int    `json:"depth"`
	CitationCount int    `json:"citationCount"`
}

// YearSummary describes publication years. Papers without a year are
// counted in Unknown.
type YearSummary struct {
	Min     int         `json:"min,omitempty"`
	Max     int         `json:"max,omitempty"`
	Unknown int         `json:"unknown"`
	Common  []YearCount `json:"most_common"`
}

// YearCount is the number of papers published in a year.
type YearCount struct {
	Year    int     `json:"year"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// AuthorCount is the number of tree papers an author name appears on.
type AuthorCount struct {
	Name   string `json:"name"`
	Papers int    `json:"papers"`
}

// ReferenceStats summarizes outgoing references.
type ReferenceStats struct {
	Total         int     `json:"total"`
	Average       float64 `json:"average"`
	Max           int     `json:"max"`
	WithNone      int     `json:"papers_without_references"`
	MostReference string  `json:"most_referencing_paper,omitempty"`
}

// DepthCites gives citation counts for the papers at one depth that report one.
type DepthCites struct {
	Depth   int     `json:"depth"`
	Papers  int     `json:"papers"`
	Average float64 `json:"average"`
	Max     int     `json:"max"`
}

// Gap is a paper cited from within the tree but not part of it, typically
// because it lies past the depth bound or the service did not know it.
type Gap struct {
	PaperID string   `json:"paperId"`
	CitedBy []string `json:"citedBy"`
}

// Analyze summarizes t. Lists are capped at topN entries (DefaultTopN when
// topN <= 0). Ties are broken by ID or name so the report is deterministic.
func Analyze(t *paper.Tree, topN int) Report {
	if topN <= 0 {
		topN = DefaultTopN
	}
	papers := t.Papers()

	stats := t.Stats()
	return Report{
		RootID:      t.RootID(),
		RootTitle:   stats.RootTitle,
		TotalPapers: stats.TotalPapers,
		MaxDepth:    stats.MaxDepth,
		Depths:      depthShares(stats),
		TopCited:    topCited(papers, topN),
		Years:       years(papers, topN),
		TopAuthors:  topAuthors(papers, topN),
		References:  references(papers),
		Citations:   citationsByDepth(papers),
		Gaps:        gaps(t, papers, topN),
	}
}

func depthShares(stats paper.Stats) []DepthShare {
	shares := make([]DepthShare, 0, len(stats.PapersByDepth))
	for depth, count := range stats.PapersByDepth {
		shares = append(shares, DepthShare{
			Depth:   depth,
			Count:   count,
			Percent: percent(count, stats.TotalPapers),
		})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Depth < shares[j].Depth })
	return shares
}

func topCited(papers []paper.Paper, n int) []CitedPaper {
	var cited []CitedPaper
	for _, p := range papers {
		if p.CitationCount == nil {
			continue
		}
		cited = append(cited, CitedPaper{
			PaperID:       p.ID,
			Title:         p.Title,
			Depth:         p.Depth,
			CitationCount: *p.CitationCount,
		})
	}
	sort.Slice(cited, func(i, j int) bool {
		if cited[i].CitationCount != cited[j].CitationCount {
			return cited[i].CitationCount > cited[j].CitationCount
		}
		return cited[i].PaperID < cited[j].PaperID
	})
	return truncate(cited, n)
}

func years(papers []paper.Paper, n int) YearSummary {
	var summary YearSummary
	counts := make(map[int]int)
	known := 0
	for _, p := range papers {
		if p.Year == nil {
			summary.Unknown++
			continue
		}
		y := *p.Year
		if known == 0 || y < summary.Min {
			summary.Min = y
		}
		if known == 0 || y > summary.Max {
			summary.Max = y
		}
		known++
		counts[y]++
	}

	common := make([]YearCount, 0, len(counts))
	for y, c := range counts {
		common = append(common, YearCount{Year: y, Count: c, Percent: percent(c, known)})
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].Count != common[j].Count {
			return common[i].Count > common[j].Count
		}
		return common[i].Year > common[j].Year
	})
	summary.Common = truncate(common, n)
	return summary
}

func topAuthors(papers []paper.Paper, n int) []AuthorCount {
	counts := make(map[string]int)
	for _, p := range papers {
		seen := make(map[string]bool)
		for _, a := range p.Authors {
			if a.Name == "" || seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			counts[a.Name]++
		}
	}

	authors := make([]AuthorCount, 0, len(counts))
	for name, c := range counts {
		authors = append(authors, AuthorCount{Name: name, Papers: c})
	}
	sort.Slice(authors, func(i, j int) bool {
		if authors[i].Papers != authors[j].Papers {
			return authors[i].Papers > authors[j].Papers
		}
		return authors[i].Name < authors[j].Name
	})
	return truncate(authors, n)
}

func references(papers []paper.Paper) ReferenceStats {
	var rs ReferenceStats
	for _, p := range papers {
		count := len(p.References)
		rs.Total += count
		if count == 0 {
			rs.WithNone++
		}
		// Papers are ordered by depth then ID, so the first maximum wins.
		if count > rs.Max {
			rs.Max = count
			rs.MostReference = p.ID
		}
	}
	if len(papers) > 0 {
		rs.Average = float64(rs.Total) / float64(len(papers))
	}
	return rs
}

func citationsByDepth(papers []paper.Paper) []DepthCites {
	byDepth := make(map[int]*DepthCites)
	totals := make(map[int]int)
	for _, p := range papers {
		if p.CitationCount == nil {
			continue
		}
		dc, ok := byDepth[p.Depth]
		if !ok {
			dc = &DepthCites{Depth: p.Depth}
			byDepth[p.Depth] = dc
		}
		dc.Papers++
		totals[p.Depth] += *p.CitationCount
		if *p.CitationCount > dc.Max {
			dc.Max = *p.CitationCount
		}
	}

	out := make([]DepthCites, 0, len(byDepth))
	for depth, dc := range byDepth {
		dc.Average = float64(totals[depth]) / float64(dc.Papers)
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Depth < out[j].Depth })
	return out
}

// gaps lists references to papers outside the tree that at least two tree
// papers cite, most cited first.
func gaps(t *paper.Tree, papers []paper.Paper, n int) []Gap {
	citedBy := make(map[string][]string)
	for _, p := range papers {
		for _, ref := range p.References {
			if !t.Contains(ref) {
				citedBy[ref] = append(citedBy[ref], p.ID)
			}
		}
	}

	var out []Gap
	for id, by := range citedBy {
		if len(by) < 2 {
			continue
		}
		sort.Strings(by)
		out = append(out, Gap{PaperID: id, CitedBy: by})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].CitedBy) != len(out[j].CitedBy) {
			return len(out[i].CitedBy) > len(out[j].CitedBy)
		}
		return out[i].PaperID < out[j].PaperID
	})
	return truncate(out, n)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
