package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/papertree/internal/analysis"
	"github.com/matsen/papertree/internal/export"
)

var statsTopN int

var statsCmd = &cobra.Command{
	Use:   "stats <tree.json|tree.jsonl>",
	Short: "Summarize a saved citation tree",
	Long: `Summarize a citation tree saved with 'ptree build -o tree.json' (or .jsonl).

Reports the depth distribution, most cited papers, publication years, most
frequent authors, reference statistics, citations by depth and gaps:
papers outside the tree that several tree papers cite.

Examples:
  ptree stats tree.json
  ptree stats tree.json --top 5 --human`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVarP(&statsTopN, "top", "n", analysis.DefaultTopN, "Length of ranked lists")
}

func runStats(cmd *cobra.Command, args []string) error {
	t, err := export.LoadTree(args[0])
	if err != nil {
		return err
	}

	report := analysis.Analyze(t, statsTopN)
	if humanOutput {
		printStatsHuman(report)
		return nil
	}
	return outputJSON(report)
}

func printStatsHuman(r analysis.Report) {
	outputHuman("Root: %s (%s)\n", truncateString(r.RootTitle, StatsTitleMaxLen), r.RootID)
	outputHuman("Papers: %d, max depth %d\n\n", r.TotalPapers, r.MaxDepth)

	outputHuman("Papers by depth:\n")
	for _, d := range r.Depths {
		outputHuman("  %d: %d (%.1f%%)\n", d.Depth, d.Count, d.Percent)
	}

	if len(r.TopCited) > 0 {
		outputHuman("\nMost cited:\n")
		for i, p := range r.TopCited {
			outputHuman("  %d. [%d] %s (depth %d)\n", i+1, p.CitationCount, truncateString(p.Title, StatsTitleMaxLen), p.Depth)
		}
	}

	if r.Years.Max > 0 {
		outputHuman("\nYears: %d-%d (%d unknown)\n", r.Years.Min, r.Years.Max, r.Years.Unknown)
		for _, y := range r.Years.Common {
			outputHuman("  %d: %d papers\n", y.Year, y.Count)
		}
	}

	if len(r.TopAuthors) > 0 {
		outputHuman("\nAuthors:\n")
		for _, a := range r.TopAuthors {
			outputHuman("  %s: %d papers\n", a.Name, a.Papers)
		}
	}

	outputHuman("\nReferences: %d total, %.1f per paper, max %d, %d papers with none\n",
		r.References.Total, r.References.Average, r.References.Max, r.References.WithNone)

	if len(r.Citations) > 0 {
		outputHuman("\nCitations by depth:\n")
		for _, c := range r.Citations {
			outputHuman("  %d: avg %.1f, max %d\n", c.Depth, c.Average, c.Max)
		}
	}

	if len(r.Gaps) > 0 {
		outputHuman("\nGaps (cited within the tree, not in it):\n")
		for _, g := range r.Gaps {
			outputHuman("  %s cited by %d papers\n", g.PaperID, len(g.CitedBy))
		}
	}
}
