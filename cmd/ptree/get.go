package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/papertree/internal/paper"
	"github.com/matsen/papertree/internal/s2"
)

var getCmd = &cobra.Command{
	Use:   "get <paper-id>",
	Short: "Look up one paper",
	Long: `Look up one paper through the batch endpoint and print the record a
tree would store for it, without following references.

Useful for checking that a root resolves before starting a build.

Examples:
  ptree get ARXIV:1706.03762
  ptree get DOI:10.1038/nature14539 --human`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	id := s2.NormalizeID(args[0])
	if id == "" {
		return &paper.ValidationError{Field: "paperId", Message: "identifier is empty"}
	}

	client := newClient(*cfg)
	defer client.Close()

	raw, err := client.FetchPaper(cmd.Context(), id)
	if err != nil {
		return err
	}
	p, err := s2.ToPaper(*raw, 0)
	if err != nil {
		return err
	}

	if humanOutput {
		printPaperHuman(p)
		return nil
	}
	return outputJSON(p)
}

func printPaperHuman(p paper.Paper) {
	outputHuman("%s\n", p.Title)
	outputHuman("ID: %s\n", p.ID)
	if len(p.Authors) > 0 {
		names := make([]string, len(p.Authors))
		for i, a := range p.Authors {
			names[i] = a.Name
		}
		outputHuman("Authors: %s\n", strings.Join(names, ", "))
	}
	if p.Year != nil {
		outputHuman("Year: %d\n", *p.Year)
	}
	if p.CitationCount != nil {
		outputHuman("Citations: %d | ", *p.CitationCount)
	}
	outputHuman("References: %d\n", len(p.References))
	if p.Abstract != nil {
		outputHuman("\nAbstract:\n%s\n", *p.Abstract)
	}
}
