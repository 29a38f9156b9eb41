package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/papertree/internal/export"
	"github.com/matsen/papertree/internal/paper"
	"github.com/matsen/papertree/internal/s2"
)

var (
	buildManyFlags clientFlags
	buildManyFile  string
)

var buildManyCmd = &cobra.Command{
	Use:   "build-many [paper-id...]",
	Short: "Build one citation tree per root paper",
	Long: `Build one citation tree per root paper, sequentially, sharing one rate
limit across all of them.

Roots come from the arguments and/or --file (one identifier per line, blank
lines and lines starting with # ignored).

For file formats --output is a directory receiving one file per tree, named
after the requested root. For sqlite and postgres every tree is written to
the same table; --drop-existing applies before the first tree only.

If a root fails, the trees already built are still exported and the command
exits with the error.

Examples:
  ptree build-many ARXIV:1706.03762 ARXIV:1810.04805 -o trees/
  ptree build-many --file roots.txt -o papers.db --depth 1`,
	RunE: runBuildMany,
}

func init() {
	rootCmd.AddCommand(buildManyCmd)
	addClientFlags(buildManyCmd, &buildManyFlags)
	buildManyCmd.Flags().StringVar(&buildManyFile, "file", "", "Read root identifiers from a file")
}

// BuildManyResult is the JSON output for the build-many command.
type BuildManyResult struct {
	Trees     []BuildResult `json:"trees"`
	Requested int           `json:"requested"`
	Built     int           `json:"built"`
	Error     string        `json:"error,omitempty"`
}

func runBuildMany(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	roots := make([]string, 0, len(args))
	roots = append(roots, args...)
	if buildManyFile != "" {
		fromFile, err := readRootsFile(buildManyFile)
		if err != nil {
			return err
		}
		roots = append(roots, fromFile...)
	}
	if len(roots) == 0 {
		return fmt.Errorf("no root identifiers given; pass them as arguments or with --file")
	}
	for i, r := range roots {
		roots[i] = s2.NormalizeID(r)
		if roots[i] == "" {
			return &paper.ValidationError{Field: "paperId", Message: fmt.Sprintf("root %d is empty", i+1)}
		}
	}

	cfg, err := buildManyFlags.resolve(cmd)
	if err != nil {
		return err
	}

	format, dest := buildManyFlags.format, buildManyFlags.output
	if dest == "" && format == export.FormatPostgres {
		dest = cfg.PostgresURL
	}
	if dest == "" {
		return fmt.Errorf("--output is required")
	}
	if format == "" {
		format = inferManyFormat(dest)
	}

	client := newClient(cfg)
	defer client.Close()

	trees, buildErr := newBuilder(client).BuildMany(ctx, roots, cfg.MaxDepth)

	result := BuildManyResult{Requested: len(roots), Trees: []BuildResult{}}
	for i, t := range trees {
		treeDest, err := manyDest(format, dest, t.RequestedRootID())
		if err != nil {
			return err
		}
		exp, err := export.New(format, treeDest, export.Options{
			Table:        cfg.Table,
			DropExisting: buildManyFlags.dropExisting && i == 0,
		})
		if err != nil {
			return err
		}
		if err := exp.Export(ctx, t); err != nil {
			return err
		}
		result.Trees = append(result.Trees, newBuildResult(t, format, displayDest(format, treeDest)))
	}
	result.Built = len(result.Trees)

	if buildErr != nil {
		result.Error = buildErr.Error()
	}
	if humanOutput {
		for _, r := range result.Trees {
			outputHuman("%s: %d papers -> %s\n", r.RequestedRootID, r.Statistics.TotalPapers, r.Output)
		}
		outputHuman("Built %d of %d trees\n", result.Built, result.Requested)
	} else if err := outputJSON(result); err != nil {
		return err
	}
	return buildErr
}

// readRootsFile reads one identifier per line, skipping blanks and comments.
func readRootsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roots file: %w", err)
	}
	defer f.Close()

	var roots []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		roots = append(roots, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading roots file: %w", err)
	}
	return roots, nil
}

// inferManyFormat is inferFormat for a destination that may be a directory.
func inferManyFormat(dest string) string {
	if filepath.Ext(dest) == "" {
		return export.FormatJSON
	}
	return inferFormat(dest)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// manyDest returns where the tree for rootID goes. Database formats share
// dest; file formats get one file per root inside the directory dest.
func manyDest(format, dest, rootID string) (string, error) {
	var ext string
	switch format {
	case export.FormatSQLite, export.FormatPostgres:
		return dest, nil
	case export.FormatJSONL:
		ext = ".jsonl"
	case export.FormatBibTeX, "bib":
		ext = ".bib"
	default:
		ext = ".json"
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	name := strings.Trim(unsafeFileChars.ReplaceAllString(rootID, "_"), "_")
	return filepath.Join(dest, name+ext), nil
}
