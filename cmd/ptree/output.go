package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/matsen/papertree/internal/config"
	"github.com/matsen/papertree/internal/export"
	"github.com/matsen/papertree/internal/paper"
	"github.com/matsen/papertree/internal/s2"
	"github.com/matsen/papertree/internal/tree"
)

// Title truncation lengths by context
const (
	StatsTitleMaxLen = 70 // Used in stats top-cited listing
	BuildTitleMaxLen = 60 // Used in build summaries
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg, Code: code})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"exit_code"`
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	var exportErr *export.ExportError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitConfigError
	case s2.IsAPIError(err):
		return ExitAPIError
	case paper.IsValidationError(err), errors.Is(err, tree.ErrInvalidDepth):
		return ExitDataError
	case errors.As(err, &exportErr):
		return ExitExportError
	}
	return ExitError
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
