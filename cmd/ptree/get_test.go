package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/matsen/papertree/internal/s2"
)

// useFakeService points the CLI config at a batch endpoint that knows only
// the identifiers in known.
func useFakeService(t *testing.T, known map[string]string) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req s2.PaperBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([]any, len(req.IDs))
		for i, id := range req.IDs {
			if canonical, ok := known[id]; ok {
				out[i] = map[string]any{"paperId": canonical, "title": "Title " + canonical}
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "config.yml")
	content := fmt.Sprintf("base_url: %s\nrate_limit_delay: 0.001\nmax_retries: 0\n", srv.URL)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("S2_API_KEY", "")
	oldPath := configPath
	configPath = path
	t.Cleanup(func() { configPath = oldPath })
}

func TestRunGet(t *testing.T) {
	useFakeService(t, map[string]string{"ARXIV:1706.03762": "C0"})
	getCmd.SetContext(context.Background())

	if err := runGet(getCmd, []string{"arxiv:1706.03762"}); err != nil {
		t.Fatalf("runGet() error = %v", err)
	}

	err := runGet(getCmd, []string{"ARXIV:0000.00000"})
	if !s2.IsNotFound(err) {
		t.Fatalf("runGet() error = %v, want not found", err)
	}
	if got := exitCodeFor(err); got != ExitAPIError {
		t.Errorf("exitCodeFor() = %d, want %d", got, ExitAPIError)
	}
}
