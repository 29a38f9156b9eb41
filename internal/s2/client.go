package s2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/papertree/internal/metrics"
	"github.com/matsen/papertree/internal/paper"
)

const (
	// BaseURL is the Semantic Scholar Academic Graph API base URL.
	BaseURL = "https://api.semanticscholar.org/graph/v1"

	// batchPath is the batch paper lookup endpoint, relative to BaseURL.
	batchPath = "/paper/batch"

	// MaxBatchSize is the most identifiers the batch endpoint accepts per call.
	MaxBatchSize = 500

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimitDelay is the minimum spacing between outbound calls.
	DefaultRateLimitDelay = 1500 * time.Millisecond

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultFields are the fields requested for every paper.
	DefaultFields = "paperId,title,year,citationCount,abstract,authors,references.paperId"

	// maxErrorBody caps how much of an error response is quoted in errors.
	maxErrorBody = 512
)

// Client is a rate-limited client for the S2 batch paper endpoint.
//
// One Client owns one HTTP session and one limiter for its lifetime. The
// limiter spaces every outbound call, including retries and calls made for
// different trees, so share one Client across builds rather than creating one
// per root. A Client is not meant to be driven by several traversals at once.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	apiKey         string
	baseURL        string
	fields         string
	timeout        time.Duration // applied after options; 0 keeps the HTTP client's own
	rateLimitDelay time.Duration
	maxRetries     int
	logger         *slog.Logger
	metrics        *metrics.Registry

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	closeOnce sync.Once
	closed    atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authenticated requests.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client. A nil client restores the default.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithTimeout sets the per-request timeout. It applies whichever HTTP client
// the other options select, without modifying the caller's client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimitDelay sets the minimum spacing between outbound calls and the
// base of the exponential retry backoff.
func WithRateLimitDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.rateLimitDelay = d
	}
}

// WithMaxRetries sets how many times a failed sub-batch is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithFields overrides the fields requested for each paper.
func WithFields(fields string) ClientOption {
	return func(c *Client) {
		c.fields = fields
	}
}

// WithLogger sets the logger for retry and batch progress messages.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics records request outcomes in the given registry.
func WithMetrics(m *metrics.Registry) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new S2 batch client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		baseURL:        BaseURL,
		fields:         DefaultFields,
		rateLimitDelay: DefaultRateLimitDelay,
		maxRetries:     DefaultMaxRetries,
		logger:         slog.Default(),
		sleep:          sleepContext,
	}

	// Check for API key in environment
	if key := os.Getenv("S2_API_KEY"); key != "" {
		c.apiKey = key
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	limit := rate.Inf
	if c.rateLimitDelay > 0 {
		limit = rate.Every(c.rateLimitDelay)
	}
	c.limiter = rate.NewLimiter(limit, 1)

	if c.apiKey == "" {
		c.logger.Warn("no Semantic Scholar API key configured; unauthenticated requests share a much lower rate limit")
	}

	return c
}

// Close releases the HTTP session. It is safe to call more than once and on a
// client that never issued a request.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.httpClient.CloseIdleConnections()
	})
	return nil
}

// FetchBatch looks up every identifier in ids.
//
// Identifiers are deduplicated and sent in sequential sub-batches of at most
// MaxBatchSize. Each sub-batch is retried on rate limiting and transient
// failures. If a sub-batch still fails, the remaining sub-batches are fetched
// anyway: the returned result holds everything that succeeded and the error
// (an errors.Join of *APIError values) names the identifiers that did not.
func (c *Client) FetchBatch(ctx context.Context, ids []string) (BatchResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	unique, err := uniqueIDs(ids)
	if err != nil {
		return nil, err
	}

	result := make(BatchResult, len(unique))
	batches := partition(unique, MaxBatchSize)

	var errs []error
	for i, batch := range batches {
		c.logger.Debug("fetching batch", "batch", i+1, "batches", len(batches), "size", len(batch))

		papers, err := c.fetchWithRetry(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, fmt.Errorf("fetching batch %d/%d: %w", i+1, len(batches), ctxErr)
			}
			c.logger.Warn("batch failed", "batch", i+1, "batches", len(batches), "size", len(batch), "error", err)
			errs = append(errs, err)
			continue
		}

		for id, p := range papers {
			result[id] = p
		}
	}

	return result, errors.Join(errs...)
}

// FetchPaper looks up a single paper. It returns an error matching
// ErrNotFound when S2 does not know the identifier.
func (c *Client) FetchPaper(ctx context.Context, id string) (*RawPaper, error) {
	result, err := c.FetchBatch(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	p, ok := result.Found(id)
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Code: CodeNotFound, Message: "paper not found", IDs: []string{id}}
	}
	return p, nil
}

// fetchWithRetry fetches one sub-batch, retrying transient failures with
// exponential backoff starting at the rate limit delay.
func (c *Client) fetchWithRetry(ctx context.Context, ids []string) (BatchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			reason := retryReason(lastErr)
			c.metrics.RecordS2Retry(reason)
			c.logger.Warn("retrying batch",
				"attempt", attempt+1,
				"max_attempts", c.maxRetries+1,
				"wait", wait,
				"reason", reason,
				"size", len(ids))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		result, err := c.doBatch(ctx, ids)
		if err == nil {
			return result, nil
		}
		if !isTransient(err) || ctx.Err() != nil {
			return nil, annotate(err, ids, attempt+1)
		}
		lastErr = err
	}
	return nil, annotate(lastErr, ids, c.maxRetries+1)
}

// backoff returns the wait before retry number attempt (1-based).
func (c *Client) backoff(attempt int) time.Duration {
	return c.rateLimitDelay * time.Duration(1<<uint(attempt-1))
}

// doBatch issues one rate-limited call to the batch endpoint.
func (c *Client) doBatch(ctx context.Context, ids []string) (BatchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(PaperBatchRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + batchPath + "?fields=" + url.QueryEscape(c.fields)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.metrics.RecordS2Request(CodeNetwork, time.Since(start))
		return nil, &APIError{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.metrics.RecordS2Request(apiErr.Code, time.Since(start))
		}
		return nil, err
	}

	var records []*RawPaper
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		c.metrics.RecordS2Request(CodeInvalidResponse, time.Since(start))
		return nil, &APIError{StatusCode: resp.StatusCode, Code: CodeInvalidResponse, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	if len(records) != len(ids) {
		c.metrics.RecordS2Request(CodeInvalidResponse, time.Since(start))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       CodeInvalidResponse,
			Message:    fmt.Sprintf("expected %d records, got %d", len(ids), len(records)),
		}
	}
	c.metrics.RecordS2Request("ok", time.Since(start))

	// The endpoint answers positionally, with null for unknown identifiers.
	result := make(BatchResult, len(ids))
	for i, id := range ids {
		result[id] = records[i]
	}
	found, absent := result.Counts()
	c.metrics.RecordS2Papers(found, absent)

	return result, nil
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	msg := formatErrorBody(resp.Body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	code := CodeAPI
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		code = CodeRateLimited
	case resp.StatusCode == http.StatusNotFound:
		code = CodeNotFound
	}
	return &APIError{StatusCode: resp.StatusCode, Code: code, Message: msg}
}

// formatErrorBody reads a bounded prefix of an error response body.
func formatErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// isTransient reports whether err is worth retrying.
func isTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.transient()
}

// retryReason labels a retry for logs and metrics.
func retryReason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == CodeAPI {
			return fmt.Sprintf("http_%d", apiErr.StatusCode)
		}
		return apiErr.Code
	}
	return "unknown"
}

// annotate attaches the failing identifier set and attempt count to an APIError.
func annotate(err error, ids []string, attempts int) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	annotated := *apiErr
	annotated.IDs = append([]string(nil), ids...)
	annotated.Attempts = attempts
	return &annotated
}

// uniqueIDs trims, deduplicates and sorts identifiers.
func uniqueIDs(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, &paper.ValidationError{Field: "paperId", Message: "empty identifier in batch request"}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// partition splits ids into consecutive chunks of at most size.
func partition(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
