package slidedex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pathology-bites/slidedex/internal/domain/detail"
)

const (
	searchIndexPath = "/api/virtual-slides/search-index"
	detailsPath     = "/api/virtual-slides/details"
	healthPath      = "/health"

	defaultConcurrency = 4
	maxErrorBody       = 64 << 10
)

// Client is the slidedex SDK entry point. It is safe for concurrent use.
type Client struct {
	baseURL     *url.URL
	http        *http.Client
	apiKey      string
	chunkSize   int
	concurrency int
	cfg         *clientConfig
	obs         *observer
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		httpClient:  http.DefaultClient,
		chunkSize:   detail.MaxPostIDs,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("slidedex: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("slidedex: base url %q must be absolute", baseURL)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = http.DefaultClient
	}
	if cfg.chunkSize <= 0 || cfg.chunkSize > detail.MaxPostIDs {
		cfg.chunkSize = detail.MaxPostIDs
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = defaultConcurrency
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:     u,
		http:        cfg.httpClient,
		apiKey:      cfg.apiKey,
		chunkSize:   cfg.chunkSize,
		concurrency: cfg.concurrency,
		cfg:         cfg,
		obs:         obs,
	}, nil
}

// FetchIndex retrieves the full minimal search index.
func (c *Client) FetchIndex(ctx context.Context) (*Index, error) {
	start := time.Now()
	var idx Index
	err := c.do(ctx, http.MethodGet, searchIndexPath, nil, nil, &idx)
	c.obs.observe("fetch_index", start, err)
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

// SearchIndex retrieves the index filtered server-side.
func (c *Client) SearchIndex(ctx context.Context, crit Criteria) (*Index, error) {
	start := time.Now()
	q := url.Values{}
	if crit.Search != "" {
		q.Set("search", crit.Search)
	}
	if crit.Repository != "" {
		q.Set("repository", crit.Repository)
	}
	if crit.Category != "" {
		q.Set("category", crit.Category)
	}

	var idx Index
	err := c.do(ctx, http.MethodGet, searchIndexPath, q, nil, &idx)
	c.obs.observe("search_index", start, err)
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

// FetchDetails retrieves full records for ids. Lists longer than the chunk
// size are split into POST requests issued concurrently; the merged response
// keeps chunk order. Any failing chunk fails the whole call.
func (c *Client) FetchDetails(ctx context.Context, ids []string) (*Details, error) {
	start := time.Now()
	out, err := c.fetchDetails(ctx, ids)
	c.obs.observe("fetch_details", start, err)
	return out, err
}

func (c *Client) fetchDetails(ctx context.Context, ids []string) (*Details, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no slide ids", ErrInvalidRequest)
	}

	chunks := chunk(ids, c.chunkSize)
	parts := make([]Details, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			return c.do(gctx, http.MethodPost, detailsPath, nil, detailsBody{IDs: ch}, &parts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // do returns SDK errors
	}

	merged := &Details{Data: make([]Slide, 0, len(ids))}
	for i := range parts {
		merged.Data = append(merged.Data, parts[i].Data...)
		merged.Metadata.Requested += parts[i].Metadata.Requested
		merged.Metadata.Found += parts[i].Metadata.Found
		merged.Metadata.NotFound += parts[i].Metadata.NotFound
		merged.Metadata.NotFoundIDs = append(merged.Metadata.NotFoundIDs, parts[i].Metadata.NotFoundIDs...)
	}
	return merged, nil
}

// Health returns the service health report. A degraded or failing service
// answers 503 with a report body, which is returned together with a StatusError.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	start := time.Now()
	req, err := c.newRequest(ctx, http.MethodGet, healthPath, nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.obs.observe("health", start, err)
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		err = fmt.Errorf("slidedex: decode health: %w", err)
		c.obs.observe("health", start, err)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		err = &StatusError{Code: resp.StatusCode, Message: report.Status}
	}
	c.obs.observe("health", start, err)
	return &report, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("slidedex: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body any) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var rdr io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("slidedex: encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("slidedex: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return se
	}
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		se.Message = eb.Error
		se.Details = eb.Details
	}
	return se
}

func chunk(ids []string, size int) [][]string {
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	return append(out, ids)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
