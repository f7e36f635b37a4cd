// Package search wraps the upstream web search API that scans query for new
// results.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/config"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/external"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// Provider executes one search query and returns its raw result items.
type Provider interface {
	Search(ctx context.Context, query string) ([]types.ResultItem, error)
}

// HTTPProvider implements Provider against the configured search API. Calls
// go through external.BaseClient, so transient upstream failures are retried
// and repeated failures open the circuit.
type HTTPProvider struct {
	base       *external.BaseClient
	baseURL    string
	apiKey     string
	maxResults int
	logger     *slog.Logger
}

// HTTPProviderOption is a functional option for configuring an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithBaseClient substitutes the transport, for tests.
func WithBaseClient(base *external.BaseClient) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.base = base
	}
}

// NewHTTPProvider creates an HTTPProvider from the search configuration.
func NewHTTPProvider(cfg config.SearchConfig, logger *slog.Logger, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		base: external.NewBaseClient(
			&http.Client{Timeout: cfg.Timeout},
			"search",
			external.DefaultRetryPolicy(),
			"ThreatWatch/1.0",
		),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey.Unmask(),
		maxResults: cfg.MaxResults,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// searchResponse is the upstream result envelope.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// Search runs one query. Upstream failures surface as AppErrors with the
// search provider code so callers can mark the scan failed consistently.
func (p *HTTPProvider) Search(ctx context.Context, query string) ([]types.ResultItem, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(p.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create search request",
			err,
		)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return nil, types.NewAppError(
				types.ErrCodeUpstreamSearch,
				"search provider unavailable",
				err,
			)
		}
		return nil, types.NewAppError(
			types.ErrCodeUpstreamSearch,
			fmt.Sprintf("search request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, types.NewAppError(
			types.ErrCodeUpstreamSearch,
			fmt.Sprintf("search provider returned %d: %s", resp.StatusCode, string(body)),
			nil,
		)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamSearch,
			"search provider returned an unparseable response",
			err,
		)
	}

	items := make([]types.ResultItem, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		items = append(items, types.ResultItem{
			Title:   r.Title,
			Link:    r.Link,
			Snippet: r.Snippet,
		})
	}

	p.logger.DebugContext(ctx, "search completed",
		"query", query,
		"results", len(items),
	)
	return items, nil
}

var _ Provider = (*HTTPProvider)(nil)
