package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/lysyi3m/match-watch/app/database"
)

const maxBodySize = 8 << 20

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher downloads provider pages and hands them to the parser that
// matches the provider kind.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	parsers    map[database.ProviderKind]Parser
}

func NewHTTPFetcher(httpClient *http.Client, userAgent string, timeout time.Duration, location *time.Location) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
		parsers: map[database.ProviderKind]Parser{
			database.ProviderKindHTML: NewTableParser(),
			database.ProviderKindFeed: NewFeedParser(location),
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, provider *database.Provider) ([]Candidate, error) {
	parser, ok := f.parsers[provider.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: provider kind %q", ErrUnknownFormat, provider.Kind)
	}

	// feeds declare their encoding in the XML prolog and gofeed honours it
	data, err := f.download(ctx, provider.URL, provider.Kind == database.ProviderKindHTML)
	if err != nil {
		return nil, err
	}

	candidates, err := parser.Parse(data, provider.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", provider.URL, err)
	}

	slog.Debug("Provider fetched", "provider", provider.ID, "url", provider.URL, "bytes", len(data), "rows", len(candidates))
	return candidates, nil
}

func (f *HTTPFetcher) download(ctx context.Context, url string, decode bool) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var body io.Reader = io.LimitReader(resp.Body, maxBodySize)
	if decode {
		body, err = charset.NewReader(body, resp.Header.Get("Content-Type"))
		if err != nil {
			return nil, fmt.Errorf("failed to decode response body: %w", err)
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
