package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/match-watch/app/database"
)

// Inspector checks a page before it is registered as a provider and finds a
// display name for it.
type Inspector struct {
	fetcher *HTTPFetcher
}

func NewInspector(fetcher *HTTPFetcher) *Inspector {
	return &Inspector{fetcher: fetcher}
}

func (i *Inspector) Inspect(ctx context.Context, pageURL string, kind database.ProviderKind) (*PageInfo, error) {
	if kind == "" {
		kind = database.ProviderKindHTML
	}
	parser, ok := i.fetcher.parsers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: provider kind %q", ErrUnknownFormat, kind)
	}

	data, err := i.fetcher.download(ctx, pageURL, kind == database.ProviderKindHTML)
	if err != nil {
		return nil, err
	}

	candidates, err := parser.Parse(data, pageURL)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoRows
	}

	info := &PageInfo{Kind: kind, Rows: len(candidates)}
	switch kind {
	case database.ProviderKindFeed:
		info.Title = feedTitle(data)
	default:
		info.Title = headingTitle(data)
		if info.Title == "" {
			info.Title = readableTitle(data, pageURL)
		}
	}

	slog.Debug("Provider page inspected", "url", pageURL, "kind", kind, "title", info.Title, "rows", info.Rows)
	return info, nil
}

// headingTitle takes the league name from the page headings. League pages
// carry the site name in the first <h1> and the league in the second.
func headingTitle(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	headings := doc.Find("h1")
	heading := headings.Eq(1)
	if heading.Length() == 0 {
		heading = headings.First()
	}

	title := squash(heading.Text())
	title = strings.ReplaceAll(title, " -", "")
	return strings.TrimSpace(title)
}

func readableTitle(data []byte, pageURL string) string {
	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(data), parsed)
	if err != nil {
		slog.Debug("Readability failed", "url", pageURL, "error", err)
		return ""
	}
	return squash(article.Title)
}

func feedTitle(data []byte) string {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return squash(feed.Title)
}
