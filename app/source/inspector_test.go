package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/match-watch/app/database"
)

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestInspectorHeadingTitle(t *testing.T) {
	server := serve(t, "text/html; charset=utf-8", schedulePage)

	info, err := NewInspector(newTestFetcher()).Inspect(context.Background(), server.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "Bezirksklasse Männer 5 Saison", info.Title)
	assert.Equal(t, 3, info.Rows)
	assert.Equal(t, database.ProviderKindHTML, info.Kind)
}

func TestInspectorWithoutHeading(t *testing.T) {
	page := `<html><head><title>Kreisliga Süd Spielplan</title></head><body>
<table><tbody><tr><td>12.05.24</td><td>18:00</td><td>1</td><td>A</td><td>B</td>
<td></td><td></td><td></td><td></td></tr></tbody></table></body></html>`
	server := serve(t, "text/html; charset=utf-8", page)

	info, err := NewInspector(newTestFetcher()).Inspect(context.Background(), server.URL, database.ProviderKindHTML)
	require.NoError(t, err, "a missing heading is not fatal")
	assert.Equal(t, 1, info.Rows)
}

func TestInspectorFeed(t *testing.T) {
	server := serve(t, "application/rss+xml", scheduleFeed)

	info, err := NewInspector(newTestFetcher()).Inspect(context.Background(), server.URL, database.ProviderKindFeed)
	require.NoError(t, err)
	assert.Equal(t, "Kreisliga Nord", info.Title)
	assert.Equal(t, 2, info.Rows)
}

func TestInspectorRejectsPagesWithoutRows(t *testing.T) {
	server := serve(t, "text/html; charset=utf-8", `<h1>x</h1><table><tbody></tbody></table>`)

	_, err := NewInspector(newTestFetcher()).Inspect(context.Background(), server.URL, database.ProviderKindHTML)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRows))
}
