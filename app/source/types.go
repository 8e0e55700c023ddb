package source

import (
	"context"
	"errors"

	"github.com/lysyi3m/match-watch/app/database"
)

var (
	ErrUnknownFormat = errors.New("unknown provider format")
	ErrNoRows        = errors.New("no schedule rows found")
)

// Candidate is one schedule row as published by a provider, before it is
// matched against stored state.
type Candidate struct {
	Date      string
	Time      string
	TeamA     string
	TeamB     string
	Result    string // empty until the match is played
	HasReport bool
	League    string
	ReportURL string
}

// Fetcher returns the current schedule of a provider or fails as a whole.
type Fetcher interface {
	Fetch(ctx context.Context, provider *database.Provider) ([]Candidate, error)
}

// Parser turns a downloaded document into candidates.
type Parser interface {
	Parse(data []byte, baseURL string) ([]Candidate, error)
}

// Config describes one provider file in the providers directory.
type Config struct {
	Name    string                `yaml:"name"`
	URL     string                `yaml:"url"`
	Kind    database.ProviderKind `yaml:"kind"`
	Enabled bool                  `yaml:"enabled"`
	File    string                `yaml:"-"` // derived from the filename
}

// PageInfo is what Inspect learned about a candidate provider page.
type PageInfo struct {
	Title string
	Kind  database.ProviderKind
	Rows  int
}
