package database

import (
	"time"
)

type ProviderKind string

const (
	ProviderKindHTML ProviderKind = "html"
	ProviderKindFeed ProviderKind = "feed"
)

type Match struct {
	ID          string // 12-byte content hash, hex encoded
	Date        string
	Time        string
	TeamA       string
	TeamB       string
	Result      string
	HasReport   bool
	ProviderIDs []string // grows only, in order of first sighting
	League      string
	ReportURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (m *Match) HasResult() bool {
	return m.Result != ""
}

type Provider struct {
	ID           string
	URL          string
	Name         string
	Kind         ProviderKind
	ErrorCount   int
	NextPollAt   *time.Time
	LastPolledAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PushSubscription holds the delivery credentials handed out by the browser.
// The core never looks inside.
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type Subscriber struct {
	ID           string
	Subscription PushSubscription
	ProviderIDs  []string
	ErrorCount   int // net delivery failures, may dip below zero between sweeps
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Subscriber) Follows(providerID string) bool {
	for _, id := range s.ProviderIDs {
		if id == providerID {
			return true
		}
	}
	return false
}
