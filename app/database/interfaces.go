package database

import (
	"context"
	"time"
)

type MatchRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]Match, error)
	GetMatch(ctx context.Context, id string) (*Match, error)
	GetMatchCount(ctx context.Context) (int, error)

	// InsertMatches stores new records in one transaction. IDs that already
	// existed are returned untouched so the caller can merge into them.
	InsertMatches(ctx context.Context, matches []Match) ([]string, error)

	AddProvider(ctx context.Context, id, providerID string) (bool, error)
	BackfillLeague(ctx context.Context, id, league string) (bool, error)
	BackfillReportURL(ctx context.Context, id, reportURL string) (bool, error)
	MarkResult(ctx context.Context, id, result string) (bool, error)
	MarkReport(ctx context.Context, id string) (bool, error)
}

type ProviderRepository interface {
	GetProvider(ctx context.Context, id string) (*Provider, error)
	GetProviderByURL(ctx context.Context, url string) (*Provider, error)
	GetProviders(ctx context.Context) ([]Provider, error)
	GetProviderCount(ctx context.Context) (int, error)

	CreateProvider(ctx context.Context, provider Provider) (*Provider, error)
	UpsertProvider(ctx context.Context, url, name string, kind ProviderKind) (*Provider, bool, error)
	DeleteProvider(ctx context.Context, id string) error

	RecordPollSuccess(ctx context.Context, id string, nextPoll time.Time) error
	RecordPollFailure(ctx context.Context, id string, errorCount int, nextPoll time.Time) error
}

type SubscriberRepository interface {
	GetSubscriber(ctx context.Context, id string) (*Subscriber, error)
	GetSubscriberCount(ctx context.Context) (int, error)
	FindByProviders(ctx context.Context, providerIDs []string) ([]Subscriber, error)
	CountByProvider(ctx context.Context, providerID string) (int, error)

	UpsertSubscriber(ctx context.Context, subscriber Subscriber) error
	SetProviders(ctx context.Context, id string, providerIDs []string) error
	DeleteSubscriber(ctx context.Context, id string) error

	AdjustErrorCount(ctx context.Context, id string, delta int) error
	ClampErrorCounts(ctx context.Context) (int64, error)
	DeleteUnhealthy(ctx context.Context, threshold int) ([]Subscriber, error)
}
