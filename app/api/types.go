package api

import (
	"context"
	"net/http"
	"time"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/notify"
	"github.com/lysyi3m/match-watch/app/source"
	"github.com/lysyi3m/match-watch/app/tasks"
)

type InspectorInterface interface {
	Inspect(ctx context.Context, pageURL string, kind database.ProviderKind) (*source.PageInfo, error)
}

type TestSenderInterface interface {
	SendTest(ctx context.Context, subscription database.PushSubscription, msg string) error
}

var (
	_ InspectorInterface  = (*source.Inspector)(nil)
	_ TestSenderInterface = (*notify.Fanout)(nil)
)

type Handler struct {
	providerRepo   database.ProviderRepository
	subscriberRepo database.SubscriberRepository
	matchRepo      database.MatchRepository
	scheduler      tasks.ProviderSchedulerInterface
	inspector      InspectorInterface
	sender         TestSenderInterface
	vapidPublicKey string
	metrics        http.Handler
}

type subscribeRequest struct {
	database.PushSubscription
	Providers *[]string `json:"providers"`
}

type setProvidersRequest struct {
	Providers []string `json:"providers"`
}

type testMessageRequest struct {
	database.PushSubscription
	Msg string `json:"msg"`
}

type createProviderRequest struct {
	URL  string                `json:"url" binding:"required"`
	Name string                `json:"name"`
	Kind database.ProviderKind `json:"kind"`
}

type providerResponse struct {
	ID           string                `json:"id"`
	URL          string                `json:"url"`
	Name         string                `json:"name"`
	Kind         database.ProviderKind `json:"kind"`
	ErrorCount   int                   `json:"error_count"`
	NextPollAt   *time.Time            `json:"next_poll_at,omitempty"`
	LastPolledAt *time.Time            `json:"last_polled_at,omitempty"`
	Subscribers  int                   `json:"subscribers"`
}
