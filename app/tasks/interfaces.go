package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/match-watch/app/match"
	"github.com/lysyi3m/match-watch/app/notify"
	"github.com/lysyi3m/match-watch/app/source"
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	Start()
	GetDuration() time.Duration
}

// ProviderSchedulerInterface is what the HTTP layer needs to keep provider
// timers in step with registrations.
// Example usage:
//
//	scheduler := NewScheduler(providerRepo, fetcher, reconciler, fanout, policy, metrics)
//	scheduler.Start(ctx)
//	defer scheduler.Stop()
//	scheduler.Register(provider.ID)
type ProviderSchedulerInterface interface {
	Start(ctx context.Context) error
	Stop()
	Register(providerID string)
	Cancel(providerID string)
	Registered(providerID string) bool
}

type Reconciler interface {
	Reconcile(ctx context.Context, providerID string, candidates []source.Candidate) (*match.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, t match.Transition) (notify.Stats, error)
}
