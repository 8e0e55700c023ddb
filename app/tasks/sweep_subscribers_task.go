package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/telemetry"
)

const DefaultSweepThreshold = 64

// SweepSubscribersTask floors every subscriber's error counter at zero and
// then removes the ones that are past the threshold. This is the only place
// subscribers get deleted for failing delivery. Providers left without any
// subscriber afterwards are released.
type SweepSubscribersTask struct {
	Task
	subscriberRepo database.SubscriberRepository
	providerRepo   database.ProviderRepository
	canceller      ProviderCanceller
	threshold      int
	metrics        *telemetry.NotifyMetrics

	Clamped  int64
	Deleted  int64
	Released int
}

func NewSweepSubscribersTask(subscriberRepo database.SubscriberRepository, providerRepo database.ProviderRepository,
	canceller ProviderCanceller, threshold int, metrics *telemetry.NotifyMetrics) *SweepSubscribersTask {
	return &SweepSubscribersTask{
		Task:           NewTask(TaskTypeSweepSubscribers),
		subscriberRepo: subscriberRepo,
		providerRepo:   providerRepo,
		canceller:      canceller,
		threshold:      threshold,
		metrics:        metrics,
	}
}

func (t *SweepSubscribersTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	clamped, err := t.subscriberRepo.ClampErrorCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to clamp error counts: %w", err)
	}
	t.Clamped = clamped

	deleted, err := t.subscriberRepo.DeleteUnhealthy(ctx, t.threshold)
	if err != nil {
		return fmt.Errorf("failed to delete unhealthy subscribers: %w", err)
	}
	t.Deleted = int64(len(deleted))
	t.metrics.RecordSwept(ctx, t.Deleted)

	var dropped []string
	for _, subscriber := range deleted {
		dropped = append(dropped, subscriber.ProviderIDs...)
	}
	if t.providerRepo != nil {
		t.Released = ReleaseOrphans(ctx, t.subscriberRepo, t.providerRepo, t.canceller, dropped)
	}

	slog.Info("Task completed",
		"type", "SweepSubscribers",
		"duration", t.GetDuration(),
		"clamped", clamped,
		"deleted", t.Deleted,
		"released", t.Released,
		"threshold", t.threshold)

	return nil
}
