package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/source"
	"github.com/lysyi3m/match-watch/app/telemetry"
)

const persistTimeout = 10 * time.Second

// PollProviderTask runs one fetch, reconcile, notify cycle for a provider
// and works out when the next one is due.
type PollProviderTask struct {
	Task
	ProviderID   string
	providerRepo database.ProviderRepository
	fetcher      source.Fetcher
	reconciler   Reconciler
	notifier     Notifier
	policy       Policy
	metrics      *telemetry.PollMetrics
	now          func() time.Time

	provider *database.Provider

	// PriorErrors is the last known error count, used when the provider
	// cannot be loaded.
	PriorErrors int
	// ErrorCount is the provider's error count after the cycle.
	ErrorCount int
	// NextDelay is set by Execute whenever the provider still exists.
	NextDelay time.Duration
	// Deleted reports that the provider is gone and must not be re-armed.
	Deleted bool
}

func NewPollProviderTask(providerID string, providerRepo database.ProviderRepository, fetcher source.Fetcher,
	reconciler Reconciler, notifier Notifier, policy Policy, metrics *telemetry.PollMetrics) *PollProviderTask {
	return &PollProviderTask{
		Task:         NewTask(TaskTypePollProvider),
		ProviderID:   providerID,
		providerRepo: providerRepo,
		fetcher:      fetcher,
		reconciler:   reconciler,
		notifier:     notifier,
		policy:       policy,
		metrics:      metrics,
		now:          time.Now,
	}
}

func (t *PollProviderTask) Execute(ctx context.Context) error {
	provider, err := t.providerRepo.GetProvider(ctx, t.ProviderID)
	if err != nil {
		return t.fail(ctx, fmt.Errorf("failed to load provider: %w", err))
	}
	if provider == nil {
		slog.Debug("Provider no longer exists, stopping", "provider", t.ProviderID)
		t.Deleted = true
		return nil
	}
	t.provider = provider

	candidates, err := t.fetcher.Fetch(ctx, provider)
	if err != nil {
		return t.fail(ctx, fmt.Errorf("failed to fetch provider: %w", err))
	}

	result, err := t.reconciler.Reconcile(ctx, provider.ID, candidates)
	if err != nil {
		return t.fail(ctx, fmt.Errorf("failed to reconcile provider: %w", err))
	}

	delivered, failed := 0, 0
	for _, transition := range result.Transitions {
		t.metrics.RecordTransition(ctx, string(transition.Kind))

		stats, err := t.notifier.Notify(ctx, transition)
		if err != nil {
			slog.Error("Fanout failed", "provider", provider.ID, "match", transition.Match.ID, "error", err)
			continue
		}
		delivered += stats.Delivered
		failed += stats.Failed
	}

	now := t.now()
	t.NextDelay = t.policy.NextDelay(now, result.Records)
	t.ErrorCount = 0

	persistCtx, cancel := detached(ctx)
	defer cancel()
	if err := t.providerRepo.RecordPollSuccess(persistCtx, provider.ID, now.Add(t.NextDelay)); err != nil {
		return t.fail(ctx, fmt.Errorf("failed to record poll: %w", err))
	}

	slog.Info("Task completed",
		"type", "PollProvider",
		"provider", provider.Name,
		"duration", t.GetDuration(),
		"total", len(candidates),
		"new", result.Inserted,
		"merged", result.Merged,
		"skipped", result.Skipped,
		"transitions", len(result.Transitions),
		"delivered", delivered,
		"failed", failed,
		"next_poll", t.NextDelay)

	return nil
}

// fail records cause as a failed cycle and picks the backoff delay. The
// bookkeeping outlives ctx so that an expired or cancelled cycle still counts.
func (t *PollProviderTask) fail(ctx context.Context, cause error) error {
	errorCount := t.PriorErrors + 1
	if t.provider != nil {
		errorCount = t.provider.ErrorCount + 1
	}
	t.ErrorCount = errorCount
	t.NextDelay = t.policy.FailureDelay(errorCount)

	persistCtx, cancel := detached(ctx)
	defer cancel()
	next := t.now().Add(t.NextDelay)
	if err := t.providerRepo.RecordPollFailure(persistCtx, t.ProviderID, errorCount, next); err != nil {
		slog.Error("Failed to record poll failure", "provider", t.ProviderID, "error", err)
	}

	slog.Warn("Provider poll failed",
		"provider", t.ProviderID,
		"error_count", errorCount,
		"retry_in", t.NextDelay,
		"error", cause)

	return cause
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
