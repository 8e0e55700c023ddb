package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/source"
	"github.com/lysyi3m/match-watch/app/telemetry"
)

var _ ProviderSchedulerInterface = (*Scheduler)(nil)

// Scheduler owns one timer per registered provider. A provider never has
// more than one cycle in flight, and a cycle only re-arms while its provider
// is still registered.
type Scheduler struct {
	providerRepo database.ProviderRepository
	fetcher      source.Fetcher
	reconciler   Reconciler
	notifier     Notifier
	policy       Policy
	metrics      *telemetry.PollMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timers   map[string]*timerEntry
	inflight map[string]bool
	stopped  bool
}

type timerEntry struct {
	timer *time.Timer
	// errors carries the error count between cycles for when the store
	// cannot tell.
	errors int
}

func NewScheduler(providerRepo database.ProviderRepository, fetcher source.Fetcher, reconciler Reconciler,
	notifier Notifier, policy Policy, metrics *telemetry.PollMetrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		providerRepo: providerRepo,
		fetcher:      fetcher,
		reconciler:   reconciler,
		notifier:     notifier,
		policy:       policy,
		metrics:      metrics,
		ctx:          ctx,
		cancel:       cancel,
		timers:       make(map[string]*timerEntry),
		inflight:     make(map[string]bool),
	}
}

// Start arms every stored provider once, honouring persisted poll times.
func (s *Scheduler) Start(ctx context.Context) error {
	providers, err := s.providerRepo.GetProviders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}

	now := time.Now()
	for _, provider := range providers {
		delay := s.policy.Jitter()
		if provider.NextPollAt != nil && provider.NextPollAt.After(now) {
			delay = provider.NextPollAt.Sub(now)
		}
		s.schedule(provider.ID, delay)
		slog.Debug("Provider armed", "provider", provider.ID, "name", provider.Name, "delay", delay)
	}

	slog.Info("Scheduler started", "providers", len(providers))
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Register arms a newly added provider after a short jitter. Registering a
// provider that is already armed pulls its next poll forward.
func (s *Scheduler) Register(providerID string) {
	s.schedule(providerID, s.policy.Jitter())
}

// Cancel drops the provider's timer. A cycle already running is allowed to
// finish but will not re-arm. Cancelling twice is a no-op.
func (s *Scheduler) Cancel(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[providerID]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(s.timers, providerID)

	slog.Debug("Provider timer cancelled", "provider", providerID)
}

func (s *Scheduler) Registered(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[providerID]
	return ok
}

func (s *Scheduler) schedule(providerID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if old, ok := s.timers[providerID]; ok {
		old.timer.Stop()
	}
	s.arm(providerID, &timerEntry{}, delay)
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(providerID string, entry *timerEntry, delay time.Duration) {
	s.timers[providerID] = entry
	entry.timer = time.AfterFunc(delay, func() { s.fire(providerID, entry) })
}

func (s *Scheduler) fire(providerID string, entry *timerEntry) {
	s.mu.Lock()
	if s.stopped || s.timers[providerID] != entry {
		s.mu.Unlock()
		return
	}
	if s.inflight[providerID] {
		// a cancelled cycle of the same provider is still finishing
		s.arm(providerID, entry, time.Second+s.policy.Jitter())
		s.mu.Unlock()
		return
	}
	s.inflight[providerID] = true
	priorErrors := entry.errors
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	delay, errorCount, keep := s.runCycle(providerID, priorErrors)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, providerID)
	entry.errors = errorCount
	if s.stopped || s.timers[providerID] != entry {
		return
	}
	if !keep {
		delete(s.timers, providerID)
		return
	}
	s.arm(providerID, entry, delay)
}

// runCycle runs one poll. The cycle itself has no deadline; the fetcher and
// the push sender bound their own requests.
func (s *Scheduler) runCycle(providerID string, priorErrors int) (delay time.Duration, errorCount int, keep bool) {
	task := NewPollProviderTask(providerID, s.providerRepo, s.fetcher, s.reconciler, s.notifier, s.policy, s.metrics)
	task.PriorErrors = priorErrors

	ctx := s.ctx

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Provider cycle panicked", "provider", providerID, "panic", r)
			_ = task.fail(ctx, fmt.Errorf("panic: %v", r))
			s.metrics.RecordPoll(ctx, providerID, task.GetDuration(), false)
			delay, errorCount, keep = task.NextDelay, task.ErrorCount, true
		}
	}()

	task.Start()
	err := task.Execute(ctx)
	s.metrics.RecordPoll(ctx, providerID, task.GetDuration(), err == nil)

	if err != nil {
		slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "provider", providerID, "error", err)
	}
	if task.Deleted {
		return 0, 0, false
	}
	return task.NextDelay, task.ErrorCount, true
}
