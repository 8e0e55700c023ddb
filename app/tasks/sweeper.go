package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/telemetry"
)

const DefaultSweepInterval = 24 * time.Hour

// Sweeper runs SweepSubscribersTask on a fixed cadence, independent of any
// provider timer. The first sweep happens one interval after Start.
type Sweeper struct {
	subscriberRepo database.SubscriberRepository
	providerRepo   database.ProviderRepository
	canceller      ProviderCanceller
	interval       time.Duration
	threshold      int
	metrics        *telemetry.NotifyMetrics
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

func NewSweeper(subscriberRepo database.SubscriberRepository, providerRepo database.ProviderRepository,
	canceller ProviderCanceller, interval time.Duration, threshold int, metrics *telemetry.NotifyMetrics) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if threshold <= 0 {
		threshold = DefaultSweepThreshold
	}

	return &Sweeper{
		subscriberRepo: subscriberRepo,
		providerRepo:   providerRepo,
		canceller:      canceller,
		interval:       interval,
		threshold:      threshold,
		metrics:        metrics,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce()
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

// RunOnce performs a single sweep and logs rather than returns its error.
func (s *Sweeper) RunOnce() {
	task := NewSweepSubscribersTask(s.subscriberRepo, s.providerRepo, s.canceller, s.threshold, s.metrics)
	task.Start()

	if err := task.Execute(s.ctx); err != nil {
		slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "error", err)
	}
}
