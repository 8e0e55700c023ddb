package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/match"
	"github.com/lysyi3m/match-watch/app/telemetry"
)

const DefaultConcurrency = 8

// Fanout broadcasts record transitions to every interested subscriber and
// keeps score of each subscriber's delivery health. It never deletes anyone.
type Fanout struct {
	subscribers database.SubscriberRepository
	providers   database.ProviderRepository
	sender      Sender
	concurrency int
	metrics     *telemetry.NotifyMetrics
}

func NewFanout(subscribers database.SubscriberRepository, providers database.ProviderRepository,
	sender Sender, concurrency int, metrics *telemetry.NotifyMetrics) *Fanout {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Fanout{
		subscribers: subscribers,
		providers:   providers,
		sender:      sender,
		concurrency: concurrency,
		metrics:     metrics,
	}
}

// Notify delivers one transition. Only the subscriber lookup can fail the
// call; individual deliveries are counted, not returned.
func (f *Fanout) Notify(ctx context.Context, t match.Transition) (Stats, error) {
	subscribers, err := f.subscribers.FindByProviders(ctx, t.ProviderIDs)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to find subscribers: %w", err)
	}

	stats := Stats{Subscribers: len(subscribers)}
	if len(subscribers) == 0 {
		return stats, nil
	}

	names := newNameCache(f.providers)
	payloads := make([][]byte, len(subscribers))
	for i := range subscribers {
		name := names.lookup(ctx, preferredProvider(t.ProviderIDs, &subscribers[i]))
		payloads[i], err = json.Marshal(transitionPayload(t, name))
		if err != nil {
			return stats, fmt.Errorf("failed to encode payload: %w", err)
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(f.concurrency)

	for i := range subscribers {
		subscriber := &subscribers[i]
		payload := payloads[i]

		g.Go(func() error {
			delivered := f.deliver(ctx, subscriber, payload)

			mu.Lock()
			if delivered {
				stats.Delivered++
			} else {
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("Fanout finished", "match", t.Match.ID, "kind", string(t.Kind), "subscribers", stats.Subscribers,
		"delivered", stats.Delivered, "failed", stats.Failed)

	return stats, nil
}

// SendTest pushes an ad-hoc message to a single registration. Its outcome
// does not touch any health counter.
func (f *Fanout) SendTest(ctx context.Context, subscription database.PushSubscription, msg string) error {
	payload, err := json.Marshal(Payload{Msg: msg})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := f.sender.Send(ctx, subscription, payload); err != nil {
		return fmt.Errorf("failed to send test message: %w", err)
	}
	return nil
}

func (f *Fanout) deliver(ctx context.Context, subscriber *database.Subscriber, payload []byte) bool {
	err := f.sender.Send(ctx, subscriber.Subscription, payload)
	delta := -1
	if err != nil {
		delta = 1
		slog.Warn("Push delivery failed", "subscriber", subscriber.ID, "error", err)
	}
	f.metrics.RecordDelivery(ctx, err == nil)

	if adjErr := f.subscribers.AdjustErrorCount(ctx, subscriber.ID, delta); adjErr != nil {
		slog.Error("Failed to update subscriber health", "subscriber", subscriber.ID, "delta", delta, "error", adjErr)
	}
	return err == nil
}

// preferredProvider is the first of the record's providers the subscriber
// follows.
func preferredProvider(providerIDs []string, subscriber *database.Subscriber) string {
	for _, id := range providerIDs {
		if subscriber.Follows(id) {
			return id
		}
	}
	return ""
}

func transitionPayload(t match.Transition, providerName string) Payload {
	hasReport := t.Kind == match.TransitionReport || t.Match.HasReport
	return Payload{
		ID:        t.Match.ID,
		Msg:       Message(t, providerName),
		HasReport: &hasReport,
	}
}

// Message renders the text shown on the device.
func Message(t match.Transition, providerName string) string {
	if providerName == "" {
		providerName = "Match update"
	}
	m := t.Match
	if t.Kind == match.TransitionReport {
		return fmt.Sprintf("%s: report available for %s vs %s (%s)", providerName, m.TeamA, m.TeamB, m.Result)
	}
	return fmt.Sprintf("%s: %s vs %s ended %s", providerName, m.TeamA, m.TeamB, m.Result)
}

// nameCache lives for a single fanout call.
type nameCache struct {
	providers database.ProviderRepository
	names     map[string]string
}

func newNameCache(providers database.ProviderRepository) *nameCache {
	return &nameCache{providers: providers, names: make(map[string]string)}
}

func (c *nameCache) lookup(ctx context.Context, providerID string) string {
	if providerID == "" {
		return ""
	}
	if name, ok := c.names[providerID]; ok {
		return name
	}

	var name string
	provider, err := c.providers.GetProvider(ctx, providerID)
	if err != nil {
		slog.Warn("Failed to resolve provider name", "provider", providerID, "error", err)
	} else if provider != nil {
		name = provider.Name
	}

	c.names[providerID] = name
	return name
}
