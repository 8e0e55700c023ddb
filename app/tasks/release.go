package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/match-watch/app/database"
)

// ProviderCanceller stops a provider's timer.
type ProviderCanceller interface {
	Cancel(providerID string)
}

// ReleaseOrphans deletes the given providers that no subscriber follows any
// more and cancels their timers. It returns how many were released.
func ReleaseOrphans(ctx context.Context, subscriberRepo database.SubscriberRepository,
	providerRepo database.ProviderRepository, canceller ProviderCanceller, providerIDs []string) int {
	released := 0
	seen := make(map[string]bool, len(providerIDs))

	for _, id := range providerIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		count, err := subscriberRepo.CountByProvider(ctx, id)
		if err != nil {
			slog.Error("Database error", "operation", "count_by_provider", "provider", id, "error", err)
			continue
		}
		if count > 0 {
			continue
		}

		if canceller != nil {
			canceller.Cancel(id)
		}
		if err := providerRepo.DeleteProvider(ctx, id); err != nil {
			slog.Error("Database error", "operation", "delete_provider", "provider", id, "error", err)
			continue
		}
		released++
		slog.Info("Provider released", "provider", id)
	}

	return released
}
