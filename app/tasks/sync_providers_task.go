package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/source"
)

// SyncProvidersTask upserts every enabled provider file into the store so the
// scheduler picks it up on Start.
type SyncProvidersTask struct {
	Task
	configCache  *source.ConfigCache
	providerRepo database.ProviderRepository

	Created int
	Updated int
}

func NewSyncProvidersTask(configCache *source.ConfigCache, providerRepo database.ProviderRepository) *SyncProvidersTask {
	return &SyncProvidersTask{
		Task:         NewTask(TaskTypeSyncProviders),
		configCache:  configCache,
		providerRepo: providerRepo,
	}
}

func (t *SyncProvidersTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for _, config := range t.configCache.GetEnabledConfigs() {
		provider, created, err := t.providerRepo.UpsertProvider(ctx, config.URL, config.Name, config.Kind)
		if err != nil {
			slog.Error("Task failed", "type", "SyncProviders", "file", config.File, "error", err)
			return fmt.Errorf("failed to sync provider %s: %w", config.File, err)
		}

		if created {
			t.Created++
		} else {
			t.Updated++
		}
		slog.Debug("Provider synced", "file", config.File, "provider", provider.ID, "created", created)
	}

	slog.Info("Task completed",
		"type", "SyncProviders",
		"duration", t.GetDuration(),
		"created", t.Created,
		"updated", t.Updated)

	return nil
}
