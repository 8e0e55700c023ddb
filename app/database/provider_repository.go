package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ProviderRepository = (*ProviderRepo)(nil)

// ProviderRepo handles database operations for providers
type ProviderRepo struct {
	db *DB
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB) *ProviderRepo {
	return &ProviderRepo{db: db}
}

const providerColumns = `id, url, name, kind, error_count, next_poll_at, last_polled_at, created_at, updated_at`

// CreateProvider inserts a new provider and returns the stored row
func (r *ProviderRepo) CreateProvider(ctx context.Context, provider Provider) (*Provider, error) {
	if provider.ID == "" {
		provider.ID = uuid.NewString()
	}
	if provider.Kind == "" {
		provider.Kind = ProviderKindHTML
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO providers (id, url, name, kind)
		VALUES (?, ?, ?, ?)
	`, provider.ID, provider.URL, provider.Name, string(provider.Kind))
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return r.GetProvider(ctx, provider.ID)
}

// UpsertProvider inserts a provider by URL or refreshes its name and kind.
// The boolean reports whether a new row was created.
func (r *ProviderRepo) UpsertProvider(ctx context.Context, url, name string, kind ProviderKind) (*Provider, bool, error) {
	existing, err := r.GetProviderByURL(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing provider: %w", err)
	}

	if existing == nil {
		created, err := r.CreateProvider(ctx, Provider{URL: url, Name: name, Kind: kind})
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	if kind == "" {
		kind = existing.Kind
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE providers
		SET name = COALESCE(NULLIF(?, ''), name), kind = ?, updated_at = ?
		WHERE id = ?
	`, name, string(kind), formatTime(time.Now()), existing.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update provider: %w", err)
	}

	updated, err := r.GetProvider(ctx, existing.ID)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// GetProvider retrieves a provider by its ID, nil if it does not exist
func (r *ProviderRepo) GetProvider(ctx context.Context, id string) (*Provider, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = ?`, id)
	provider, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return provider, nil
}

// GetProviderByURL retrieves a provider by its source URL
func (r *ProviderRepo) GetProviderByURL(ctx context.Context, url string) (*Provider, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE url = ?`, url)
	provider, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider by URL: %w", err)
	}
	return provider, nil
}

// GetProviders returns every registered provider
func (r *ProviderRepo) GetProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to get providers: %w", err)
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		provider, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		providers = append(providers, *provider)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider rows: %w", err)
	}

	return providers, nil
}

// GetProviderCount returns the total number of providers
func (r *ProviderRepo) GetProviderCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM providers").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get provider count: %w", err)
	}
	return count, nil
}

// DeleteProvider removes a provider; deleting a missing one is not an error
func (r *ProviderRepo) DeleteProvider(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	return nil
}

// RecordPollSuccess resets the error counter and stores the next poll time
func (r *ProviderRepo) RecordPollSuccess(ctx context.Context, id string, nextPoll time.Time) error {
	now := formatTime(time.Now())
	_, err := r.db.ExecContext(ctx, `
		UPDATE providers
		SET error_count = 0, next_poll_at = ?, last_polled_at = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(nextPoll), now, now, id)
	if err != nil {
		return fmt.Errorf("failed to record poll success: %w", err)
	}
	return nil
}

// RecordPollFailure stores the incremented error counter together with the backoff
func (r *ProviderRepo) RecordPollFailure(ctx context.Context, id string, errorCount int, nextPoll time.Time) error {
	now := formatTime(time.Now())
	_, err := r.db.ExecContext(ctx, `
		UPDATE providers
		SET error_count = ?, next_poll_at = ?, last_polled_at = ?, updated_at = ?
		WHERE id = ?
	`, errorCount, formatTime(nextPoll), now, now, id)
	if err != nil {
		return fmt.Errorf("failed to record poll failure: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*Provider, error) {
	var (
		provider             Provider
		kind                 string
		nextPoll, lastPolled sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(&provider.ID, &provider.URL, &provider.Name, &kind, &provider.ErrorCount,
		&nextPoll, &lastPolled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	provider.Kind = ProviderKind(kind)
	if provider.NextPollAt, err = parseNullTime(nextPoll); err != nil {
		return nil, err
	}
	if provider.LastPolledAt, err = parseNullTime(lastPolled); err != nil {
		return nil, err
	}
	if provider.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if provider.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &provider, nil
}
