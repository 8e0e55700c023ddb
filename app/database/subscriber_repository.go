package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var _ SubscriberRepository = (*SubscriberRepo)(nil)

// SubscriberRepo handles database operations for push subscribers
type SubscriberRepo struct {
	db *DB
}

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(db *DB) *SubscriberRepo {
	return &SubscriberRepo{db: db}
}

const subscriberColumns = `id, endpoint, p256dh, auth, provider_ids, error_count, created_at, updated_at`

// UpsertSubscriber stores a subscriber. Re-registering the same device keeps
// its health counter and replaces its provider set.
func (r *SubscriberRepo) UpsertSubscriber(ctx context.Context, subscriber Subscriber) error {
	providerIDs, err := json.Marshal(nonNil(subscriber.ProviderIDs))
	if err != nil {
		return fmt.Errorf("failed to encode provider IDs: %w", err)
	}

	now := formatTime(time.Now())
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, endpoint, p256dh, auth, provider_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			provider_ids = excluded.provider_ids,
			updated_at = excluded.updated_at
	`, subscriber.ID, subscriber.Subscription.Endpoint, subscriber.Subscription.Keys.P256dh,
		subscriber.Subscription.Keys.Auth, string(providerIDs), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	return nil
}

// GetSubscriber retrieves a subscriber by ID, nil if it does not exist
func (r *SubscriberRepo) GetSubscriber(ctx context.Context, id string) (*Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = ?`, id)
	subscriber, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return subscriber, nil
}

// GetSubscriberCount returns the total number of subscribers
func (r *SubscriberRepo) GetSubscriberCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscribers").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get subscriber count: %w", err)
	}
	return count, nil
}

// FindByProviders returns every subscriber following at least one of providerIDs
func (r *SubscriberRepo) FindByProviders(ctx context.Context, providerIDs []string) ([]Subscriber, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE EXISTS (
			SELECT 1 FROM json_each(subscribers.provider_ids)
			WHERE json_each.value IN (`+placeholders(len(providerIDs))+`)
		)
		ORDER BY created_at
	`, stringArgs(providerIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscribers by providers: %w", err)
	}
	defer rows.Close()

	var subscribers []Subscriber
	for rows.Next() {
		subscriber, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber row: %w", err)
		}
		subscribers = append(subscribers, *subscriber)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriber rows: %w", err)
	}

	return subscribers, nil
}

// CountByProvider returns how many subscribers still follow providerID
func (r *SubscriberRepo) CountByProvider(ctx context.Context, providerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscribers
		WHERE EXISTS (SELECT 1 FROM json_each(subscribers.provider_ids) WHERE json_each.value = ?)
	`, providerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers for provider: %w", err)
	}
	return count, nil
}

// SetProviders replaces a subscriber's provider set
func (r *SubscriberRepo) SetProviders(ctx context.Context, id string, providerIDs []string) error {
	encoded, err := json.Marshal(nonNil(providerIDs))
	if err != nil {
		return fmt.Errorf("failed to encode provider IDs: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE subscribers SET provider_ids = ?, updated_at = ? WHERE id = ?
	`, string(encoded), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set subscriber providers: %w", err)
	}
	return nil
}

// DeleteSubscriber removes a single subscriber
func (r *SubscriberRepo) DeleteSubscriber(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	return nil
}

// AdjustErrorCount adds delta to the delivery error counter in place
func (r *SubscriberRepo) AdjustErrorCount(ctx context.Context, id string, delta int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET error_count = error_count + ? WHERE id = ?
	`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust subscriber error count: %w", err)
	}
	return nil
}

// ClampErrorCounts raises every negative error counter to zero
func (r *SubscriberRepo) ClampErrorCounts(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE subscribers SET error_count = 0 WHERE error_count < 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to clamp subscriber error counts: %w", err)
	}
	return res.RowsAffected()
}

// DeleteUnhealthy removes subscribers whose error counter exceeds threshold
// and returns the removed rows
func (r *SubscriberRepo) DeleteUnhealthy(ctx context.Context, threshold int) ([]Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM subscribers WHERE error_count > ?
		RETURNING `+subscriberColumns, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to delete unhealthy subscribers: %w", err)
	}
	defer rows.Close()

	var deleted []Subscriber
	for rows.Next() {
		subscriber, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deleted subscriber: %w", err)
		}
		deleted = append(deleted, *subscriber)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to delete unhealthy subscribers: %w", err)
	}

	return deleted, nil
}

func scanSubscriber(row rowScanner) (*Subscriber, error) {
	var (
		subscriber           Subscriber
		providerIDs          string
		createdAt, updatedAt string
	)

	err := row.Scan(&subscriber.ID, &subscriber.Subscription.Endpoint, &subscriber.Subscription.Keys.P256dh,
		&subscriber.Subscription.Keys.Auth, &providerIDs, &subscriber.ErrorCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(providerIDs), &subscriber.ProviderIDs); err != nil {
		return nil, fmt.Errorf("invalid provider IDs for subscriber %s: %w", subscriber.ID, err)
	}
	if subscriber.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if subscriber.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &subscriber, nil
}
