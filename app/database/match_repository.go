package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var _ MatchRepository = (*MatchRepo)(nil)

// MatchRepo handles database operations for match records.
// Every mutation is a single guarded statement so that concurrent passes
// from different providers merge instead of overwriting each other.
type MatchRepo struct {
	db *DB
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *DB) *MatchRepo {
	return &MatchRepo{db: db}
}

const matchColumns = `id, date, time, team_a, team_b, result, has_report, provider_ids, league, report_url, created_at, updated_at`

// FindByIDs loads all stored matches whose ID is in ids
func (r *MatchRepo) FindByIDs(ctx context.Context, ids []string) ([]Match, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to find matches: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, len(ids))
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, *match)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}

	return matches, nil
}

// GetMatch retrieves a single match, nil if it does not exist
func (r *MatchRepo) GetMatch(ctx context.Context, id string) (*Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return match, nil
}

// GetMatchCount returns the total number of stored matches
func (r *MatchRepo) GetMatchCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM matches").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get match count: %w", err)
	}
	return count, nil
}

// InsertMatches writes all matches in one transaction. Rows whose ID already
// exists are left alone and reported back.
func (r *MatchRepo) InsertMatches(ctx context.Context, matches []Match) ([]string, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO matches (id, date, time, team_a, team_b, result, has_result, has_report,
		                     provider_ids, league, report_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	var existing []string
	for _, m := range matches {
		providerIDs, err := json.Marshal(nonNil(m.ProviderIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to encode provider IDs: %w", err)
		}

		res, err := stmt.ExecContext(ctx, m.ID, m.Date, m.Time, m.TeamA, m.TeamB, m.Result,
			m.HasResult(), m.HasReport, string(providerIDs), m.League, m.ReportURL, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert match %s: %w", m.ID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read insert result: %w", err)
		}
		if affected == 0 {
			existing = append(existing, m.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit matches: %w", err)
	}

	return existing, nil
}

// AddProvider appends providerID to the match's provider set unless present
func (r *MatchRepo) AddProvider(ctx context.Context, id, providerID string) (bool, error) {
	return r.execGuarded(ctx, "add provider", `
		UPDATE matches
		SET provider_ids = json_insert(provider_ids, '$[#]', ?), updated_at = ?
		WHERE id = ?
		  AND NOT EXISTS (SELECT 1 FROM json_each(matches.provider_ids) WHERE json_each.value = ?)
	`, providerID, formatTime(time.Now()), id, providerID)
}

// BackfillLeague sets the league only when none is stored yet
func (r *MatchRepo) BackfillLeague(ctx context.Context, id, league string) (bool, error) {
	if league == "" {
		return false, nil
	}
	return r.execGuarded(ctx, "backfill league", `
		UPDATE matches SET league = ?, updated_at = ?
		WHERE id = ? AND league = ''
	`, league, formatTime(time.Now()), id)
}

// BackfillReportURL sets the report location only when none is stored yet
func (r *MatchRepo) BackfillReportURL(ctx context.Context, id, reportURL string) (bool, error) {
	if reportURL == "" {
		return false, nil
	}
	return r.execGuarded(ctx, "backfill report URL", `
		UPDATE matches SET report_url = ?, updated_at = ?
		WHERE id = ? AND report_url = ''
	`, reportURL, formatTime(time.Now()), id)
}

// MarkResult stores the result of a match that had none. It reports false
// when another pass got there first.
func (r *MatchRepo) MarkResult(ctx context.Context, id, result string) (bool, error) {
	if result == "" {
		return false, nil
	}
	return r.execGuarded(ctx, "mark result", `
		UPDATE matches SET result = ?, has_result = 1, updated_at = ?
		WHERE id = ? AND has_result = 0
	`, result, formatTime(time.Now()), id)
}

// MarkReport flips has_report to true. There is no way back.
func (r *MatchRepo) MarkReport(ctx context.Context, id string) (bool, error) {
	return r.execGuarded(ctx, "mark report", `
		UPDATE matches SET has_report = 1, updated_at = ?
		WHERE id = ? AND has_report = 0
	`, formatTime(time.Now()), id)
}

func (r *MatchRepo) execGuarded(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	return affected > 0, nil
}

func scanMatch(row rowScanner) (*Match, error) {
	var (
		match                Match
		providerIDs          string
		createdAt, updatedAt string
	)

	err := row.Scan(&match.ID, &match.Date, &match.Time, &match.TeamA, &match.TeamB, &match.Result,
		&match.HasReport, &providerIDs, &match.League, &match.ReportURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(providerIDs), &match.ProviderIDs); err != nil {
		return nil, fmt.Errorf("invalid provider IDs for match %s: %w", match.ID, err)
	}
	if match.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if match.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &match, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
