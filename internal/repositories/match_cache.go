package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/desertthunder/crate/internal/matcher"
	"github.com/desertthunder/crate/internal/models"
)

// MatchRepository persists matches and failed lookups per destination. It implements
// [matcher.Cache] and [matcher.FailureCache]; hit and miss counters live for the process only.
type MatchRepository struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMatchRepository creates a new MatchRepository with the given database connection
func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) Lookup(ctx context.Context, key matcher.Key) (matcher.Entry, bool, error) {
	query := `
		SELECT destination_id, confidence
		FROM match_cache
		WHERE destination = ? AND kind = ? AND source_id = ?
	`

	var destinationID, confidence string
	err := r.db.QueryRowContext(ctx, query, key.Destination, key.Kind.String(), key.SourceID).Scan(&destinationID, &confidence)
	if errors.Is(err, sql.ErrNoRows) {
		r.misses.Add(1)
		return matcher.Entry{}, false, nil
	}
	if err != nil {
		return matcher.Entry{}, false, fmt.Errorf("failed to query match cache: %w", err)
	}

	r.hits.Add(1)
	return matcher.Entry{DestinationID: destinationID, Confidence: models.ParseConfidence(confidence)}, true, nil
}

func (r *MatchRepository) Store(ctx context.Context, key matcher.Key, entry matcher.Entry) error {
	query := `
		INSERT INTO match_cache (destination, kind, source_id, destination_id, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (destination, kind, source_id)
		DO UPDATE SET destination_id = excluded.destination_id, confidence = excluded.confidence
	`

	_, err := r.db.ExecContext(ctx, query,
		key.Destination, key.Kind.String(), key.SourceID,
		entry.DestinationID, entry.Confidence.String(), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store match: %w", err)
	}
	return nil
}

func (r *MatchRepository) ShouldSkip(ctx context.Context, key matcher.Key, now time.Time) (bool, error) {
	query := `
		SELECT next_retry
		FROM match_failures
		WHERE destination = ? AND kind = ? AND source_id = ?
	`

	var nextRetry time.Time
	err := r.db.QueryRowContext(ctx, query, key.Destination, key.Kind.String(), key.SourceID).Scan(&nextRetry)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query match failures: %w", err)
	}
	return now.Before(nextRetry), nil
}

// RecordFailure bumps the failure count for key and pushes next_retry out by
// [matcher.FailureBackoff].
func (r *MatchRepository) RecordFailure(ctx context.Context, key matcher.Key, reason string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT failure_count FROM match_failures WHERE destination = ? AND kind = ? AND source_id = ?`,
		key.Destination, key.Kind.String(), key.SourceID,
	).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to query match failures: %w", err)
	}
	count++

	query := `
		INSERT INTO match_failures (destination, kind, source_id, failure_count, last_error, next_retry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (destination, kind, source_id)
		DO UPDATE SET failure_count = excluded.failure_count, last_error = excluded.last_error,
			next_retry = excluded.next_retry, updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		key.Destination, key.Kind.String(), key.SourceID,
		count, reason, now.Add(matcher.FailureBackoff(count)), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record match failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match failure: %w", err)
	}
	return nil
}

func (r *MatchRepository) ClearFailure(ctx context.Context, key matcher.Key) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM match_failures WHERE destination = ? AND kind = ? AND source_id = ?`,
		key.Destination, key.Kind.String(), key.SourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear match failure: %w", err)
	}
	return nil
}

// Stats counts stored rows, optionally for one destination.
func (r *MatchRepository) Stats(ctx context.Context, destination string) (matcher.Stats, error) {
	stats := matcher.Stats{Hits: int(r.hits.Load()), Misses: int(r.misses.Load())}

	entries, where, args := `SELECT COUNT(*) FROM match_cache`, "", []any{}
	failures := `SELECT COUNT(*) FROM match_failures`
	if destination != "" {
		where = " WHERE destination = ?"
		args = append(args, destination)
	}

	if err := r.db.QueryRowContext(ctx, entries+where, args...).Scan(&stats.Entries); err != nil {
		return stats, fmt.Errorf("failed to count matches: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, failures+where, args...).Scan(&stats.Failures); err != nil {
		return stats, fmt.Errorf("failed to count match failures: %w", err)
	}
	return stats, nil
}

// Clear removes matches and failures, for one destination or, when destination is empty, all of
// them. It returns the number of rows removed.
func (r *MatchRepository) Clear(ctx context.Context, destination string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, table := range []string{"match_cache", "match_failures"} {
		query, args := "DELETE FROM "+table, []any{}
		if destination != "" {
			query += " WHERE destination = ?"
			args = append(args, destination)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get affected rows: %w", err)
		}
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cache clear: %w", err)
	}
	return int(removed), nil
}
