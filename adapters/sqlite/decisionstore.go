package sqlite

import (
	"context"
	"time"

	"github.com/ingestgate/ingestgate/domain/decision"
	"github.com/ingestgate/ingestgate/ports"
)

// DecisionStore implements ports.DecisionStore using SQLite.
type DecisionStore struct {
	db *DB
}

// NewDecisionStore creates a new SQLite decision store.
func NewDecisionStore(db *DB) *DecisionStore {
	return &DecisionStore{db: db}
}

// RecordBatch stores multiple decision events.
func (s *DecisionStore) RecordBatch(ctx context.Context, events []decision.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO decision_events (
			id, tag, client_key, method, path, status, user_agent, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		// Store timestamps in UTC for consistent querying
		_, err := stmt.ExecContext(ctx,
			e.ID, string(e.Tag), e.ClientKey, e.Method, e.Path, e.Status, e.UserAgent, e.Timestamp.UTC(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Summary returns aggregated decision counts for a period.
func (s *DecisionStore) Summary(ctx context.Context, start, end time.Time) (decision.Summary, error) {
	startStr := start.UTC().Format("2006-01-02 15:04:05")
	endStr := end.UTC().Format("2006-01-02 15:04:05")

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN tag = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tag = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tag = ? THEN 1 ELSE 0 END), 0)
		FROM decision_events
		WHERE datetime(timestamp) >= datetime(?) AND datetime(timestamp) < datetime(?)
	`, string(decision.TagAllowed), string(decision.TagRateLimited), string(decision.TagBlockedInvalidPath),
		startStr, endStr)

	summary := decision.Summary{
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if err := row.Scan(&summary.Allowed, &summary.RateLimited, &summary.Blocked); err != nil {
		return decision.Summary{}, err
	}

	return summary, nil
}

// TopClients returns the busiest client keys for a period, most active
// first. Useful when investigating who is being throttled.
func (s *DecisionStore) TopClients(ctx context.Context, start, end time.Time, limit int) (map[string]int64, error) {
	startStr := start.UTC().Format("2006-01-02 15:04:05")
	endStr := end.UTC().Format("2006-01-02 15:04:05")

	rows, err := s.db.QueryContext(ctx, `
		SELECT client_key, COUNT(*) AS n
		FROM decision_events
		WHERE datetime(timestamp) >= datetime(?) AND datetime(timestamp) < datetime(?)
		GROUP BY client_key
		ORDER BY n DESC
		LIMIT ?
	`, startStr, endStr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// Prune deletes decision events older than the cutoff. Returns the number
// of rows removed.
func (s *DecisionStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM decision_events WHERE datetime(timestamp) < datetime(?)
	`, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ensure interface compliance.
var _ ports.DecisionStore = (*DecisionStore)(nil)
