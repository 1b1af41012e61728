package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/newsvault/pkg/domain"
)

// RunRepository keeps results of pipeline runs
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun stores the run result, saving the same run again replaces it
func (r *RunRepository) SaveRun(ctx context.Context, res domain.WorkflowResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", res.RunID, err)
	}

	return withRetry(ctx, func() error {
		query := `
			INSERT INTO runs (id, started_at, elapsed_ms, collected, published, failures, result)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				started_at = excluded.started_at, elapsed_ms = excluded.elapsed_ms, collected = excluded.collected,
				published = excluded.published, failures = excluded.failures, result = excluded.result
		`
		failures := len(res.ExtractionFailures) + len(res.SummaryFailures) + len(res.PublishFailures)
		_, err := r.db.ExecContext(ctx, query, res.RunID, sqlTime(res.StartedAt), res.Elapsed.Milliseconds(),
			res.Collected, res.PublishSuccess, failures, string(data))
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("save run: %w", err)}
		}
		return nil
	})
}

// LastRun returns the most recent run, nil if there were no runs
func (r *RunRepository) LastRun(ctx context.Context) (*domain.WorkflowResult, error) {
	var data string
	err := r.db.GetContext(ctx, &data, `SELECT result FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last run: %w", err)
	}

	var res domain.WorkflowResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("unmarshal last run: %w", err)
	}
	return &res, nil
}
