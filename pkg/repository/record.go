package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/newsvault/pkg/domain"
)

// ErrNotFound is returned for unknown record ids
var ErrNotFound = errors.New("record not found")

// RecordRepository is a local archive of published records. It implements publisher.Tracker.
type RecordRepository struct {
	db *sqlx.DB
}

// StoredRecord is a record with its tracker state
type StoredRecord struct {
	ID         string
	Record     domain.Record
	Fields     map[string]string
	Archived   bool
	ArchivedAt time.Time
}

// recordSQL is the database row of records table
type recordSQL struct {
	ID         int64        `db:"id"`
	Title      string       `db:"title"`
	Body       string       `db:"body"`
	SourceURL  string       `db:"source_url"`
	Archived   bool         `db:"archived"`
	CreatedAt  time.Time    `db:"created_at"`
	ArchivedAt sql.NullTime `db:"archived_at"`
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// CreateRecord inserts the record with its labels and returns record id
func (r *RecordRepository) CreateRecord(ctx context.Context, rec domain.Record) (string, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := withRetry(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("begin transaction: %w", err)}
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		res, err := tx.ExecContext(ctx, `INSERT INTO records (title, body, source_url, created_at) VALUES (?, ?, ?, ?)`,
			rec.Title, rec.Body, rec.SourceURL, sqlTime(createdAt))
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("insert record: %w", err)}
		}
		if id, err = res.LastInsertId(); err != nil {
			return &criticalError{err: fmt.Errorf("get insert id: %w", err)}
		}

		for _, label := range rec.Labels {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO record_labels (record_id, label) VALUES (?, ?)`,
				id, label); err != nil {
				if isLockError(err) {
					return err // retry
				}
				return &criticalError{err: fmt.Errorf("insert label %q: %w", label, err)}
			}
		}

		if err := tx.Commit(); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("commit record: %w", err)}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// ListRecentURLs returns source URLs of records created since the given time, limited to the label if set
func (r *RecordRepository) ListRecentURLs(ctx context.Context, label string, since time.Time) ([]string, error) {
	qb := sq.Select("DISTINCT r.source_url").From("records r").Where(sq.GtOrEq{"r.created_at": sqlTime(since)})
	if label != "" {
		qb = qb.Join("record_labels l ON l.record_id = r.id").Where(sq.Eq{"l.label": label})
	}
	query, args, err := qb.OrderBy("r.source_url").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent urls query: %w", err)
	}

	urls := []string{}
	if err := r.db.SelectContext(ctx, &urls, query, args...); err != nil {
		return nil, fmt.Errorf("list recent urls: %w", err)
	}
	return urls, nil
}

// SetField sets a named field of the record, replacing the previous value
func (r *RecordRepository) SetField(ctx context.Context, id, field, value string) error {
	recID, err := parseID(id)
	if err != nil {
		return err
	}

	return withRetry(ctx, func() error {
		query := `
			INSERT INTO record_fields (record_id, name, value)
			SELECT id, ?, ? FROM records WHERE id = ?
			ON CONFLICT(record_id, name) DO UPDATE SET value = excluded.value
		`
		res, err := r.db.ExecContext(ctx, query, field, value, recID)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("set field %s: %w", field, err)}
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &criticalError{err: fmt.Errorf("set field %s of %s: %w", field, id, ErrNotFound)}
		}
		return nil
	})
}

// Archive marks the record archived, archiving is idempotent
func (r *RecordRepository) Archive(ctx context.Context, id string) error {
	recID, err := parseID(id)
	if err != nil {
		return err
	}

	return withRetry(ctx, func() error {
		query := `UPDATE records SET archived = 1, archived_at = COALESCE(archived_at, ?) WHERE id = ?`
		res, err := r.db.ExecContext(ctx, query, sqlTime(time.Now()), recID)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("archive record: %w", err)}
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &criticalError{err: fmt.Errorf("archive %s: %w", id, ErrNotFound)}
		}
		return nil
	})
}

// GetRecord returns the record with its labels and fields
func (r *RecordRepository) GetRecord(ctx context.Context, id string) (*StoredRecord, error) {
	recID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var row recordSQL
	err = r.db.GetContext(ctx, &row, `SELECT id, title, body, source_url, archived, created_at, archived_at
		FROM records WHERE id = ?`, recID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}

	res := &StoredRecord{
		ID:       id,
		Archived: row.Archived,
		Fields:   map[string]string{},
		Record: domain.Record{Title: row.Title, Body: row.Body, SourceURL: row.SourceURL,
			CreatedAt: row.CreatedAt.UTC(), Labels: []string{}},
	}
	if row.ArchivedAt.Valid {
		res.ArchivedAt = row.ArchivedAt.Time.UTC()
	}

	if err := r.db.SelectContext(ctx, &res.Record.Labels,
		`SELECT label FROM record_labels WHERE record_id = ? ORDER BY label`, recID); err != nil {
		return nil, fmt.Errorf("get labels of %s: %w", id, err)
	}

	var fields []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}
	if err := r.db.SelectContext(ctx, &fields, `SELECT name, value FROM record_fields WHERE record_id = ?`, recID); err != nil {
		return nil, fmt.Errorf("get fields of %s: %w", id, err)
	}
	for _, f := range fields {
		res.Fields[f.Name] = f.Value
	}
	return res, nil
}

// CountRecords returns the number of stored records
func (r *RecordRepository) CountRecords(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM records`); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func parseID(id string) (int64, error) {
	recID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q: %w", id, ErrNotFound)
	}
	return recID, nil
}
