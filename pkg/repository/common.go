package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
)

// errCritical marks errors which are not retried
var errCritical = errors.New("critical database error")

// criticalError wraps an error to signal repeater to stop retrying
type criticalError struct {
	err error
}

func (e *criticalError) Error() string {
	return e.err.Error()
}

func (e *criticalError) Unwrap() error {
	return e.err
}

// Is makes criticalError match errCritical, repeater stops on it
func (e *criticalError) Is(target error) bool {
	return target == errCritical
}

// isLockError checks if an error is a SQLite lock/busy error
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}

// withRetry runs fn, retrying on lock errors. Any other error returned by fn should be wrapped
// with criticalError to stop retries.
func withRetry(ctx context.Context, fn func() error) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	return retrier.Do(ctx, fn, errCritical)
}

// sqlTime formats time for DATETIME columns, fixed width keeps text comparison correct
func sqlTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
