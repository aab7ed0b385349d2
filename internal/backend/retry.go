package backend

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryBusy retries fn with exponential backoff when the backend reports a
// transient "database is locked" / busy condition. The teacher's sqlite
// backend serializes IMMEDIATE-transaction starts the same way (see
// internal/storage/sqlite/queries.go's beginImmediateWithRetry comment);
// here the retry is generalized across both dialect adapters since the
// dolt-backed connection can report the analogous "Lock wait timeout"
// condition under contention.
func RetryBusy(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isBusyErr(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "lock wait timeout")
}
