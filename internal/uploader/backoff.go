package uploader

import (
	"math/rand"
	"time"

	"vigil/internal/queue"
)

// backoffDelay computes the wait before attempt retryCount+1: the base delay
// doubled per prior failure, plus a uniform jitter of up to one base delay
// so a fleet of clients recovering together does not stampede the remote.
func backoffDelay(base time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if retryCount < 0 {
		retryCount = 0
	}
	// Cap the shift; beyond this the ceiling has long since parked the item.
	if retryCount > 16 {
		retryCount = 16
	}
	delay := base << uint(retryCount)
	jitter := time.Duration(rand.Int63n(int64(base)))
	return delay + jitter
}

// nextAttemptAt returns the earliest moment an item may be retried. Items
// that never attempted are due immediately.
func nextAttemptAt(item *queue.Item, base time.Duration) time.Time {
	if item.LastAttemptAt == nil || item.RetryCount == 0 {
		return time.Time{}
	}
	return item.LastAttemptAt.Add(backoffDelay(base, item.RetryCount))
}

// eligible reports whether an item is due for an attempt at the given time.
func eligible(item *queue.Item, base time.Duration, now time.Time) bool {
	if item.Status != queue.StatusPending {
		return false
	}
	return !nextAttemptAt(item, base).After(now)
}
