// Package uploader drains the durable queue toward the remote exam
// service. A single scheduler goroutine decides which items are due, claims
// them in the store, and hands them to a bounded set of workers; retry
// timing is derived purely from each item's persisted attempt counter and
// last attempt time, so a restart never loses its place in the backoff
// ladder.
package uploader
