// Package queue persists exam artifacts awaiting delivery in a local SQLite
// database. The store is the single source of truth for item status: the
// sync coordinator inserts items, the upload orchestrator drives them
// through pending -> uploading -> completed/failed, and the progress
// aggregator reads counts straight from the tables. A second table backs
// the TTL-bounded read-through content cache.
package queue
