// Package services defines shared utilities consumed by the sync
// coordinator, the upload orchestrator, and the remote delivery client.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, session IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the delivery taxonomy (storage, offline, transient, permanent).
//
// Use these helpers when wiring new sync logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
