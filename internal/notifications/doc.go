// Package notifications delivers sync events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The events cover the moments an invigilator actually cares
// about: an artifact permanently failing, a session finishing its sync, and
// the local store becoming unusable.
//
// Extend this package if you need alternative transports; all sync code
// depends only on the simple Service interface.
package notifications
