// Package daemon assembles the long-running sync agent: the queue store,
// connectivity monitor, upload orchestrator, sync coordinator, and content
// cache, behind a file lock that enforces a single instance per data
// directory. The IPC layer and CLI drive everything through the Daemon's
// methods.
package daemon
