// Package config loads, validates, and normalizes Vigil's TOML
// configuration. Values resolve in order: built-in defaults, the config
// file, then environment overrides for credentials.
package config
