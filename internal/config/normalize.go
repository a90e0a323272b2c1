package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRemote()
	c.normalizeConnectivity()
	c.normalizeUploader()
	c.normalizeCache()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	c.Remote.AuthToken = strings.TrimSpace(c.Remote.AuthToken)
	if c.Remote.AuthToken == "" {
		if value, ok := os.LookupEnv("VIGIL_AUTH_TOKEN"); ok {
			c.Remote.AuthToken = strings.TrimSpace(value)
		}
	}
	if c.Remote.NegotiateTimeout <= 0 {
		c.Remote.NegotiateTimeout = defaultNegotiateTimeout
	}
	if c.Remote.TransferTimeout <= 0 {
		c.Remote.TransferTimeout = defaultTransferTimeout
	}
	if c.Remote.ConfirmTimeout <= 0 {
		c.Remote.ConfirmTimeout = defaultConfirmTimeout
	}
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.ProbeURL = strings.TrimSpace(c.Connectivity.ProbeURL)
	if c.Connectivity.ProbeURL == "" && c.Remote.BaseURL != "" {
		c.Connectivity.ProbeURL = c.Remote.BaseURL + "/v1/ping"
	}
	if c.Connectivity.ProbeInterval <= 0 {
		c.Connectivity.ProbeInterval = defaultProbeInterval
	}
	if c.Connectivity.ProbeTimeout <= 0 {
		c.Connectivity.ProbeTimeout = defaultProbeTimeout
	}
	if c.Connectivity.DebounceSeconds < 0 {
		c.Connectivity.DebounceSeconds = defaultDebounceSeconds
	}
}

func (c *Config) normalizeUploader() {
	if c.Uploader.MaxRetries <= 0 {
		c.Uploader.MaxRetries = defaultMaxRetries
	}
	if c.Uploader.BaseDelaySeconds <= 0 {
		c.Uploader.BaseDelaySeconds = defaultBaseDelaySeconds
	}
	if c.Uploader.MaxConcurrent <= 0 {
		c.Uploader.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Uploader.PollInterval <= 0 {
		c.Uploader.PollInterval = defaultPollInterval
	}
	if c.Uploader.ErrorRetryInterval <= 0 {
		c.Uploader.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Uploader.RetentionHours <= 0 {
		c.Uploader.RetentionHours = defaultRetentionHours
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.DefaultTTLSeconds <= 0 {
		c.Cache.DefaultTTLSeconds = defaultCacheTTLSeconds
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = defaultCacheSweepInterval
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
