package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateUploader(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vigil/config.toml"
		}
		return fmt.Errorf("remote.base_url is required. Edit %s (create with 'vigil config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("remote.base_url %q is not a valid URL", c.Remote.BaseURL)
	}
	return nil
}

func (c *Config) validateUploader() error {
	if c.Uploader.MaxRetries > 20 {
		return errors.New("uploader.max_retries must be 20 or fewer")
	}
	if c.Uploader.MaxConcurrent > 32 {
		return errors.New("uploader.max_concurrent must be 32 or fewer")
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	if probe := strings.TrimSpace(c.Connectivity.ProbeURL); probe != "" {
		parsed, err := url.Parse(probe)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("connectivity.probe_url %q is not a valid URL", probe)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
