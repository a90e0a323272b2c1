package config

const (
	defaultDataDir            = "~/.local/share/vigil"
	defaultLogDir             = "~/.local/share/vigil/logs"
	defaultSocketPath         = "~/.local/share/vigil/vigild.sock"
	defaultRemoteBaseURL      = ""
	defaultNegotiateTimeout   = 15
	defaultTransferTimeout    = 120
	defaultConfirmTimeout     = 15
	defaultMaxRetries         = 5
	defaultBaseDelaySeconds   = 2
	defaultMaxConcurrent      = 3
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultRetentionHours     = 24
	defaultProbeInterval      = 15
	defaultProbeTimeout       = 5
	defaultDebounceSeconds    = 3
	defaultCacheTTLSeconds    = 300
	defaultCacheSweepInterval = 60
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Remote: Remote{
			BaseURL:          defaultRemoteBaseURL,
			NegotiateTimeout: defaultNegotiateTimeout,
			TransferTimeout:  defaultTransferTimeout,
			ConfirmTimeout:   defaultConfirmTimeout,
		},
		Uploader: Uploader{
			MaxRetries:         defaultMaxRetries,
			BaseDelaySeconds:   defaultBaseDelaySeconds,
			MaxConcurrent:      defaultMaxConcurrent,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			RetentionHours:     defaultRetentionHours,
		},
		Connectivity: Connectivity{
			ProbeInterval:   defaultProbeInterval,
			ProbeTimeout:    defaultProbeTimeout,
			DebounceSeconds: defaultDebounceSeconds,
			NetlinkEvents:   true,
		},
		Cache: Cache{
			DefaultTTLSeconds: defaultCacheTTLSeconds,
			SweepInterval:     defaultCacheSweepInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Errors:         true,
			Sessions:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
