package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/config"
)

func newConfigCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and bootstrap configuration",
	}

	cmd.AddCommand(newConfigShowCommand(cmdCtx))
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigPathCommand())

	return cmd
}

func newConfigShowCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, cfg)
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			lines := renderSectionHeader("Configuration", colorize)
			lines = append(lines,
				renderStatusLine("Remote", statusInfo, cfg.Remote.BaseURL, colorize),
				renderStatusLine("Data dir", statusInfo, cfg.Paths.DataDir, colorize),
				renderStatusLine("Log dir", statusInfo, cfg.Paths.LogDir, colorize),
				renderStatusLine("Socket", statusInfo, cfg.Paths.SocketPath, colorize),
				renderStatusLine("Queue DB", statusInfo, cfg.QueueDatabasePath(), colorize),
				renderStatusLine("Max retries", statusInfo, fmt.Sprintf("%d", cfg.Uploader.MaxRetries), colorize),
				renderStatusLine("Base delay", statusInfo, fmt.Sprintf("%ds", cfg.Uploader.BaseDelaySeconds), colorize),
				renderStatusLine("Concurrency", statusInfo, fmt.Sprintf("%d", cfg.Uploader.MaxConcurrent), colorize),
				renderStatusLine("Probe URL", statusInfo, cfg.Connectivity.ProbeURL, colorize),
				renderStatusLine("Notifications", statusInfo, notificationSummary(cfg), colorize))
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit configuration as JSON")
	return cmd
}

func notificationSummary(cfg *config.Config) string {
	if cfg.Notifications.NtfyTopic == "" {
		return "disabled"
	}
	return fmt.Sprintf("ntfy (errors: %s, sessions: %s)",
		yesNo(cfg.Notifications.Errors), yesNo(cfg.Notifications.Sessions))
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a sample configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}
			if !force {
				if _, err := os.Stat(expanded); err == nil {
					return fmt.Errorf("config file already exists at %s (use --force to overwrite)", expanded)
				}
			}
			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", expanded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the default configuration file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
