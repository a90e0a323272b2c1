package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newQueueCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the local upload queue",
	}

	cmd.AddCommand(newQueueListCommand(cmdCtx))
	cmd.AddCommand(newQueueRetryCommand(cmdCtx))
	cmd.AddCommand(newQueueRemoveCommand(cmdCtx))
	cmd.AddCommand(newQueueClearCommand(cmdCtx))
	cmd.AddCommand(newQueueHealthCommand(cmdCtx))
	cmd.AddCommand(newQueueDBHealthCommand(cmdCtx))

	return cmd
}

func newQueueListCommand(cmdCtx *commandContext) *cobra.Command {
	var statusFilter []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(statusFilter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderQueueTable(resp.Items))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (pending, uploading, completed, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit queue entries as JSON")
	return cmd
}

func renderQueueTable(items []ipc.QueueItem) string {
	columns := []tableColumn{
		{header: "ID"},
		{header: "Session"},
		{header: "Kind"},
		{header: "Status"},
		{header: "Retries", alignRight: true},
		{header: "Size", alignRight: true},
		{header: "Last Error", widthMax: 48},
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.SessionID,
			statusLabel(item.Kind),
			statusLabel(item.Status),
			fmt.Sprintf("%d", item.RetryCount),
			formatPayloadSize(item.PayloadBytes),
			truncateError(item.LastError),
		})
	}
	return renderTable(columns, rows)
}

func formatPayloadSize(size int) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func truncateError(message string) string {
	message = strings.TrimSpace(message)
	if len(message) > 48 {
		return message[:45] + "..."
	}
	return message
}

func newQueueRetryCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue failed artifacts (all failed items when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRetry(args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d item(s).\n", resp.Updated)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Remove specific artifacts from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRemove(args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s).\n", resp.Removed)
				return nil
			})
		},
	}
}

func newQueueClearCommand(cmdCtx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [session-id]",
		Short: "Clear one session's artifacts, or everything with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			}
			if sessionID == "" && !all {
				return fmt.Errorf("queue clear requires a session id or --all")
			}
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear(sessionID, all)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s).\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clear every queued artifact")
	return cmd
}

func newQueueHealthCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show queue health counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueHealth()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				lines := renderSectionHeader("Queue Health", colorize)
				lines = append(lines,
					renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", resp.Total), colorize),
					renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d", resp.Pending), colorize),
					renderStatusLine("Uploading", statusInfo, fmt.Sprintf("%d", resp.Uploading), colorize),
					renderStatusLine("Completed", statusOK, fmt.Sprintf("%d", resp.Completed), colorize),
					renderStatusLine("Failed", queueCountKind(resp.Failed, statusOK), fmt.Sprintf("%d", resp.Failed), colorize))
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit health counters as JSON")
	return cmd
}

func newQueueDBHealthCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "db-health",
		Short: "Run database diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDatabaseHealth(resp, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit diagnostics as JSON")
	return cmd
}

func renderDatabaseHealth(health *ipc.DatabaseHealthResponse, colorize bool) string {
	lines := renderSectionHeader("Database Health", colorize)
	lines = append(lines, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
	lines = append(lines, renderCheckLine("Exists", health.DatabaseExists, colorize))
	lines = append(lines, renderCheckLine("Readable", health.DatabaseReadable, colorize))
	lines = append(lines, renderCheckLine("Schema present", health.TableExists, colorize))
	lines = append(lines, renderCheckLine("Integrity", health.IntegrityCheck, colorize))
	lines = append(lines, renderStatusLine("Items", statusInfo, fmt.Sprintf("%d", health.TotalItems), colorize))
	if health.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, health.Error, colorize))
	}
	return strings.Join(lines, "\n")
}

func renderCheckLine(label string, ok bool, colorize bool) string {
	kind := statusOK
	if !ok {
		kind = statusError
	}
	return renderStatusLine(label, kind, yesNo(ok), colorize)
}
