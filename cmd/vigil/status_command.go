package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(status *ipc.StatusResponse, colorize bool) string {
	lines := renderSectionHeader("Vigil Status", colorize)

	daemonKind := statusOK
	if !status.Running {
		daemonKind = statusError
	}
	lines = append(lines, renderStatusLine("Daemon", daemonKind, fmt.Sprintf("pid %d", status.PID), colorize))

	connKind := statusOK
	connText := "online"
	if !status.Online {
		connKind = statusWarn
		connText = "offline"
	}
	lines = append(lines, renderStatusLine("Connectivity", connKind, connText, colorize))
	lines = append(lines, renderStatusLine("Queue DB", statusInfo, status.QueueDBPath, colorize))
	lines = append(lines, "")

	lines = append(lines, renderStatusLine("Pending", queueCountKind(status.Pending, statusInfo), fmt.Sprintf("%d", status.Pending), colorize))
	lines = append(lines, renderStatusLine("Uploading", statusInfo, fmt.Sprintf("%d", status.Uploading), colorize))
	lines = append(lines, renderStatusLine("Completed", statusOK, fmt.Sprintf("%d", status.Completed), colorize))
	lines = append(lines, renderStatusLine("Failed", queueCountKind(status.Failed, statusOK), fmt.Sprintf("%d", status.Failed), colorize))
	if status.TerminalFailed > 0 {
		lines = append(lines, renderStatusLine("Terminal failures", statusError, fmt.Sprintf("%d", status.TerminalFailed), colorize))
	}
	lines = append(lines, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", status.Total), colorize))

	return strings.Join(lines, "\n")
}

func queueCountKind(count int, whenZero statusKind) statusKind {
	if count == 0 {
		return whenZero
	}
	return statusWarn
}
