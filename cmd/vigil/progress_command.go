package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newProgressCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "progress [session-id]",
		Short: "Show delivery progress, optionally for one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			}
			return cmdCtx.withClient(func(client *ipc.Client) error {
				snap, err := client.Progress(sessionID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, snap)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderProgress(snap, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit progress as JSON")
	return cmd
}

func renderProgress(snap *ipc.ProgressResponse, colorize bool) string {
	title := "Delivery Progress"
	if snap.SessionID != "" {
		title = fmt.Sprintf("Delivery Progress: %s", snap.SessionID)
	}
	lines := renderSectionHeader(title, colorize)

	syncKind := statusWarn
	if snap.FullySynced {
		syncKind = statusOK
	}
	lines = append(lines, renderStatusLine("Synced", syncKind, yesNo(snap.FullySynced), colorize))
	lines = append(lines, renderStatusLine("Complete", statusInfo, fmt.Sprintf("%.1f%% (%d of %d)", snap.PercentComplete, snap.Completed, snap.Total), colorize))
	if snap.Pending > 0 || snap.Uploading > 0 {
		lines = append(lines, renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d pending, %d uploading", snap.Pending, snap.Uploading), colorize))
	}
	if snap.Failed > 0 {
		lines = append(lines, renderStatusLine("Awaiting retry", statusWarn, fmt.Sprintf("%d", snap.Failed), colorize))
	}
	if snap.TerminalFailed > 0 {
		lines = append(lines, renderStatusLine("Terminal failures", statusError, fmt.Sprintf("%d", snap.TerminalFailed), colorize))
	}
	if snap.LastCompletedAt != nil {
		lines = append(lines, renderStatusLine("Last delivery", statusInfo, snap.LastCompletedAt.Local().Format(time.RFC3339), colorize))
	}

	return strings.Join(lines, "\n")
}
