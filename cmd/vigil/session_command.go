package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newSessionCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Session-scoped queue operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <session-id>",
		Short: "Remove every queued artifact for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear(args[0], false)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s) for session %s.\n", resp.Removed, args[0])
				return nil
			})
		},
	})

	return cmd
}
