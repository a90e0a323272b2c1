package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"vigil/internal/daemon"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/queue"
)

func newDaemonCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the vigil sync daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, cmdCtx)
		},
	}
}

func runDaemon(cmd *cobra.Command, cmdCtx *commandContext) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays,
		filepath.Join(cfg.Paths.LogDir, "vigil.log"))

	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		d.Close()
		return err
	}

	server, err := ipc.NewServer(ctx, cmdCtx.socketPath(), d, logger)
	if err != nil {
		d.Stop()
		d.Close()
		return err
	}
	server.Serve()

	logger.Info("daemon started",
		logging.String("socket", cmdCtx.socketPath()),
		logging.String("queue_db", cfg.QueueDatabasePath()),
		logging.Int("pid", os.Getpid()))
	fmt.Fprintf(cmd.OutOrStdout(), "vigil daemon running (pid %d, socket %s)\n", os.Getpid(), cmdCtx.socketPath())

	<-ctx.Done()

	logger.Info("daemon shutting down")
	server.Close()
	d.Stop()
	if err := d.Close(); err != nil {
		logger.Warn("daemon close failed", logging.Error(err))
	}
	return nil
}
