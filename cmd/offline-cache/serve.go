package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the offline cache proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := NewCompositionRoot(ResolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			// Ensure cleanup on exit
			defer func() {
				if err := root.Cleanup(); err != nil {
					root.Logger.Error("Failed to cleanup resources", zap.Error(err))
				}
			}()

			return serve(root)
		},
	}
}

func serve(root *CompositionRoot) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.HTTPServer.Start(); err != nil {
		return err
	}

	// Requests pass straight through to the origin until a version is active
	cfg := root.Config
	if err := root.Manager.Register(ctx, cfg.Version, cfg.Precache.Manifest); err != nil {
		root.Logger.Warn("Initial registration failed, retrying on next version check",
			zap.String("version", cfg.Version),
			zap.Error(err))
	}

	if err := root.Updater.Start(); err != nil {
		root.Logger.Warn("Version updater not started", zap.Error(err))
	}

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	root.Logger.Info("Shutting down server...")

	root.Updater.Stop()

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := root.HTTPServer.Stop(shutdownCtx); err != nil {
		root.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	root.Logger.Info("Server exited")
	return nil
}
