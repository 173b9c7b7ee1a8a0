package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/httpapi"
	"github.com/fyrsmithlabs/membankd/internal/mcp"
	"github.com/fyrsmithlabs/membankd/internal/membank"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory bank over MCP on stdio",
	Long: `Run the MCP server on stdio so an agent can read the memory bank,
plan and apply syncs, and invoke side-effect tools. With http.enabled
the health and metrics endpoints are served as well; with bank.watch
external edits to the bank are logged.

Examples:
  membankd serve
  MEMBANK_HTTP_ENABLED=true membankd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	zl := a.logger.Underlying()

	server, err := mcp.NewServer(
		&mcp.Config{Name: "membankd", Version: version, Logger: zl},
		a.store, a.engine, a.exec, a.client, a.adapter,
	)
	if err != nil {
		return fmt.Errorf("building MCP server: %w", err)
	}

	if a.cfg.Bank.Watch {
		watcher, err := membank.NewWatcher(a.store, zl)
		if err != nil {
			return fmt.Errorf("starting bank watcher: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		if a.engine != nil {
			a.engine.WatchChanges(watcher)
		}
	}

	if a.cfg.HTTP.Enabled {
		httpServer, err := httpapi.NewServer(a.cfg.HTTP, zl)
		if err != nil {
			return fmt.Errorf("building http server: %w", err)
		}
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error("http server failed", zap.Error(err))
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				zl.Warn("http shutdown failed", zap.Error(err))
			}
		}()
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
