package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/vizflow/internal/api"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
	"github.com/gyaneshwarpardhi/vizflow/internal/view"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a live view over HTTP",
	Long: `Compiles the spec, starts the propagation worker and exposes the stimulus,
scene and spec endpoints. The spec file is watched and hot-reloaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("spec")
		level, _ := cmd.Flags().GetString("log-level")
		addr, _ := cmd.Flags().GetString("addr")
		watch, _ := cmd.Flags().GetBool("watch")
		return runServe(path, level, addr, watch)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("watch", true, "Hot-reload the spec file on change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(path, level, addr string, watch bool) error {
	// ── Load spec ─────────────────────────────────────────────────────────────
	loader, err := spec.NewLoader(path, slog.Default())
	if err != nil {
		return err
	}
	def := loader.Spec()
	if level == "" {
		level = def.Engine.LogLevel
	}
	logger := newLogger(level)

	// ── View ──────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := view.New(ctx, def, view.WithLogger(logger))
	if err != nil {
		return err
	}
	snap, err := v.Snapshot(ctx)
	if err != nil {
		return err
	}
	logger.Info("view compiled", "spec", def.Name, "items", snap.Count())

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(next *spec.Spec) {
		swapCtx, swapCancel := context.WithTimeout(ctx, 30*time.Second)
		defer swapCancel()
		if err := v.Swap(swapCtx, next); err != nil {
			logger.Warn("hot-reload skipped: model swap failed", "err", err)
		}
	})
	if watch {
		stopWatch, err := loader.Watch()
		if err != nil {
			logger.Warn("spec watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.New(v, loader, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-quit:
		logger.Info("shutting down")
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	v.Shutdown()
	cancel()
	logger.Info("goodbye")
	return nil
}
