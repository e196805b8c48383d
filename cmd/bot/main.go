package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"score-trader/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap(ctx, *configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Startup failed", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "HTTP server failed", err)
			cancel()
		}
	}()

	go func() {
		if err := app.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorWithErr(ctx, "Engine stopped", err)
		}
	}()

	select {
	case sig := <-sigc:
		logger.Info(ctx, "Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	app.shutdown(shutdownCtx)
}
