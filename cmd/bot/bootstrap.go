package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"score-trader/internal/alerts"
	"score-trader/internal/book"
	"score-trader/internal/config"
	"score-trader/internal/engine"
	"score-trader/internal/indicators"
	"score-trader/internal/interfaces"
	"score-trader/internal/logger"
	"score-trader/internal/marketdata"
	"score-trader/internal/report"
	"score-trader/internal/risk"
	"score-trader/internal/scheduler"
	"score-trader/internal/sentiment"
	"score-trader/internal/server"
	"score-trader/internal/store"
	"score-trader/internal/txlog"
)

type app struct {
	cfg    *config.Config
	book   *book.Book
	engine *engine.Engine
	server *server.Server
	ticker *marketdata.BinanceTicker
	sched  *scheduler.Scheduler
	store  *store.Postgres
}

// bootstrap wires the full system: config, logging, persistence, market
// data, risk and the scan engine. The Postgres ledger is optional; with
// no database URL the book lives in memory and the transaction log is
// the only durable record.
func bootstrap(ctx context.Context, configPath string) (*app, error) {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	logger.Info(ctx, "Configuration loaded",
		"mode", cfg.Mode,
		"stocks", len(cfg.Universe.Stocks),
		"crypto", len(cfg.Universe.Crypto),
		"cycle_minutes", cfg.CycleMinutes,
	)

	tl := txlog.New(cfg.TxLog.Dir)
	if err := tl.CompressOlder(cfg.TxLog.CompressAfterD); err != nil {
		logger.Warn(ctx, "Failed to compress old transaction logs", "error", err)
	}

	b := book.New(book.Limits{
		MaxShortPositions: cfg.Risk.MaxShortPositions,
		MaxShortNotional:  cfg.Risk.ShortExposureFrac * cfg.Risk.CryptoCapital,
	})
	am := alerts.NewManager()

	var pg *store.Postgres
	if cfg.Database.URL != "" {
		pg, err = store.NewPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := restoreState(ctx, pg, b, am); err != nil {
			pg.Close()
			return nil, err
		}
	} else {
		logger.Warn(ctx, "No database configured, positions will not survive restarts")
	}

	rm := risk.NewManager(cfg, b, tl, ledgerOrNil(pg), am)

	gateway := marketdata.NewYahooGateway()
	budget := marketdata.NewBudget(cfg.Scan.PerMinute, cfg.Scan.PerHour)
	sched := scheduler.New(cfg, gateway, budget)

	ticker := marketdata.NewBinanceTicker()
	if len(cfg.Universe.Crypto) > 0 {
		if err := ticker.Start(ctx, cfg.Universe.Crypto); err != nil {
			logger.Warn(ctx, "Streaming ticker unavailable, falling back to polled quotes", "error", err)
			ticker = nil
		}
	} else {
		ticker = nil
	}

	eng := engine.New(engine.Deps{
		Config:    cfg,
		Book:      b,
		Risk:      rm,
		Scheduler: sched,
		Tracker:   indicators.NewTracker(),
		Sentiment: sentiment.NewService(cfg.Sentiment.Enabled, cfg.Sentiment.Sources...),
		Ticker:    tickerOrNil(ticker),
		Alerts:    am,
		TxLog:     tl,
		Ledger:    ledgerOrNil(pg),
	})

	srv := server.New(cfg.Server.Addr, eng, am)
	logger.Info(ctx, "HTTP server configured", "addr", cfg.Server.Addr)

	return &app{
		cfg:    cfg,
		book:   b,
		engine: eng,
		server: srv,
		ticker: ticker,
		sched:  sched,
		store:  pg,
	}, nil
}

// restoreState rehydrates the book and alert history from the ledger so a
// restart picks up exactly where the previous process stopped.
func restoreState(ctx context.Context, pg *store.Postgres, b *book.Book, am *alerts.Manager) error {
	open, closed, history, err := pg.LoadState(ctx, 500, 200)
	if err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	b.Restore(open, closed)
	am.Restore(history)

	logger.Info(ctx, "State restored from database",
		"open_positions", len(open),
		"closed_positions", len(closed),
		"alerts", len(history),
	)
	return nil
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "HTTP server shutdown failed", "error", err)
	}
	a.sched.Stop()

	if path, err := report.WriteDailyCSV(a.cfg.TxLog.Dir, a.book.ListClosed(), time.Now()); err != nil {
		logger.Warn(ctx, "Daily report write failed", "error", err)
	} else if path != "" {
		logger.Info(ctx, "Daily report written", "file", path)
	}

	if a.ticker != nil {
		a.ticker.Stop(ctx)
	}
	if a.store != nil {
		a.store.Close()
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "Logger shutdown failed", "error", err)
	}
}

// ledgerOrNil avoids a non-nil interface wrapping a nil *Postgres.
func ledgerOrNil(pg *store.Postgres) interfaces.Ledger {
	if pg == nil {
		return nil
	}
	return pg
}

func tickerOrNil(t *marketdata.BinanceTicker) interfaces.TickerCache {
	if t == nil {
		return nil
	}
	return t
}
