package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"PickLedger/internal/closer"
	"PickLedger/internal/config"
	"PickLedger/internal/ledger"
	"PickLedger/internal/performance"
	"PickLedger/internal/quote"
	"PickLedger/internal/recorder"
	"PickLedger/internal/refresher"
	"PickLedger/internal/strategy"

	"github.com/rs/zerolog/log"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg        *config.Config
	loc        *time.Location
	store      *ledger.SQLiteStore
	recorder   *recorder.Recorder
	refresher  *refresher.Refresher
	calculator *performance.Calculator
	closer     *closer.Closer
	stops      *strategy.Manager
	autoCloser *strategy.AutoCloser
}

func newApp(cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := ledger.NewSQLiteStore(cfg.Database.SQLitePath, loc)
	if err != nil {
		return nil, err
	}

	stops, err := strategy.NewManager(cfg.Strategy.StateFile, strategy.StopConfig{
		StopProfitPct:  cfg.Strategy.StopProfitPct,
		StopLossPct:    cfg.Strategy.StopLossPct,
		MaxHoldingDays: cfg.Strategy.MaxHoldingDays,
		AutoClose:      *cfg.Strategy.AutoClose,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init stop config: %w", err)
	}

	src, err := newQuoteSource(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	ref := refresher.New(store, src)
	ref.Concurrency = cfg.Quote.Concurrency
	ref.Timeout = cfg.Quote.Timeout

	cl := closer.New(store)
	return &app{
		cfg:        cfg,
		loc:        loc,
		store:      store,
		recorder:   recorder.NewRecorder(store),
		refresher:  ref,
		calculator: performance.NewCalculator(store, loc),
		closer:     cl,
		stops:      stops,
		autoCloser: strategy.NewAutoCloser(store, cl, stops),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

func newQuoteSource(cfg *config.Config) (quote.Source, error) {
	var src quote.Source
	switch cfg.Quote.Source {
	case config.SourceYahoo:
		src = quote.NewYahooSource(cfg.Proxy)
	case config.SourceREST:
		src = quote.NewRESTSource(cfg.Quote.BaseURL, cfg.Quote.APIKey, cfg.Proxy)
	case config.SourceMock:
		src = quote.NewMockSource(nil)
	default:
		return nil, fmt.Errorf("unknown quote source %q", cfg.Quote.Source)
	}
	guard := quote.DefaultGuardConfig()
	guard.RPS = cfg.Quote.RPS
	guard.Burst = cfg.Quote.Burst
	log.Info().Str("source", src.Name()).Float64("rps", guard.RPS).Msg("quote source ready")
	return quote.NewGuarded(src, guard), nil
}
