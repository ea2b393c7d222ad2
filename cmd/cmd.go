// Package cmd wires the marvin-memory CLI: configuration, logging, the
// database pool and fallback queue, and the memory components behind each
// subcommand.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/realerich/marvin-memory/internal/config"
	"github.com/realerich/marvin-memory/internal/database"
	"github.com/realerich/marvin-memory/internal/log"
	"github.com/realerich/marvin-memory/internal/memory"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        *config.Config
	logger     log.Logger
	pool       *database.Pool
	queue      *database.FallbackQueue
	store      *memory.Store
	tracker    *memory.Tracker
	retriever  *memory.Retriever
	linker     *memory.Linker
	summarizer *memory.Summarizer
	maintainer *memory.Maintainer
}

// newApp loads configuration and wires every component. The backend does
// not need to be reachable; degraded commands queue their writes.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{Level: logLevel()})

	pool, err := database.NewPool(ctx, database.PoolConfig{
		ConnString:        cfg.PostgresConnectionString(),
		MinConns:          int32(cfg.PoolMinConns),
		MaxConns:          int32(cfg.PoolMaxConns),
		AcquireTimeout:    cfg.AcquireTimeout,
		AcquireRetries:    uint(cfg.AcquireRetries),
		AcquireRetryDelay: cfg.AcquireRetryDelay,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	queue, err := database.NewFallbackQueue(cfg.QueuePath, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating fallback queue: %w", err)
	}

	store := memory.NewStore(pool, queue, logger)
	tracker := memory.NewTracker(store, logger)

	retriever, err := memory.NewRetriever(store, tracker, memory.RetrieverConfig{
		SearchTimeout:   cfg.SearchTimeout,
		StrategyTimeout: cfg.StrategyTimeout,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	linker := memory.NewLinker(store, logger)
	summarizer := memory.NewSummarizer(store, cfg.PeopleNames, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		queue:      queue,
		store:      store,
		tracker:    tracker,
		retriever:  retriever,
		linker:     linker,
		summarizer: summarizer,
		maintainer: memory.NewMaintainer(store, linker, summarizer, pool, cfg.CleanupDays, logger),
	}, nil
}

func (a *app) close() {
	a.store.Close()
	a.retriever.Close()
	a.pool.Close()
}

// verbose is set by the root --verbose flag.
var verbose bool

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// withApp wires the components, runs fn, and tears everything down.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
