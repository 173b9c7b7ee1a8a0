package main

import (
	"fmt"

	"github.com/fyrsmithlabs/membankd/internal/audit"
	"github.com/fyrsmithlabs/membankd/internal/config"
	"github.com/fyrsmithlabs/membankd/internal/executor"
	"github.com/fyrsmithlabs/membankd/internal/logging"
	"github.com/fyrsmithlabs/membankd/internal/membank"
	"github.com/fyrsmithlabs/membankd/internal/reconcile"
	"github.com/fyrsmithlabs/membankd/internal/toolexec"
	"github.com/fyrsmithlabs/membankd/internal/tracker"
)

// app wires the shared services behind every subcommand. Commands that
// only touch the local bank build it without a tracker.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	trail   *audit.Trail
	store   *membank.Store
	client  tracker.Client
	engine  *reconcile.Engine
	gate    *executor.Gate
	exec    *executor.Executor
	adapter *toolexec.Adapter
}

func newApp(needTracker bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zl := logger.Underlying()

	trail, err := audit.NewTrail(cfg.Bank.AuditPath, zl)
	if err != nil {
		return nil, fmt.Errorf("opening audit trail: %w", err)
	}
	store, err := membank.NewStore(cfg.Bank.Dir, trail, zl)
	if err != nil {
		return nil, fmt.Errorf("opening memory bank: %w", err)
	}
	gate, err := executor.NewGate(trail, zl)
	if err != nil {
		return nil, err
	}
	adapter, err := toolexec.NewAdapter(cfg.Tools, trail, zl)
	if err != nil {
		return nil, fmt.Errorf("building tool adapter: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		trail:   trail,
		store:   store,
		gate:    gate,
		adapter: adapter,
	}
	if !needTracker {
		return a, nil
	}

	client, err := tracker.NewGitHubClient(cfg.Tracker, zl)
	if err != nil {
		return nil, fmt.Errorf("building tracker client: %w", err)
	}
	engineCfg := reconcile.Config{
		Repo:              cfg.Tracker.Repo,
		StatusField:       cfg.Tracker.StatusField,
		SnapshotWorkers:   cfg.Tracker.SnapshotWorkers,
		ProjectConfigured: cfg.Tracker.ProjectURL != "",
	}
	engine, err := reconcile.NewEngine(client, store, trail, engineCfg, zl)
	if err != nil {
		return nil, err
	}
	exec, err := executor.NewExecutor(gate, client, store, trail, cfg.Tracker.Repo, zl)
	if err != nil {
		return nil, err
	}

	a.client = client
	a.engine = engine
	a.exec = exec
	return a, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
