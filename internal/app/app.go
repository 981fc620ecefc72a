// Package app wires the daemon: config, logging, storage, engine, cycle
// service and notifier, all explicitly constructed and passed down. There is
// no lazy global state; everything is built once in New and torn down in
// Stop.
package app

import (
	"context"
	"fmt"
	"time"

	"planwork/internal/config"
	"planwork/internal/engine"
	"planwork/internal/eventbus"
	"planwork/internal/notifier"
	rtsup "planwork/internal/runtime/supervisor"
	"planwork/internal/services/cycle"
	"planwork/internal/storage"
	logx "planwork/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store  storage.Store
	bus    eventbus.Bus
	engine *engine.Service
	cycle  *cycle.Service
	notify *notifier.Service

	sup *rtsup.Supervisor
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	mgr.SetLogger(log)

	busyTimeout, err := cfg.StorageBusyTimeout()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	eng := engine.New(store, log, bus, engine.Config{MaxRangeDays: cfg.Engine.MaxRangeDays})
	cyc := cycle.New(cycleConfig(cfg), eng, log)

	ntf, err := notifier.New(notifyConfig(cfg), log, bus)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		store:  store,
		bus:    bus,
		engine: eng,
		cycle:  cyc,
		notify: ntf,
	}, nil
}

func (a *App) Engine() *engine.Service { return a.engine }
func (a *App) Store() storage.Store    { return a.store }

// Start launches the background services and the config watch.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.notify.Start(a.sup.Context())
	a.cycle.Start(a.sup.Context())

	a.sup.Go("config-watch", func(ctx context.Context) error {
		err := a.cfgMgr.Watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	updates := a.cfgMgr.Subscribe(4)
	a.sup.Go("config-apply", func(ctx context.Context) error {
		defer a.cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.logSvc.Apply(loggingConfig(cfg))
				a.cycle.Apply(cycleConfig(cfg))
				a.log.Info("runtime config applied")
			}
		}
	})

	a.log.Info("planwork started")
	return nil
}

// RunCycleOnce runs a single generation cycle inline (the -once mode used
// with external schedulers like systemd timers).
func (a *App) RunCycleOnce(ctx context.Context) {
	a.cycle.RunOnce(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.cycle.Stop(stopCtx)
	a.notify.Stop(stopCtx)
	if a.sup != nil {
		_ = a.sup.Stop(stopCtx)
	}
	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func cycleConfig(cfg *config.Config) cycle.Config {
	return cycle.Config{
		Enabled:     cfg.Cycle.Enabled,
		Schedule:    cfg.Cycle.Schedule,
		HorizonDays: cfg.Cycle.HorizonDays,
		Timezone:    cfg.Cycle.Timezone,
	}
}

func notifyConfig(cfg *config.Config) notifier.Config {
	if cfg.Notify == nil {
		return notifier.Config{}
	}
	return notifier.Config{
		Enabled:    cfg.Notify.Enabled,
		Token:      cfg.Notify.Token,
		ChatID:     cfg.Notify.ChatID,
		RatePerSec: cfg.Notify.RatePerSec,
		QueueSize:  cfg.Notify.QueueSize,
	}
}
