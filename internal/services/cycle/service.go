// Package cycle invokes the engine's periodic work (automatic triggers and
// recurring generation) on a wall-clock schedule.
//
// "Periodic" here means an external trigger, not an engine-internal loop:
// the engine's operations stay short-lived and stateless, this service is
// just the invoker. It can equally be replaced by systemd timers or cron
// calling the daemon with -once.
package cycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"planwork/internal/dateutil"
	"planwork/internal/engine"
	logx "planwork/pkg/logx"
)

// Config controls the cycle service.
type Config struct {
	Enabled bool
	// Schedule is a standard crontab spec for the cycle itself
	// (robfig/cron semantics, descriptors allowed). Default "@daily".
	Schedule string
	// HorizonDays is how far ahead recurring generation looks each cycle.
	HorizonDays int
	// Timezone is the IANA zone the cron spec is evaluated in. Dates handed
	// to the engine stay whole-day UTC regardless.
	Timezone string
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	log    logx.Logger
	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	entry  cron.EntryID
}

func New(cfg Config, eng *engine.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		engine: eng,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the schedule/timezone at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.cfg.Schedule != cfg.Schedule || s.cfg.Timezone != cfg.Timezone
	s.cfg = cfg
	if s.c != nil && changed {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) {
	loc := s.locationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		spec = "@daily"
	}
	id, err := s.c.AddFunc(spec, func() { s.RunOnce(ctx) })
	if err != nil {
		s.log.Error("invalid cycle schedule, service idle", logx.String("spec", spec), logx.Err(err))
		s.c = nil
		return
	}
	s.entry = id
	s.c.Start()
	s.log.Info("cycle service started", logx.String("spec", spec), logx.String("tz", loc.String()))
}

func (s *Service) restartLocked() {
	ctx := context.Background()
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if s.cfg.Enabled {
		s.startLocked(ctx)
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("cycle service stopped")
}

// RunOnce executes one full cycle: automatic triggers first (they may create
// bundles whose tasks the caller expects today), then recurring generation
// over [today, today+horizon].
func (s *Service) RunOnce(ctx context.Context) {
	s.mu.Lock()
	horizon := s.cfg.HorizonDays
	s.mu.Unlock()
	if horizon <= 0 {
		horizon = 14
	}

	start := time.Now()
	today := dateutil.Today()

	if _, err := s.engine.RunAutomaticTriggers(ctx); err != nil {
		s.log.Error("automatic trigger run failed", logx.Err(err))
	}
	if _, err := s.engine.GenerateRecurring(ctx, today, today.AddDays(horizon)); err != nil {
		s.log.Error("recurring generation failed", logx.Err(err))
	}

	s.log.Info("cycle complete",
		logx.String("today", today.String()),
		logx.Int("horizon_days", horizon),
		logx.Duration("took", time.Since(start)),
	)
}

func (s *Service) locationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}
