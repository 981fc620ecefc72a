// Package engine implements the scheduling and idempotent-instantiation
// core: template expansion, recurring generation, automatic triggering and
// milestone-driven bundle stage transitions.
//
// All operations are short-lived, stateless invocations; the only shared
// state lives behind the storage collaborator. Idempotency is a point lookup
// immediately before each create, with the storage layer's unique keys as
// the backstop for the check-then-create race.
package engine

import (
	"planwork/internal/dateutil"
	"planwork/internal/eventbus"
	"planwork/internal/storage"
	logx "planwork/pkg/logx"
)

// Event types published on the bus.
const (
	EventNotificationCreated = "notification.created"
	EventBundleStageChanged  = "bundle.stage_changed"
	EventTaskCompleted       = "task.completed"
)

// DefaultMaxRangeDays bounds GenerateRecurring's inclusive date range.
const DefaultMaxRangeDays = 90

// Config tunes the engine.
type Config struct {
	// MaxRangeDays caps the recurring generation range (inclusive days).
	// Zero means DefaultMaxRangeDays.
	MaxRangeDays int

	// Now supplies "today". Nil means dateutil.Today; tests pin it.
	Now func() dateutil.Date
}

// Service is the engine facade. Construct with New; the zero value is not
// usable.
type Service struct {
	store storage.Store
	log   logx.Logger
	bus   eventbus.Bus

	maxRangeDays int
	now          func() dateutil.Date
}

func New(store storage.Store, log logx.Logger, bus eventbus.Bus, cfg Config) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	maxRange := cfg.MaxRangeDays
	if maxRange <= 0 {
		maxRange = DefaultMaxRangeDays
	}
	now := cfg.Now
	if now == nil {
		now = dateutil.Today
	}
	return &Service{
		store:        store,
		log:          log,
		bus:          bus,
		maxRangeDays: maxRange,
		now:          now,
	}
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
