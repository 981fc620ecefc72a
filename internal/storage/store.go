package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"planwork/internal/dateutil"
	"planwork/internal/model"
	logx "planwork/pkg/logx"
)

// ErrNotFound is returned by Get/Update calls for ids that do not resolve.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a create violates an idempotency key:
// (rule_id, date) for recurring tasks, (template_id, anchor_date) for
// triggered bundles, (bundle_id, template_task_ref) for expanded tasks.
var ErrDuplicate = errors.New("duplicate")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (canonical)
//   - "memory": in-process maps, lost on exit (tests, dev)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence collaborator consumed by the engine.
//
// It offers create/read/update/find operations over the five aggregate
// kinds. Find* methods are point lookups backing the engine's idempotency
// checks; the sqlite driver additionally enforces them with unique indexes
// so a racing check-then-create fails closed instead of duplicating.
type Store interface {
	CreateTemplate(ctx context.Context, t model.Template) (model.Template, error)
	GetTemplate(ctx context.Context, id string) (model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)

	CreateRecurringRule(ctx context.Context, r model.RecurringRule) (model.RecurringRule, error)
	ListRecurringRules(ctx context.Context) ([]model.RecurringRule, error)

	// CreateBundle stores a manually created bundle.
	// CreateTriggeredBundle stores a bundle produced by the automatic trigger
	// runner; at most one such bundle exists per (templateID, anchorDate).
	CreateBundle(ctx context.Context, b model.Bundle) (model.Bundle, error)
	CreateTriggeredBundle(ctx context.Context, b model.Bundle) (model.Bundle, error)
	GetBundle(ctx context.Context, id string) (model.Bundle, error)
	UpdateBundle(ctx context.Context, id string, p model.BundlePatch) (model.Bundle, error)
	FindBundleByTrigger(ctx context.Context, templateID string, anchor dateutil.Date) (model.Bundle, bool, error)

	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	UpdateTask(ctx context.Context, id string, p model.TaskPatch) (model.Task, error)
	FindRecurringTask(ctx context.Context, ruleID string, date dateutil.Date) (model.Task, bool, error)
	// ListTemplateTaskRefs returns the refIds already instantiated for a
	// bundle, used to deduplicate expansion retries.
	ListTemplateTaskRefs(ctx context.Context, bundleID string) (map[string]struct{}, error)

	AddAttachment(ctx context.Context, taskID, name, path string) error
	CountAttachments(ctx context.Context, taskID string) (int, error)

	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
	GetNotification(ctx context.Context, id string) (model.Notification, error)
	UpdateNotification(ctx context.Context, id string, p model.NotificationPatch) (model.Notification, error)
	ListNotifications(ctx context.Context, includeDismissed bool) ([]model.Notification, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
