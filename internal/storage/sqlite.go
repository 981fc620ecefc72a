package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"planwork/internal/dateutil"
	"planwork/internal/model"
	logx "planwork/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// newID and stampNow centralize id/timestamp assignment so every aggregate
// gets them the same way.
func newID() string { return uuid.NewString() }

func stampNow() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- Templates ----

func (s *sqliteStore) CreateTemplate(ctx context.Context, t model.Template) (model.Template, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	now := stampNow()
	t.CreatedAt, t.UpdatedAt = now, now
	data, err := json.Marshal(t)
	if err != nil {
		return model.Template{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates(id, trigger_type, data, created_at, updated_at) VALUES(?,?,?,?,?)`,
		t.ID, string(t.TriggerType), string(data), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.Template{}, err
	}
	return t, nil
}

func (s *sqliteStore) GetTemplate(ctx context.Context, id string) (model.Template, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM templates WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Template{}, err
	}
	var t model.Template
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return model.Template{}, err
	}
	return t, nil
}

func (s *sqliteStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM templates ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Template
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t model.Template
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- Recurring rules ----

func (s *sqliteStore) CreateRecurringRule(ctx context.Context, r model.RecurringRule) (model.RecurringRule, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	now := stampNow()
	r.CreatedAt, r.UpdatedAt = now, now
	data, err := json.Marshal(r)
	if err != nil {
		return model.RecurringRule{}, err
	}
	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recurring_rules(id, enabled, data, created_at, updated_at) VALUES(?,?,?,?,?)`,
		r.ID, enabled, string(data), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.RecurringRule{}, err
	}
	return r, nil
}

func (s *sqliteStore) ListRecurringRules(ctx context.Context) ([]model.RecurringRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM recurring_rules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RecurringRule
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r model.RecurringRule
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- Bundles ----

func (s *sqliteStore) CreateBundle(ctx context.Context, b model.Bundle) (model.Bundle, error) {
	return s.insertBundle(ctx, b, "manual")
}

func (s *sqliteStore) CreateTriggeredBundle(ctx context.Context, b model.Bundle) (model.Bundle, error) {
	return s.insertBundle(ctx, b, "auto")
}

func (s *sqliteStore) insertBundle(ctx context.Context, b model.Bundle, origin string) (model.Bundle, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	now := stampNow()
	b.CreatedAt, b.UpdatedAt = now, now
	data, err := json.Marshal(b)
	if err != nil {
		return model.Bundle{}, err
	}
	anchor := ""
	if !b.AnchorDate.IsZero() {
		anchor = b.AnchorDate.String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bundles(id, template_id, anchor_date, origin, data, created_at, updated_at) VALUES(?,?,?,?,?,?,?)`,
		b.ID, b.TemplateID, anchor, origin, string(data), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if isUniqueViolation(err) {
		return model.Bundle{}, fmt.Errorf("bundle for template %s at %s: %w", b.TemplateID, anchor, ErrDuplicate)
	}
	if err != nil {
		return model.Bundle{}, err
	}
	return b, nil
}

func (s *sqliteStore) GetBundle(ctx context.Context, id string) (model.Bundle, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bundles WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bundle{}, fmt.Errorf("bundle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Bundle{}, err
	}
	var b model.Bundle
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return model.Bundle{}, err
	}
	return b, nil
}

func (s *sqliteStore) UpdateBundle(ctx context.Context, id string, p model.BundlePatch) (model.Bundle, error) {
	b, err := s.GetBundle(ctx, id)
	if err != nil {
		return model.Bundle{}, err
	}
	b.ApplyPatch(p)
	b.UpdatedAt = stampNow()
	data, err := json.Marshal(b)
	if err != nil {
		return model.Bundle{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE bundles SET data = ?, updated_at = ? WHERE id = ?`,
		string(data), b.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return model.Bundle{}, err
	}
	return b, nil
}

func (s *sqliteStore) FindBundleByTrigger(ctx context.Context, templateID string, anchor dateutil.Date) (model.Bundle, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM bundles WHERE template_id = ? AND anchor_date = ? AND origin = 'auto'`,
		templateID, anchor.String(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bundle{}, false, nil
	}
	if err != nil {
		return model.Bundle{}, false, err
	}
	var b model.Bundle
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return model.Bundle{}, false, err
	}
	return b, true, nil
}

// ---- Tasks ----

func (s *sqliteStore) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	now := stampNow()
	t.CreatedAt, t.UpdatedAt = now, now
	data, err := json.Marshal(t)
	if err != nil {
		return model.Task{}, err
	}
	date := ""
	if !t.Date.IsZero() {
		date = t.Date.String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, bundle_id, template_task_ref, recurring_rule_id, date, status, source, data, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.BundleID, t.TemplateTaskRef, t.RecurringRuleID, date,
		string(t.Status), string(t.Source), string(data),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if isUniqueViolation(err) {
		return model.Task{}, fmt.Errorf("task %s/%s at %s: %w", t.RecurringRuleID, t.TemplateTaskRef, date, ErrDuplicate)
	}
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (model.Task, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, err
	}
	var t model.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, id string, p model.TaskPatch) (model.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	t.ApplyPatch(p)
	t.UpdatedAt = stampNow()
	data, err := json.Marshal(t)
	if err != nil {
		return model.Task{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(t.Status), string(data), t.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) FindRecurringTask(ctx context.Context, ruleID string, date dateutil.Date) (model.Task, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM tasks WHERE recurring_rule_id = ? AND date = ? AND source = 'recurring'`,
		ruleID, date.String(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	var t model.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return model.Task{}, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) ListTemplateTaskRefs(ctx context.Context, bundleID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_task_ref FROM tasks WHERE bundle_id = ? AND source = 'template' AND template_task_ref <> ''`,
		bundleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refs := map[string]struct{}{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs[ref] = struct{}{}
	}
	return refs, rows.Err()
}

// ---- Attachments ----

func (s *sqliteStore) AddAttachment(ctx context.Context, taskID, name, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments(id, task_id, name, path, created_at) VALUES(?,?,?,?,?)`,
		newID(), taskID, name, path, stampNow().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) CountAttachments(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments WHERE task_id = ?`, taskID).Scan(&n)
	return n, err
}

// ---- Notifications ----

func (s *sqliteStore) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.ID == "" {
		n.ID = newID()
	}
	n.CreatedAt = stampNow()
	data, err := json.Marshal(n)
	if err != nil {
		return model.Notification{}, err
	}
	dismissed := 0
	if n.Dismissed {
		dismissed = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, dismissed, data, created_at) VALUES(?,?,?,?)`,
		n.ID, dismissed, string(data), n.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

func (s *sqliteStore) GetNotification(ctx context.Context, id string) (model.Notification, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM notifications WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Notification{}, err
	}
	var n model.Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

func (s *sqliteStore) UpdateNotification(ctx context.Context, id string, p model.NotificationPatch) (model.Notification, error) {
	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return model.Notification{}, err
	}
	n.ApplyPatch(p)
	data, err := json.Marshal(n)
	if err != nil {
		return model.Notification{}, err
	}
	dismissed := 0
	if n.Dismissed {
		dismissed = 1
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE notifications SET dismissed = ?, data = ? WHERE id = ?`,
		dismissed, string(data), id,
	)
	if err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

func (s *sqliteStore) ListNotifications(ctx context.Context, includeDismissed bool) ([]model.Notification, error) {
	q := `SELECT data FROM notifications ORDER BY created_at`
	if !includeDismissed {
		q = `SELECT data FROM notifications WHERE dismissed = 0 ORDER BY created_at`
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
