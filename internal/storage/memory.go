package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"planwork/internal/dateutil"
	"planwork/internal/model"
)

// Memory is an in-process Store. It mirrors the sqlite driver's semantics,
// including the idempotency-key duplicate checks, but does lookups by scan.
// Intended for tests and throwaway runs.
type Memory struct {
	mu sync.Mutex

	templates     map[string]model.Template
	rules         map[string]model.RecurringRule
	bundles       map[string]model.Bundle
	autoBundles   map[string]string // templateID|anchor -> bundle id
	tasks         map[string]model.Task
	attachments   map[string]int // taskID -> count
	notifications map[string]model.Notification

	order []string // insertion order across kinds, for stable listings
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		templates:     map[string]model.Template{},
		rules:         map[string]model.RecurringRule{},
		bundles:       map[string]model.Bundle{},
		autoBundles:   map[string]string{},
		tasks:         map[string]model.Task{},
		attachments:   map[string]int{},
		notifications: map[string]model.Notification{},
	}
}

func (m *Memory) Close() error { return nil }

func triggerKey(templateID string, anchor dateutil.Date) string {
	return templateID + "|" + anchor.String()
}

func (m *Memory) CreateTemplate(ctx context.Context, t model.Template) (model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	now := stampNow()
	t.CreatedAt, t.UpdatedAt = now, now
	m.templates[t.ID] = t
	m.order = append(m.order, t.ID)
	return t, nil
}

func (m *Memory) GetTemplate(ctx context.Context, id string) (model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return model.Template{}, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *Memory) ListTemplates(ctx context.Context) ([]model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Template
	for _, id := range m.order {
		if t, ok := m.templates[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) CreateRecurringRule(ctx context.Context, r model.RecurringRule) (model.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	now := stampNow()
	r.CreatedAt, r.UpdatedAt = now, now
	m.rules[r.ID] = r
	m.order = append(m.order, r.ID)
	return r, nil
}

func (m *Memory) ListRecurringRules(ctx context.Context) ([]model.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RecurringRule
	for _, id := range m.order {
		if r, ok := m.rules[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) CreateBundle(ctx context.Context, b model.Bundle) (model.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertBundleLocked(b, false)
}

func (m *Memory) CreateTriggeredBundle(ctx context.Context, b model.Bundle) (model.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertBundleLocked(b, true)
}

func (m *Memory) insertBundleLocked(b model.Bundle, auto bool) (model.Bundle, error) {
	if auto {
		key := triggerKey(b.TemplateID, b.AnchorDate)
		if _, exists := m.autoBundles[key]; exists {
			return model.Bundle{}, fmt.Errorf("bundle for template %s at %s: %w", b.TemplateID, b.AnchorDate, ErrDuplicate)
		}
		defer func() { m.autoBundles[key] = b.ID }()
	}
	if b.ID == "" {
		b.ID = newID()
	}
	now := stampNow()
	b.CreatedAt, b.UpdatedAt = now, now
	m.bundles[b.ID] = b
	m.order = append(m.order, b.ID)
	return b, nil
}

func (m *Memory) GetBundle(ctx context.Context, id string) (model.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bundles[id]
	if !ok {
		return model.Bundle{}, fmt.Errorf("bundle %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (m *Memory) UpdateBundle(ctx context.Context, id string, p model.BundlePatch) (model.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bundles[id]
	if !ok {
		return model.Bundle{}, fmt.Errorf("bundle %s: %w", id, ErrNotFound)
	}
	b.ApplyPatch(p)
	b.UpdatedAt = stampNow()
	m.bundles[id] = b
	return b, nil
}

func (m *Memory) FindBundleByTrigger(ctx context.Context, templateID string, anchor dateutil.Date) (model.Bundle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.autoBundles[triggerKey(templateID, anchor)]
	if !ok {
		return model.Bundle{}, false, nil
	}
	return m.bundles[id], true, nil
}

func (m *Memory) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tasks {
		if t.Source == model.SourceRecurring && existing.Source == model.SourceRecurring &&
			existing.RecurringRuleID == t.RecurringRuleID && existing.Date.Equal(t.Date) {
			return model.Task{}, fmt.Errorf("task %s at %s: %w", t.RecurringRuleID, t.Date, ErrDuplicate)
		}
		if t.Source == model.SourceTemplate && existing.Source == model.SourceTemplate &&
			t.TemplateTaskRef != "" && existing.BundleID == t.BundleID && existing.TemplateTaskRef == t.TemplateTaskRef {
			return model.Task{}, fmt.Errorf("task %s/%s: %w", t.BundleID, t.TemplateTaskRef, ErrDuplicate)
		}
	}
	if t.ID == "" {
		t.ID = newID()
	}
	now := stampNow()
	t.CreatedAt, t.UpdatedAt = now, now
	m.tasks[t.ID] = t
	m.order = append(m.order, t.ID)
	return t, nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *Memory) UpdateTask(ctx context.Context, id string, p model.TaskPatch) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	t.ApplyPatch(p)
	t.UpdatedAt = stampNow()
	m.tasks[id] = t
	return t, nil
}

func (m *Memory) FindRecurringTask(ctx context.Context, ruleID string, date dateutil.Date) (model.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Source == model.SourceRecurring && t.RecurringRuleID == ruleID && t.Date.Equal(date) {
			return t, true, nil
		}
	}
	return model.Task{}, false, nil
}

func (m *Memory) ListTemplateTaskRefs(ctx context.Context, bundleID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := map[string]struct{}{}
	for _, t := range m.tasks {
		if t.Source == model.SourceTemplate && t.BundleID == bundleID && t.TemplateTaskRef != "" {
			refs[t.TemplateTaskRef] = struct{}{}
		}
	}
	return refs, nil
}

// TasksForBundle returns a bundle's tasks sorted by date. Test helper.
func (m *Memory) TasksForBundle(bundleID string) []model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Task
	for _, t := range m.tasks {
		if t.BundleID == bundleID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (m *Memory) AddAttachment(ctx context.Context, taskID, name, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[taskID]++
	return nil
}

func (m *Memory) CountAttachments(ctx context.Context, taskID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attachments[taskID], nil
}

func (m *Memory) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = newID()
	}
	n.CreatedAt = stampNow()
	m.notifications[n.ID] = n
	m.order = append(m.order, n.ID)
	return n, nil
}

func (m *Memory) GetNotification(ctx context.Context, id string) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return n, nil
}

func (m *Memory) UpdateNotification(ctx context.Context, id string, p model.NotificationPatch) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	n.ApplyPatch(p)
	m.notifications[id] = n
	return n, nil
}

func (m *Memory) ListNotifications(ctx context.Context, includeDismissed bool) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, id := range m.order {
		n, ok := m.notifications[id]
		if !ok {
			continue
		}
		if !includeDismissed && n.Dismissed {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
