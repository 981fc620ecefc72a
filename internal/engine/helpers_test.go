package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"planwork/internal/dateutil"
	"planwork/internal/eventbus"
	"planwork/internal/model"
	"planwork/internal/storage"
	logx "planwork/pkg/logx"
)

func newTestEngine(t *testing.T, today dateutil.Date) (*Service, *storage.Memory, eventbus.Bus) {
	t.Helper()
	mem := storage.NewMemory()
	bus := eventbus.New()
	svc := New(mem, logx.Nop(), bus, Config{Now: func() dateutil.Date { return today }})
	return svc, mem, bus
}

func mustCreateTemplate(t *testing.T, store storage.Store, tpl model.Template) model.Template {
	t.Helper()
	created, err := store.CreateTemplate(context.Background(), tpl)
	if err != nil {
		t.Fatalf("CreateTemplate error: %v", err)
	}
	return created
}

func mustCreateBundle(t *testing.T, store storage.Store, b model.Bundle) model.Bundle {
	t.Helper()
	created, err := store.CreateBundle(context.Background(), b)
	if err != nil {
		t.Fatalf("CreateBundle error: %v", err)
	}
	return created
}

func mustCreateRule(t *testing.T, store storage.Store, r model.RecurringRule) model.RecurringRule {
	t.Helper()
	created, err := store.CreateRecurringRule(context.Background(), r)
	if err != nil {
		t.Fatalf("CreateRecurringRule error: %v", err)
	}
	return created
}

func date(t *testing.T, s string) dateutil.Date {
	t.Helper()
	d, err := dateutil.Parse(s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

// flakyStore fails CreateTask after a set number of successful creates.
// Used to exercise the partial-expansion contract.
type flakyStore struct {
	storage.Store
	remaining int
}

var errInjected = errors.New("injected storage failure")

func (f *flakyStore) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	if f.remaining <= 0 {
		return model.Task{}, errInjected
	}
	f.remaining--
	return f.Store.CreateTask(ctx, task)
}

// drainEvents collects bus events of one type for a short window.
func drainEvents(ch <-chan eventbus.Event, typ string) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				out = append(out, e)
			}
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}
