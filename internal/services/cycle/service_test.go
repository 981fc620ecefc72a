package cycle

import (
	"context"
	"testing"
	"time"

	"planwork/internal/dateutil"
	"planwork/internal/engine"
	"planwork/internal/eventbus"
	"planwork/internal/model"
	"planwork/internal/storage"
	logx "planwork/pkg/logx"
)

func TestRunOnceGeneratesWork(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	eng := engine.New(mem, logx.Nop(), eventbus.New(), engine.Config{})

	if _, err := mem.CreateRecurringRule(ctx, model.RecurringRule{
		Description: "daily check",
		Schedule:    "0 0 * * *",
		Enabled:     true,
	}); err != nil {
		t.Fatalf("CreateRecurringRule error: %v", err)
	}

	svc := New(Config{Enabled: true, HorizonDays: 3}, eng, logx.Nop())
	svc.RunOnce(ctx)

	// [today, today+3] inclusive holds four days of a daily rule.
	today := dateutil.Today()
	for i := 0; i <= 3; i++ {
		if _, ok, err := mem.FindRecurringTask(ctx, ruleID(t, mem), today.AddDays(i)); err != nil || !ok {
			t.Fatalf("day +%d missing: ok=%v err=%v", i, ok, err)
		}
	}

	// A second run is a pure no-op.
	svc.RunOnce(ctx)
	rules, _ := mem.ListRecurringRules(ctx)
	if len(rules) != 1 {
		t.Fatalf("rules = %d", len(rules))
	}
}

func ruleID(t *testing.T, mem *storage.Memory) string {
	t.Helper()
	rules, err := mem.ListRecurringRules(context.Background())
	if err != nil || len(rules) != 1 {
		t.Fatalf("rules = %d, err %v", len(rules), err)
	}
	return rules[0].ID
}

func TestStartDisabledIsNoOp(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory()
	eng := engine.New(mem, logx.Nop(), eventbus.New(), engine.Config{})

	svc := New(Config{Enabled: false}, eng, logx.Nop())
	svc.Start(context.Background())
	if svc.Enabled() {
		t.Fatal("disabled service reports enabled")
	}
	svc.Stop(context.Background())
}

func TestStartStopAndApply(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory()
	eng := engine.New(mem, logx.Nop(), eventbus.New(), engine.Config{})

	svc := New(Config{Enabled: true, Schedule: "@daily"}, eng, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	// Schedule swap restarts the cron entry without deadlocking.
	svc.Apply(Config{Enabled: true, Schedule: "@hourly"})

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)
}

func TestInvalidScheduleLeavesServiceIdle(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory()
	eng := engine.New(mem, logx.Nop(), eventbus.New(), engine.Config{})

	svc := New(Config{Enabled: true, Schedule: "not a spec"}, eng, logx.Nop())
	svc.Start(context.Background())
	svc.Stop(context.Background()) // must not panic with no cron running
}
