package engine

import (
	"context"
	"strings"
	"testing"

	"planwork/internal/model"
)

func autoTemplate(lead int) model.Template {
	return model.Template{
		Name:            "Town hall",
		TriggerType:     model.TriggerAutomatic,
		TriggerSchedule: "0 0 15 * *", // the 15th of every month
		TriggerLeadDays: lead,
		TaskDefinitions: []model.TaskDefinition{
			{RefID: "agenda", Description: "draft agenda", OffsetDays: -3},
			{RefID: "host", Description: "host the call", OffsetDays: 0},
		},
	}
}

func TestRunAutomaticTriggersCreatesBundle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, bus := newTestEngine(t, date(t, "2026-04-10"))

	events, unsub := bus.Subscribe(8)
	defer unsub()

	tpl := mustCreateTemplate(t, mem, autoTemplate(7))

	res, err := svc.RunAutomaticTriggers(ctx)
	if err != nil {
		t.Fatalf("RunAutomaticTriggers error: %v", err)
	}
	if len(res.Created) != 1 || res.Skipped != 0 {
		t.Fatalf("created=%d skipped=%d, want 1/0", len(res.Created), res.Skipped)
	}

	b := res.Created[0]
	if b.TemplateID != tpl.ID {
		t.Fatalf("bundle template = %q, want %q", b.TemplateID, tpl.ID)
	}
	if b.AnchorDate.String() != "2026-04-15" {
		t.Fatalf("anchor = %s, want 2026-04-15", b.AnchorDate)
	}
	if b.Title != "Town hall 2026-04-15" {
		t.Fatalf("title = %q", b.Title)
	}
	if b.Stage != model.StagePreparation || b.Status != model.BundleActive {
		t.Fatalf("stage/status = %s/%s", b.Stage, b.Status)
	}

	tasks := mem.TasksForBundle(b.ID)
	if len(tasks) != 2 {
		t.Fatalf("expansion produced %d tasks, want 2", len(tasks))
	}
	if tasks[0].Date.String() != "2026-04-12" || tasks[1].Date.String() != "2026-04-15" {
		t.Fatalf("task dates %s/%s", tasks[0].Date, tasks[1].Date)
	}

	notes, err := mem.ListNotifications(ctx, true)
	if err != nil {
		t.Fatalf("ListNotifications error: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	if notes[0].BundleID != b.ID || notes[0].TemplateID != tpl.ID {
		t.Fatalf("notification links wrong: %+v", notes[0])
	}
	if !strings.Contains(notes[0].Message, "2026-04-15") {
		t.Fatalf("notification message %q lacks the anchor date", notes[0].Message)
	}

	if got := drainEvents(events, EventNotificationCreated); len(got) != 1 {
		t.Fatalf("got %d notification events, want 1", len(got))
	}
}

func TestRunAutomaticTriggersOutsideLeadWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Lead window opens 2026-04-08; today is still a day early.
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-07"))

	mustCreateTemplate(t, mem, autoTemplate(7))

	res, err := svc.RunAutomaticTriggers(ctx)
	if err != nil {
		t.Fatalf("RunAutomaticTriggers error: %v", err)
	}
	if len(res.Created) != 0 || res.Skipped != 0 {
		t.Fatalf("created=%d skipped=%d, want 0/0 outside the window", len(res.Created), res.Skipped)
	}
	if notes, _ := mem.ListNotifications(ctx, true); len(notes) != 0 {
		t.Fatalf("notification recorded outside the window")
	}
}

func TestRunAutomaticTriggersIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-10"))

	mustCreateTemplate(t, mem, autoTemplate(7))

	if _, err := svc.RunAutomaticTriggers(ctx); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	second, err := svc.RunAutomaticTriggers(ctx)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if len(second.Created) != 0 || second.Skipped != 1 {
		t.Fatalf("second run created=%d skipped=%d, want 0/1", len(second.Created), second.Skipped)
	}
	if notes, _ := mem.ListNotifications(ctx, true); len(notes) != 1 {
		t.Fatalf("got %d notifications after two runs, want 1", len(notes))
	}
}

func TestRunAutomaticTriggersIgnoresManualTemplates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-10"))

	manual := releaseTemplate()
	manual.TriggerSchedule = "0 0 15 * *"
	manual.TriggerLeadDays = 30
	mustCreateTemplate(t, mem, manual)

	res, err := svc.RunAutomaticTriggers(ctx)
	if err != nil {
		t.Fatalf("RunAutomaticTriggers error: %v", err)
	}
	if len(res.Created) != 0 || res.Skipped != 0 {
		t.Fatalf("manual template triggered: %+v", res)
	}
}

func TestRunAutomaticTriggersBadScheduleSkipsTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-10"))

	broken := autoTemplate(7)
	broken.TriggerSchedule = "0 0 31 2 *" // never fires
	mustCreateTemplate(t, mem, broken)
	mustCreateTemplate(t, mem, autoTemplate(7)) // healthy sibling

	res, err := svc.RunAutomaticTriggers(ctx)
	if err != nil {
		t.Fatalf("RunAutomaticTriggers error: %v", err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("healthy template not triggered past the broken one: %+v", res)
	}
}

func TestRunAutomaticTriggersScheduleDayCountsAsInWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Zero lead days: the window is exactly the occurrence day.
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-15"))

	mustCreateTemplate(t, mem, autoTemplate(0))

	res, err := svc.RunAutomaticTriggers(ctx)
	if err != nil {
		t.Fatalf("RunAutomaticTriggers error: %v", err)
	}
	if len(res.Created) != 1 || res.Created[0].AnchorDate.String() != "2026-04-15" {
		t.Fatalf("occurrence day itself did not trigger: %+v", res)
	}
}
