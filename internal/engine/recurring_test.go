package engine

import (
	"context"
	"errors"
	"testing"

	"planwork/internal/dateutil"
	"planwork/internal/model"
)

func TestGenerateRecurring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	weekly := mustCreateRule(t, mem, model.RecurringRule{
		Description: "water the plants",
		Schedule:    "0 0 * * 1", // Mondays
		Enabled:     true,
		AssigneeID:  "carol",
	})
	mustCreateRule(t, mem, model.RecurringRule{
		Description: "disabled rule",
		Schedule:    "0 0 * * *",
		Enabled:     false,
	})

	// 2026-04-01 (Wed) through 2026-04-14 (Tue) holds two Mondays: the 6th
	// and the 13th.
	res, err := svc.GenerateRecurring(ctx, date(t, "2026-04-01"), date(t, "2026-04-14"))
	if err != nil {
		t.Fatalf("GenerateRecurring error: %v", err)
	}
	if len(res.Created) != 2 || res.Skipped != 0 {
		t.Fatalf("created=%d skipped=%d, want 2/0", len(res.Created), res.Skipped)
	}
	for i, want := range []string{"2026-04-06", "2026-04-13"} {
		task := res.Created[i]
		if task.Date.String() != want {
			t.Fatalf("task %d dated %s, want %s", i, task.Date, want)
		}
		if task.RecurringRuleID != weekly.ID || task.Source != model.SourceRecurring {
			t.Fatalf("task %d not linked to rule: %+v", i, task)
		}
		if task.Status != model.TaskTodo || task.AssigneeID != "carol" {
			t.Fatalf("task %d fields wrong: %+v", i, task)
		}
	}
}

func TestGenerateRecurringIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	mustCreateRule(t, mem, model.RecurringRule{
		Description: "daily standup",
		Schedule:    "0 0 * * *",
		Enabled:     true,
	})

	start, end := date(t, "2026-04-01"), date(t, "2026-04-07")
	first, err := svc.GenerateRecurring(ctx, start, end)
	if err != nil {
		t.Fatalf("first pass error: %v", err)
	}
	if len(first.Created) != 7 {
		t.Fatalf("first pass created %d, want 7", len(first.Created))
	}

	second, err := svc.GenerateRecurring(ctx, start, end)
	if err != nil {
		t.Fatalf("second pass error: %v", err)
	}
	if len(second.Created) != 0 || second.Skipped != 7 {
		t.Fatalf("second pass created=%d skipped=%d, want 0/7", len(second.Created), second.Skipped)
	}

	// Overlapping range only fills the uncovered tail.
	third, err := svc.GenerateRecurring(ctx, date(t, "2026-04-05"), date(t, "2026-04-09"))
	if err != nil {
		t.Fatalf("third pass error: %v", err)
	}
	if len(third.Created) != 2 || third.Skipped != 3 {
		t.Fatalf("third pass created=%d skipped=%d, want 2/3", len(third.Created), third.Skipped)
	}
}

func TestGenerateRecurringLegacyRuleForm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	mustCreateRule(t, mem, model.RecurringRule{
		Description: "monthly report",
		Frequency:   "monthly",
		DaySelector: 15,
		Enabled:     true,
	})

	res, err := svc.GenerateRecurring(ctx, date(t, "2026-04-01"), date(t, "2026-04-30"))
	if err != nil {
		t.Fatalf("GenerateRecurring error: %v", err)
	}
	if len(res.Created) != 1 || res.Created[0].Date.String() != "2026-04-15" {
		t.Fatalf("legacy monthly rule produced %+v, want one task on 2026-04-15", res.Created)
	}
}

func TestGenerateRecurringMalformedScheduleIsSilent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	mustCreateRule(t, mem, model.RecurringRule{
		Description: "broken",
		Schedule:    "every tuesday-ish",
		Enabled:     true,
	})

	res, err := svc.GenerateRecurring(ctx, date(t, "2026-04-01"), date(t, "2026-04-30"))
	if err != nil {
		t.Fatalf("GenerateRecurring error: %v", err)
	}
	if len(res.Created) != 0 || res.Skipped != 0 {
		t.Fatalf("malformed schedule produced created=%d skipped=%d, want 0/0", len(res.Created), res.Skipped)
	}
}

func TestGenerateRecurringRangeValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestEngine(t, date(t, "2026-04-01"))

	tests := []struct {
		name  string
		start string
		end   string
	}{
		{name: "reversed", start: "2026-04-10", end: "2026-04-01"},
		{name: "over bound", start: "2026-01-01", end: "2026-06-30"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.GenerateRecurring(ctx, date(t, tt.start), date(t, tt.end))
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}

	if _, err := svc.GenerateRecurring(ctx, dateutil.Date{}, date(t, "2026-04-10")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero start: got %v, want ErrInvalidInput", err)
	}

	// Exactly the bound (90 inclusive days) is accepted.
	if _, err := svc.GenerateRecurring(ctx, date(t, "2026-01-01"), date(t, "2026-03-31")); err != nil {
		t.Fatalf("90-day range rejected: %v", err)
	}
}
