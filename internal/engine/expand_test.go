package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"planwork/internal/dateutil"
	"planwork/internal/eventbus"
	"planwork/internal/model"
	"planwork/internal/storage"
	logx "planwork/pkg/logx"
)

func releaseTemplate() model.Template {
	return model.Template{
		Name:              "Release",
		TriggerType:       model.TriggerManual,
		DefaultAssigneeID: "alice",
		Tags:              []string{"release"},
		Emoji:             "🚀",
		BundleLinkDefs:    []model.BundleLinkDefinition{{Name: "changelog"}},
		TaskDefinitions: []model.TaskDefinition{
			{RefID: "prep", Description: "prepare notes", OffsetDays: -7},
			{RefID: "ship", Description: "ship it", OffsetDays: 0, AssigneeID: "bob"},
			{RefID: "retro", Description: "retro", OffsetDays: 3, StageOnComplete: model.StageDone},
		},
	}
}

func TestExpandTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	tpl := mustCreateTemplate(t, mem, releaseTemplate())
	b := mustCreateBundle(t, mem, model.Bundle{Title: "Release 1.0", AnchorDate: date(t, "2026-04-15"), Stage: model.StagePreparation, Status: model.BundleActive, TemplateID: tpl.ID})

	tasks, err := svc.ExpandTemplate(ctx, tpl.ID, b.ID, b.AnchorDate)
	if err != nil {
		t.Fatalf("ExpandTemplate error: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("created %d tasks, want 3", len(tasks))
	}

	want := []model.Task{
		{
			Description: "prepare notes", Date: date(t, "2026-04-08"),
			Status: model.TaskTodo, Source: model.SourceTemplate,
			BundleID: b.ID, TemplateTaskRef: "prep",
			AssigneeID: "alice", Tags: []string{"release"},
		},
		{
			Description: "ship it", Date: date(t, "2026-04-15"),
			Status: model.TaskTodo, Source: model.SourceTemplate,
			BundleID: b.ID, TemplateTaskRef: "ship",
			AssigneeID: "bob", Tags: []string{"release"},
		},
		{
			Description: "retro", Date: date(t, "2026-04-18"),
			Status: model.TaskTodo, Source: model.SourceTemplate,
			BundleID: b.ID, TemplateTaskRef: "retro",
			AssigneeID: "alice", StageOnComplete: model.StageDone,
			Tags: []string{"release"},
		},
	}
	ignore := cmpopts.IgnoreFields(model.Task{}, "ID", "CreatedAt", "UpdatedAt")
	if diff := cmp.Diff(want, mem.TasksForBundle(b.ID), ignore); diff != "" {
		t.Fatalf("expanded tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandTemplateIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	tpl := mustCreateTemplate(t, mem, releaseTemplate())
	b := mustCreateBundle(t, mem, model.Bundle{Title: "Release 1.0", AnchorDate: date(t, "2026-04-15"), TemplateID: tpl.ID})

	if _, err := svc.ExpandTemplate(ctx, tpl.ID, b.ID, b.AnchorDate); err != nil {
		t.Fatalf("first expansion error: %v", err)
	}
	again, err := svc.ExpandTemplate(ctx, tpl.ID, b.ID, b.AnchorDate)
	if err != nil {
		t.Fatalf("second expansion error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second expansion created %d tasks, want 0", len(again))
	}
	if got := len(mem.TasksForBundle(b.ID)); got != 3 {
		t.Fatalf("bundle holds %d tasks after re-expansion, want 3", got)
	}
}

func TestExpandTemplatePartialFailureThenRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	flaky := &flakyStore{Store: mem, remaining: 2}

	tpl := mustCreateTemplate(t, mem, releaseTemplate())
	b := mustCreateBundle(t, mem, model.Bundle{Title: "Release 1.0", AnchorDate: date(t, "2026-04-15"), TemplateID: tpl.ID})

	failing := New(flaky, logx.Nop(), eventbus.New(), Config{})
	created, err := failing.ExpandTemplate(ctx, tpl.ID, b.ID, b.AnchorDate)
	if !errors.Is(err, errInjected) {
		t.Fatalf("want injected error, got %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("partial expansion returned %d tasks, want 2", len(created))
	}
	if got := len(mem.TasksForBundle(b.ID)); got != 2 {
		t.Fatalf("bundle holds %d tasks after failure, want 2", got)
	}

	// Retry against the healthy store picks up only the missing definition.
	healthy := New(mem, logx.Nop(), eventbus.New(), Config{})
	retried, err := healthy.ExpandTemplate(ctx, tpl.ID, b.ID, b.AnchorDate)
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if len(retried) != 1 || retried[0].TemplateTaskRef != "retro" {
		t.Fatalf("retry created %+v, want exactly the retro task", retried)
	}
	if got := len(mem.TasksForBundle(b.ID)); got != 3 {
		t.Fatalf("bundle holds %d tasks after retry, want 3", got)
	}
}

func TestExpandTemplateValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	tpl := mustCreateTemplate(t, mem, releaseTemplate())
	empty := mustCreateTemplate(t, mem, model.Template{Name: "Empty", TriggerType: model.TriggerManual})
	b := mustCreateBundle(t, mem, model.Bundle{Title: "B", AnchorDate: date(t, "2026-04-15")})

	if _, err := svc.ExpandTemplate(ctx, "missing", b.ID, b.AnchorDate); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing template: got %v, want ErrNotFound", err)
	}
	if _, err := svc.ExpandTemplate(ctx, tpl.ID, "missing", b.AnchorDate); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing bundle: got %v, want ErrNotFound", err)
	}
	if _, err := svc.ExpandTemplate(ctx, empty.ID, b.ID, b.AnchorDate); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty template: got %v, want ErrInvalidInput", err)
	}
	if _, err := svc.ExpandTemplate(ctx, tpl.ID, b.ID, dateutil.Date{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero anchor: got %v, want ErrInvalidInput", err)
	}
}

func TestCreateBundleFromTemplateInheritance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem, _ := newTestEngine(t, date(t, "2026-04-01"))

	tpl := mustCreateTemplate(t, mem, releaseTemplate())

	t.Run("defaults from template", func(t *testing.T) {
		b, tasks, err := svc.CreateBundleFromTemplate(ctx, CreateBundleInput{
			TemplateID: tpl.ID,
			AnchorDate: date(t, "2026-04-15"),
		})
		if err != nil {
			t.Fatalf("CreateBundleFromTemplate error: %v", err)
		}
		if b.Title != "Release" {
			t.Fatalf("Title = %q, want template name", b.Title)
		}
		if b.Emoji != "🚀" {
			t.Fatalf("Emoji = %q, want template emoji", b.Emoji)
		}
		if diff := cmp.Diff([]string{"release"}, b.Tags); diff != "" {
			t.Fatalf("Tags mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]model.BundleLink{{Name: "changelog"}}, b.BundleLinks); diff != "" {
			t.Fatalf("BundleLinks mismatch (-want +got):\n%s", diff)
		}
		if b.Stage != model.StagePreparation || b.Status != model.BundleActive {
			t.Fatalf("new bundle stage/status = %s/%s", b.Stage, b.Status)
		}
		if len(tasks) != 3 {
			t.Fatalf("expansion created %d tasks, want 3", len(tasks))
		}
	})

	t.Run("caller overrides win outright", func(t *testing.T) {
		b, _, err := svc.CreateBundleFromTemplate(ctx, CreateBundleInput{
			TemplateID: tpl.ID,
			Title:      "Custom title",
			AnchorDate: date(t, "2026-05-15"),
			Tags:       []string{"override"},
			Emoji:      "🎯",
			BundleLinks: []model.BundleLink{
				{Name: "board", URL: "https://example.test/board"},
			},
		})
		if err != nil {
			t.Fatalf("CreateBundleFromTemplate error: %v", err)
		}
		if b.Title != "Custom title" || b.Emoji != "🎯" {
			t.Fatalf("overrides not applied: %+v", b)
		}
		if diff := cmp.Diff([]string{"override"}, b.Tags); diff != "" {
			t.Fatalf("Tags mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]model.BundleLink{{Name: "board", URL: "https://example.test/board"}}, b.BundleLinks); diff != "" {
			t.Fatalf("BundleLinks mismatch (-want +got):\n%s", diff)
		}
	})
}
