package engine

import (
	"context"
	"errors"
	"fmt"

	"planwork/internal/dateutil"
	"planwork/internal/model"
	"planwork/internal/storage"
	logx "planwork/pkg/logx"
)

// CreateBundleInput carries a bundle creation request. Caller-supplied
// optional fields win outright over the template's values (no merge).
type CreateBundleInput struct {
	TemplateID string
	Title      string
	AnchorDate dateutil.Date

	// Optional overrides. A nil slice/empty string defers to the template.
	Tags        []string
	Emoji       string
	References  []model.Reference
	BundleLinks []model.BundleLink
}

// CreateBundleFromTemplate creates a bundle with template inheritance
// applied, then expands the template into it. The returned tasks are the
// ones created by this call.
//
// A partial expansion failure is surfaced, not rolled back: the bundle
// exists with the tasks created so far, and re-running ExpandTemplate on it
// is safe (deduplicated per refId).
func (s *Service) CreateBundleFromTemplate(ctx context.Context, in CreateBundleInput) (model.Bundle, []model.Task, error) {
	tpl, err := s.store.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return model.Bundle{}, nil, err
	}
	if in.AnchorDate.IsZero() {
		return model.Bundle{}, nil, fmt.Errorf("anchor date required: %w", ErrInvalidInput)
	}

	b := s.inheritBundle(tpl, in)
	b, err = s.store.CreateBundle(ctx, b)
	if err != nil {
		return model.Bundle{}, nil, err
	}

	tasks, err := s.ExpandTemplate(ctx, tpl.ID, b.ID, in.AnchorDate)
	if err != nil {
		return b, tasks, err
	}
	return b, tasks, nil
}

// inheritBundle applies bundle-level inheritance: caller value wins outright,
// template value is the fallback, and bundle link slots are seeded from the
// template's link definitions with empty urls.
func (s *Service) inheritBundle(tpl model.Template, in CreateBundleInput) model.Bundle {
	title := in.Title
	if title == "" {
		title = tpl.Name
	}
	b := model.Bundle{
		Title:      title,
		AnchorDate: in.AnchorDate,
		Stage:      model.StagePreparation,
		Status:     model.BundleActive,
		TemplateID: tpl.ID,
	}

	if in.Emoji != "" {
		b.Emoji = in.Emoji
	} else {
		b.Emoji = tpl.Emoji
	}
	if in.Tags != nil {
		b.Tags = in.Tags
	} else {
		b.Tags = append([]string(nil), tpl.Tags...)
	}
	if in.References != nil {
		b.References = in.References
	} else {
		b.References = append([]model.Reference(nil), tpl.References...)
	}
	if in.BundleLinks != nil {
		b.BundleLinks = in.BundleLinks
	} else {
		for _, def := range tpl.BundleLinkDefs {
			b.BundleLinks = append(b.BundleLinks, model.BundleLink{Name: def.Name})
		}
	}
	return b
}

// ExpandTemplate instantiates every task definition of the template into the
// bundle, dated relative to the anchor. Definitions whose refId already has
// a task in the bundle are skipped, which makes retrying a partially failed
// expansion safe.
//
// On a mid-loop storage failure the tasks created so far are returned along
// with the error; nothing is rolled back.
func (s *Service) ExpandTemplate(ctx context.Context, templateID, bundleID string, anchor dateutil.Date) ([]model.Task, error) {
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(tpl.TaskDefinitions) == 0 {
		return nil, fmt.Errorf("template %s has no task definitions: %w", templateID, ErrInvalidInput)
	}
	if anchor.IsZero() {
		return nil, fmt.Errorf("anchor date required: %w", ErrInvalidInput)
	}
	if _, err := s.store.GetBundle(ctx, bundleID); err != nil {
		return nil, err
	}

	existing, err := s.store.ListTemplateTaskRefs(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	var created []model.Task
	for i, def := range tpl.TaskDefinitions {
		if _, ok := existing[def.RefID]; ok {
			continue
		}
		task := instantiate(tpl, def, bundleID, anchor)
		stored, err := s.store.CreateTask(ctx, task)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				// Lost a race with a concurrent expansion of the same bundle.
				continue
			}
			return created, fmt.Errorf("expanding definition %d (%s): %w", i, def.RefID, err)
		}
		created = append(created, stored)
	}

	s.log.Debug("template expanded",
		logx.String("template_id", templateID),
		logx.String("bundle_id", bundleID),
		logx.String("anchor", anchor.String()),
		logx.Int("created", len(created)),
		logx.Int("pre_existing", len(existing)),
	)
	return created, nil
}

// instantiate builds one task instance from its definition. The explicit
// per-definition assignee wins over the template default; gating metadata is
// copied verbatim; the template's tags land on every produced task.
func instantiate(tpl model.Template, def model.TaskDefinition, bundleID string, anchor dateutil.Date) model.Task {
	assignee := def.AssigneeID
	if assignee == "" {
		assignee = tpl.DefaultAssigneeID
	}
	return model.Task{
		Description:      def.Description,
		Date:             anchor.AddDays(def.OffsetDays),
		Status:           model.TaskTodo,
		Source:           model.SourceTemplate,
		BundleID:         bundleID,
		TemplateTaskRef:  def.RefID,
		AssigneeID:       assignee,
		RequiredLinkName: def.RequiredLinkName,
		RequiresFile:     def.RequiresFile,
		InstructionsURL:  def.InstructionsURL,
		IsMilestone:      def.IsMilestone,
		StageOnComplete:  def.StageOnComplete,
		Tags:             append([]string(nil), tpl.Tags...),
	}
}
