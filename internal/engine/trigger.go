package engine

import (
	"context"
	"errors"
	"fmt"

	"planwork/internal/dateutil"
	"planwork/internal/model"
	"planwork/internal/schedule"
	"planwork/internal/storage"
	logx "planwork/pkg/logx"
)

// TriggerResult reports one automatic trigger pass.
type TriggerResult struct {
	Created []model.Bundle
	// Skipped counts templates whose next occurrence already has a bundle.
	// Templates whose lead window has not opened yet are not counted.
	Skipped int
}

type triggerOutcome int

const (
	outcomeOutsideWindow triggerOutcome = iota
	outcomeExists
	outcomeCreated
)

// RunAutomaticTriggers walks every automatic template once. For each it
// computes the next date its schedule fires (today counts) and, if today has
// entered the lead window and no bundle exists for that occurrence yet,
// creates the bundle, expands it, and records a notification.
//
// Repeated runs inside the same lead window are no-ops beyond the existence
// check; per-template failures are logged and the loop continues.
func (s *Service) RunAutomaticTriggers(ctx context.Context) (TriggerResult, error) {
	var res TriggerResult

	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return res, err
	}
	today := s.now()

	for _, tpl := range templates {
		if tpl.TriggerType != model.TriggerAutomatic {
			continue
		}
		bundle, outcome, err := s.triggerTemplate(ctx, tpl, today)
		if err != nil {
			s.log.Error("automatic trigger failed, continuing",
				logx.String("template_id", tpl.ID),
				logx.Err(err),
			)
			continue
		}
		switch outcome {
		case outcomeCreated:
			res.Created = append(res.Created, bundle)
		case outcomeExists:
			res.Skipped++
		}
	}

	s.log.Info("automatic trigger run done",
		logx.String("today", today.String()),
		logx.Int("created", len(res.Created)),
		logx.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Service) triggerTemplate(ctx context.Context, tpl model.Template, today dateutil.Date) (model.Bundle, triggerOutcome, error) {
	next, ok := schedule.NextOccurrence(tpl.TriggerSchedule, today)
	if !ok {
		return model.Bundle{}, outcomeOutsideWindow, fmt.Errorf("schedule %q never fires: %w", tpl.TriggerSchedule, ErrInvalidInput)
	}
	leadStart := next.AddDays(-tpl.TriggerLeadDays)
	if today.Before(leadStart) {
		return model.Bundle{}, outcomeOutsideWindow, nil
	}

	if _, exists, err := s.store.FindBundleByTrigger(ctx, tpl.ID, next); err != nil {
		return model.Bundle{}, outcomeOutsideWindow, err
	} else if exists {
		return model.Bundle{}, outcomeExists, nil
	}

	b := s.inheritBundle(tpl, CreateBundleInput{
		TemplateID: tpl.ID,
		Title:      fmt.Sprintf("%s %s", tpl.Name, next),
		AnchorDate: next,
	})
	b, err := s.store.CreateTriggeredBundle(ctx, b)
	if errors.Is(err, storage.ErrDuplicate) {
		// Concurrent runner won the race between the check and the insert.
		return model.Bundle{}, outcomeExists, nil
	}
	if err != nil {
		return model.Bundle{}, outcomeOutsideWindow, err
	}

	if _, err := s.ExpandTemplate(ctx, tpl.ID, b.ID, next); err != nil {
		// The bundle stays; a later ExpandTemplate retry is deduplicated.
		return b, outcomeCreated, fmt.Errorf("expansion incomplete for bundle %s: %w", b.ID, err)
	}

	note := model.Notification{
		TemplateID: tpl.ID,
		BundleID:   b.ID,
		Message:    fmt.Sprintf("Bundle %q created for %s", b.Title, next),
	}
	note, err = s.store.CreateNotification(ctx, note)
	if err != nil {
		return b, outcomeCreated, err
	}
	s.publish(EventNotificationCreated, note)

	s.log.Info("bundle triggered",
		logx.String("template_id", tpl.ID),
		logx.String("bundle_id", b.ID),
		logx.String("anchor", next.String()),
	)
	return b, outcomeCreated, nil
}
