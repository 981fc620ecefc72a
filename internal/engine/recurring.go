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

// GenerateResult reports one recurring generation pass.
type GenerateResult struct {
	Created []model.Task
	// Skipped counts (rule, date) pairs that matched but already had a task.
	Skipped int
}

// GenerateRecurring enumerates every enabled rule against every date in the
// inclusive [start, end] range and creates the missing task instances.
//
// Per-rule failures are logged and neither created nor skipped; one bad rule
// must not halt the cycle. The range itself is validated up front: a
// reversed range or one longer than the configured bound is rejected before
// any write.
func (s *Service) GenerateRecurring(ctx context.Context, start, end dateutil.Date) (GenerateResult, error) {
	var res GenerateResult

	if start.IsZero() || end.IsZero() {
		return res, fmt.Errorf("start and end dates required: %w", ErrInvalidInput)
	}
	if end.Before(start) {
		return res, fmt.Errorf("end %s before start %s: %w", end, start, ErrInvalidInput)
	}
	if days := start.DaysUntil(end) + 1; days > s.maxRangeDays {
		return res, fmt.Errorf("range of %d days exceeds bound of %d: %w", days, s.maxRangeDays, ErrInvalidInput)
	}

	rules, err := s.store.ListRecurringRules(ctx)
	if err != nil {
		return res, err
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		created, skipped, err := s.generateForRule(ctx, rule, start, end)
		if err != nil {
			s.log.Error("recurring rule failed, continuing",
				logx.String("rule_id", rule.ID),
				logx.Err(err),
			)
			continue
		}
		res.Created = append(res.Created, created...)
		res.Skipped += skipped
	}

	s.log.Info("recurring generation done",
		logx.String("start", start.String()),
		logx.String("end", end.String()),
		logx.Int("created", len(res.Created)),
		logx.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Service) generateForRule(ctx context.Context, rule model.RecurringRule, start, end dateutil.Date) (created []model.Task, skipped int, err error) {
	expr := rule.NormalizedSchedule()
	for d := start; !d.After(end); d = d.AddDays(1) {
		if !schedule.MatchesDate(expr, d) {
			continue
		}
		if _, exists, err := s.store.FindRecurringTask(ctx, rule.ID, d); err != nil {
			return created, skipped, err
		} else if exists {
			skipped++
			continue
		}
		task := model.Task{
			Description:     rule.Description,
			Date:            d,
			Status:          model.TaskTodo,
			Source:          model.SourceRecurring,
			RecurringRuleID: rule.ID,
			AssigneeID:      rule.AssigneeID,
		}
		stored, err := s.store.CreateTask(ctx, task)
		if errors.Is(err, storage.ErrDuplicate) {
			// Concurrent generation pass won the race; same outcome as exists.
			skipped++
			continue
		}
		if err != nil {
			return created, skipped, err
		}
		created = append(created, stored)
	}
	return created, skipped, nil
}
