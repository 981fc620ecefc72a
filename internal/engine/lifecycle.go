package engine

import (
	"context"
	"fmt"

	"planwork/internal/model"
	logx "planwork/pkg/logx"
)

// SetTaskStatus updates a task's status, enforcing completion gating and
// firing the milestone stage transition on the todo→done edge.
//
// Gating, checked before any write: a task whose RequiredLinkName is set
// cannot complete while Link is empty, and a task with RequiresFile cannot
// complete with zero attachments. A rejected update leaves the task
// unchanged and returns ErrInvalidState.
//
// The stage transition fires at most once per completing edge: re-asserting
// "done" on an already done task is a no-op and does not touch the bundle.
func (s *Service) SetTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) (model.Task, error) {
	switch status {
	case model.TaskTodo, model.TaskDone, model.TaskArchived:
	default:
		return model.Task{}, fmt.Errorf("unknown task status %q: %w", status, ErrInvalidInput)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.Status == status {
		return task, nil
	}

	completing := status == model.TaskDone
	if completing {
		if task.RequiredLinkName != "" && task.Link == "" {
			return model.Task{}, fmt.Errorf("task %s requires link %q before completion: %w", taskID, task.RequiredLinkName, ErrInvalidState)
		}
		if task.RequiresFile {
			n, err := s.store.CountAttachments(ctx, taskID)
			if err != nil {
				return model.Task{}, err
			}
			if n == 0 {
				return model.Task{}, fmt.Errorf("task %s requires an attached file before completion: %w", taskID, ErrInvalidState)
			}
		}
	}

	task, err = s.store.UpdateTask(ctx, taskID, model.TaskPatch{Status: &status})
	if err != nil {
		return model.Task{}, err
	}

	if completing {
		s.publish(EventTaskCompleted, task)
		if err := s.applyStageTransition(ctx, task); err != nil {
			return task, err
		}
	}
	return task, nil
}

// applyStageTransition advances the owning bundle's stage when a completed
// template task carries a target stage. Last writer wins; stage values are
// absolute targets, not deltas, so no ordering is enforced between
// concurrently completing milestones.
func (s *Service) applyStageTransition(ctx context.Context, task model.Task) error {
	if task.StageOnComplete == "" || task.Source != model.SourceTemplate || task.BundleID == "" {
		return nil
	}
	stage := task.StageOnComplete
	bundle, err := s.store.UpdateBundle(ctx, task.BundleID, model.BundlePatch{Stage: &stage})
	if err != nil {
		return fmt.Errorf("stage transition for bundle %s: %w", task.BundleID, err)
	}
	s.publish(EventBundleStageChanged, bundle)
	s.log.Info("bundle stage advanced",
		logx.String("bundle_id", bundle.ID),
		logx.String("stage", string(stage)),
		logx.String("task_id", task.ID),
	)
	return nil
}

// SetTaskLink fills a task's named link slot. Exposed so the gating check
// has a mutation path without the full API layer.
func (s *Service) SetTaskLink(ctx context.Context, taskID, link string) (model.Task, error) {
	return s.store.UpdateTask(ctx, taskID, model.TaskPatch{Link: &link})
}

// DismissNotification marks a notification as handled.
func (s *Service) DismissNotification(ctx context.Context, id string) (model.Notification, error) {
	dismissed := true
	return s.store.UpdateNotification(ctx, id, model.NotificationPatch{Dismissed: &dismissed})
}
