// Package model defines the aggregates the engine operates on: templates,
// recurring rules, bundles, tasks and notifications.
//
// Partial updates go through the allow-listed patch structs at the bottom of
// this file; storage drivers only ever apply fields present in a patch, so
// internal fields cannot be mutated through an update call.
package model

import (
	"time"

	"planwork/internal/dateutil"
	"planwork/internal/schedule"
)

// TriggerType controls how a template produces bundles.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerAutomatic TriggerType = "automatic"
)

// BundleStage is the ordered lifecycle of a bundle. Transitions are driven by
// milestone task data, not by a fixed total order: any stage may be the
// target of any milestone.
type BundleStage string

const (
	StagePreparation BundleStage = "preparation"
	StageAnnounced   BundleStage = "announced"
	StageAfterEvent  BundleStage = "after-event"
	StageDone        BundleStage = "done"
)

// BundleStatus separates live bundles from archived ones.
type BundleStatus string

const (
	BundleActive   BundleStatus = "active"
	BundleArchived BundleStatus = "archived"
)

// TaskStatus is the task lifecycle.
type TaskStatus string

const (
	TaskTodo     TaskStatus = "todo"
	TaskDone     TaskStatus = "done"
	TaskArchived TaskStatus = "archived"
)

// TaskSource records where a task came from.
type TaskSource string

const (
	SourceManual    TaskSource = "manual"
	SourceTemplate  TaskSource = "template"
	SourceRecurring TaskSource = "recurring"
	SourceTelegram  TaskSource = "telegram"
	SourceEmail     TaskSource = "email"
)

// Reference is a named external link carried by templates and bundles.
type Reference struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BundleLink is a named slot on a bundle that callers fill with a URL later.
type BundleLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BundleLinkDefinition declares a link slot on a template. Instantiated
// bundles receive one empty BundleLink per definition.
type BundleLinkDefinition struct {
	Name string `json:"name"`
}

// TaskDefinition is one task blueprint inside a template. Order within the
// template is significant; RefID is the stable correlation key copied onto
// every instance the definition produces.
type TaskDefinition struct {
	RefID            string      `json:"ref_id"`
	Description      string      `json:"description"`
	OffsetDays       int         `json:"offset_days"`
	InstructionsURL  string      `json:"instructions_url,omitempty"`
	AssigneeID       string      `json:"assignee_id,omitempty"`
	RequiredLinkName string      `json:"required_link_name,omitempty"`
	RequiresFile     bool        `json:"requires_file,omitempty"`
	IsMilestone      bool        `json:"is_milestone,omitempty"`
	StageOnComplete  BundleStage `json:"stage_on_complete,omitempty"`
}

// Template is a reusable bundle blueprint. Instantiated tasks reference it
// only by id and refId, never by pointer, so templates can change without
// rewriting history.
type Template struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Category          string                 `json:"category,omitempty"`
	TaskDefinitions   []TaskDefinition       `json:"task_definitions"`
	TriggerType       TriggerType            `json:"trigger_type"`
	TriggerSchedule   string                 `json:"trigger_schedule,omitempty"`
	TriggerLeadDays   int                    `json:"trigger_lead_days,omitempty"`
	DefaultAssigneeID string                 `json:"default_assignee_id,omitempty"`
	Tags              []string               `json:"tags,omitempty"`
	Emoji             string                 `json:"emoji,omitempty"`
	References        []Reference            `json:"references,omitempty"`
	BundleLinkDefs    []BundleLinkDefinition `json:"bundle_link_defs,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// RecurringRule produces one dated task per matching day.
//
// Schedule (a 5-field cron expression) is the canonical representation. The
// legacy simplified form (Frequency + DaySelector) is still accepted as
// input and normalized via NormalizedSchedule.
type RecurringRule struct {
	ID          string             `json:"id"`
	Description string             `json:"description"`
	Schedule    string             `json:"schedule,omitempty"`
	Frequency   schedule.Frequency `json:"frequency,omitempty"`
	DaySelector int                `json:"day_selector,omitempty"`
	Enabled     bool               `json:"enabled"`
	AssigneeID  string             `json:"assignee_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NormalizedSchedule returns the rule's cron expression, deriving one from
// the legacy simplified form when the cron field is empty.
func (r RecurringRule) NormalizedSchedule() string {
	if r.Schedule != "" {
		return r.Schedule
	}
	return schedule.FromSimple(r.Frequency, r.DaySelector)
}

// Bundle is a unit of work built around an anchor date.
type Bundle struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	AnchorDate  dateutil.Date `json:"anchor_date"`
	Stage       BundleStage   `json:"stage"`
	Status      BundleStatus  `json:"status"`
	TemplateID  string        `json:"template_id,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Emoji       string        `json:"emoji,omitempty"`
	References  []Reference   `json:"references,omitempty"`
	BundleLinks []BundleLink  `json:"bundle_links,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Task is a dated unit of work.
//
// Date is a pure function of the task's origin (anchor + offset for template
// tasks, the matched day for recurring tasks, explicit for manual/webhook
// sources) and is never recomputed after creation.
type Task struct {
	ID               string        `json:"id"`
	Description      string        `json:"description"`
	Date             dateutil.Date `json:"date"`
	Status           TaskStatus    `json:"status"`
	Source           TaskSource    `json:"source"`
	BundleID         string        `json:"bundle_id,omitempty"`
	TemplateTaskRef  string        `json:"template_task_ref,omitempty"`
	RecurringRuleID  string        `json:"recurring_rule_id,omitempty"`
	AssigneeID       string        `json:"assignee_id,omitempty"`
	RequiredLinkName string        `json:"required_link_name,omitempty"`
	Link             string        `json:"link,omitempty"`
	RequiresFile     bool          `json:"requires_file,omitempty"`
	InstructionsURL  string        `json:"instructions_url,omitempty"`
	IsMilestone      bool          `json:"is_milestone,omitempty"`
	StageOnComplete  BundleStage   `json:"stage_on_complete,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Notification tells the presentation layer that an automatic trigger fired.
type Notification struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	BundleID   string    `json:"bundle_id"`
	Message    string    `json:"message"`
	Dismissed  bool      `json:"dismissed"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskPatch is the allow-listed partial update for tasks. Nil fields are
// left untouched. Date is deliberately absent: engine-computed dates are
// immutable after creation.
type TaskPatch struct {
	Description      *string
	Status           *TaskStatus
	AssigneeID       *string
	Link             *string
	RequiredLinkName *string
	RequiresFile     *bool
	InstructionsURL  *string
	Tags             *[]string
}

// BundlePatch is the allow-listed partial update for bundles.
type BundlePatch struct {
	Title       *string
	Stage       *BundleStage
	Status      *BundleStatus
	Tags        *[]string
	Emoji       *string
	References  *[]Reference
	BundleLinks *[]BundleLink
}

// NotificationPatch is the allow-listed partial update for notifications.
type NotificationPatch struct {
	Dismissed *bool
}
