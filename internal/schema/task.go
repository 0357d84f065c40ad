// Package schema provides the task and queued-action data structures shared
// by the tasksync client packages.
package schema

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// PriorityLevel is the coarse importance label shown next to a task.
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityMedium PriorityLevel = "medium"
	PriorityHigh   PriorityLevel = "high"
)

// Valid reports whether p is one of the known priority levels.
func (p PriorityLevel) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

const (
	// MaxTitleLength is the maximum number of characters in a title.
	MaxTitleLength = 80

	// MaxDescriptionLength is the maximum number of characters in a description.
	MaxDescriptionLength = 240

	// HighPriorityWindow bounds how far out a high priority task may be due.
	HighPriorityWindow = 7 * 24 * time.Hour

	// DateLayout is the layout used for due dates without a time component.
	DateLayout = "2006-01-02"
)

// Task is a single task record as exchanged with the remote service and
// stored in the local cache.
//
// Timestamps and due dates are kept as strings so that records round-trip
// through the server and the cache byte-for-byte. Date-like strings sort
// lexicographically.
type Task struct {
	// ID is server-assigned; empty or a temporary id for unsynced tasks.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Title         string        `json:"title" yaml:"title"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
	Status        Status        `json:"status" yaml:"status"`
	PriorityLevel PriorityLevel `json:"priorityLevel,omitempty" yaml:"priorityLevel,omitempty"`

	// Priority is the ordering rank; nil sorts as 0.
	Priority *int `json:"priority,omitempty" yaml:"priority,omitempty"`

	DueDate   string `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	CreatedAt string `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// IsDone reports whether the task reached the terminal status.
// Done tasks are read-only.
func (t *Task) IsDone() bool {
	return t.Status == StatusDone
}

// PriorityValue returns the rank, treating a missing priority as 0.
func (t *Task) PriorityValue() int {
	if t.Priority == nil {
		return 0
	}
	return *t.Priority
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	if t.Priority != nil {
		p := *t.Priority
		t.Priority = &p
	}
	return t
}

// Validate checks field lengths and enum values.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if n := utf8.RuneCountInString(t.Title); n > MaxTitleLength {
		return fmt.Errorf("%w: title must be %d characters or less (got %d)", ErrInvalidTask, MaxTitleLength, n)
	}
	if n := utf8.RuneCountInString(t.Description); n > MaxDescriptionLength {
		return fmt.Errorf("%w: description must be %d characters or less (got %d)", ErrInvalidTask, MaxDescriptionLength, n)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, t.Status)
	}
	if t.PriorityLevel != "" && !t.PriorityLevel.Valid() {
		return fmt.Errorf("%w: unknown priority level %q", ErrInvalidTask, t.PriorityLevel)
	}
	return nil
}

// ValidateNew runs Validate plus the rules that apply when a task is first
// created: a high priority task must be due within the next seven days.
func (t *Task) ValidateNew(now time.Time) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.PriorityLevel != PriorityHigh {
		return nil
	}
	if t.DueDate == "" {
		return fmt.Errorf("%w: high priority tasks need a due date", ErrInvalidTask)
	}
	due, err := ParseDate(t.DueDate)
	if err != nil {
		return fmt.Errorf("%w: invalid due date %q", ErrInvalidTask, t.DueDate)
	}
	// Date-only values mean the end of that day.
	if len(t.DueDate) == len(DateLayout) {
		due = due.Add(24*time.Hour - time.Nanosecond)
	}
	if due.Before(now) || due.After(now.Add(HighPriorityWindow)) {
		return fmt.Errorf("%w: high priority tasks must be due within 7 days", ErrInvalidTask)
	}
	return nil
}

// SetDefaults fills status, priority level and timestamps for a new task.
func (t *Task) SetDefaults(now time.Time) {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.PriorityLevel == "" {
		t.PriorityLevel = PriorityMedium
	}
	stamp := now.UTC().Format(time.RFC3339)
	if t.CreatedAt == "" {
		t.CreatedAt = stamp
	}
	if t.UpdatedAt == "" {
		t.UpdatedAt = stamp
	}
}

// ParseDate accepts either a plain date or an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// TaskPatch carries a partial update. Only non-nil fields are applied.
type TaskPatch struct {
	Title         *string        `json:"title,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Status        *Status        `json:"status,omitempty"`
	PriorityLevel *PriorityLevel `json:"priorityLevel,omitempty"`
	Priority      *int           `json:"priority,omitempty"`
	DueDate       *string        `json:"dueDate,omitempty"`
	UpdatedAt     *string        `json:"updatedAt,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.PriorityLevel == nil && p.Priority == nil && p.DueDate == nil &&
		p.UpdatedAt == nil
}

// Apply returns a copy of t with the patch applied.
func (p TaskPatch) Apply(t Task) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.PriorityLevel != nil {
		out.PriorityLevel = *p.PriorityLevel
	}
	if p.Priority != nil {
		v := *p.Priority
		out.Priority = &v
	}
	if p.DueDate != nil {
		out.DueDate = *p.DueDate
	}
	if p.UpdatedAt != nil {
		out.UpdatedAt = *p.UpdatedAt
	}
	return out
}

// Merge reconciles a cached task with the server's record of it. The
// server record is authoritative: every field comes from it, including
// fields it cleared. Only a missing server id falls back to the cached id.
// Merging the same record twice yields the same result as merging it once.
func Merge(cached, server Task) Task {
	out := server.Clone()
	if out.ID == "" {
		out.ID = cached.ID
	}
	return out
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
