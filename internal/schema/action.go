package schema

import (
	"time"

	"github.com/google/uuid"
)

// ActionType is the kind of queued offline mutation.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// QueuedAction is one offline mutation waiting to be replayed.
//
// Actions are stored and replayed in FIFO order. Later actions may refer to
// the TempID of an earlier create through their ID field.
type QueuedAction struct {
	// ActionID identifies the action in logs; it is not sent to the server.
	ActionID string     `json:"actionId,omitempty"`
	Type     ActionType `json:"type"`

	// ID is the target task id (real or temporary). Empty for creates.
	ID string `json:"id,omitempty"`

	// TempID is the locally synthesized id of a create.
	TempID string `json:"tempId,omitempty"`

	// Task is the payload of a create.
	Task *Task `json:"task,omitempty"`

	// Patch is the payload of an update.
	Patch *TaskPatch `json:"patch,omitempty"`

	QueuedAt time.Time `json:"queuedAt,omitempty"`
}

// NewCreateAction builds a create action for a task synthesized offline.
func NewCreateAction(tempID string, task Task) QueuedAction {
	payload := task.Clone()
	payload.ID = ""
	return QueuedAction{
		ActionID: uuid.NewString(),
		Type:     ActionCreate,
		TempID:   tempID,
		Task:     &payload,
		QueuedAt: time.Now().UTC(),
	}
}

// NewUpdateAction builds an update action for the given id.
func NewUpdateAction(id string, patch TaskPatch) QueuedAction {
	return QueuedAction{
		ActionID: uuid.NewString(),
		Type:     ActionUpdate,
		ID:       id,
		Patch:    &patch,
		QueuedAt: time.Now().UTC(),
	}
}

// NewDeleteAction builds a delete action for the given id.
func NewDeleteAction(id string) QueuedAction {
	return QueuedAction{
		ActionID: uuid.NewString(),
		Type:     ActionDelete,
		ID:       id,
		QueuedAt: time.Now().UTC(),
	}
}

// ShortID returns a prefix of ActionID suitable for log lines.
func (a QueuedAction) ShortID() string {
	if len(a.ActionID) > 8 {
		return a.ActionID[:8]
	}
	return a.ActionID
}
