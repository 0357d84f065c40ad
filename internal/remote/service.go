// Package remote talks to the REST task service.
package remote

import (
	"context"

	"github.com/tasksync/tasksync/internal/schema"
)

// Service is the remote task service as seen by the sync core.
// Every call is a suspending operation that either returns the server's
// authoritative answer or an error wrapping schema.ErrNetwork.
type Service interface {
	// List fetches one page of tasks, sorted and filtered by the server.
	List(ctx context.Context, q schema.Query) (schema.Page, error)

	// Create sends a new task and returns the created record with its
	// server-assigned id.
	Create(ctx context.Context, task schema.Task) (schema.Task, error)

	// Update sends a partial update and returns the updated record.
	Update(ctx context.Context, id string, patch schema.TaskPatch) (schema.Task, error)

	// Delete removes a task.
	Delete(ctx context.Context, id string) error
}
