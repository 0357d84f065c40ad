// Package router decides, per task operation, whether to serve from the
// remote service or from the local cache and pending-action queue.
package router

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/store"
)

// TempIDPrefix marks ids synthesized for tasks created offline.
const TempIDPrefix = "local-"

// ReorderLimit bounds the number of tasks renumbered by Reorder.
const ReorderLimit = 1000

// Connectivity reports whether the remote service is reachable.
type Connectivity interface {
	Online() bool
}

// Router serves task operations online or offline.
type Router struct {
	store     *store.Store
	remote    remote.Service
	conn      Connectivity
	publisher *status.Publisher
	logger    *log.Logger

	// Now is the clock used for timestamps and temp ids.
	Now func() time.Time

	mu       sync.Mutex
	lastTemp int64
}

// New creates a router. If logger is nil, a default logger writing to
// stderr is used.
func New(st *store.Store, svc remote.Service, conn Connectivity, publisher *status.Publisher, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(os.Stderr, "[router] ", log.LstdFlags)
	}
	return &Router{
		store:     st,
		remote:    svc,
		conn:      conn,
		publisher: publisher,
		logger:    logger,
		Now:       time.Now,
	}
}

// IsTempID reports whether id was synthesized offline.
func IsTempID(id string) bool {
	return len(id) > len(TempIDPrefix) && id[:len(TempIDPrefix)] == TempIDPrefix
}

// newTempID returns local-<unix nanos>, bumped past the previous value so
// ids stay unique within the session even on a coarse clock.
func (r *Router) newTempID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.Now().UnixNano()
	if n <= r.lastTemp {
		n = r.lastTemp + 1
	}
	r.lastTemp = n
	return TempIDPrefix + strconv.FormatInt(n, 10)
}

func (r *Router) stamp() string {
	return r.Now().UTC().Format(time.RFC3339)
}

// queueOffline enqueues an action and signals the offline state.
func (r *Router) queueOffline(ctx context.Context, action schema.QueuedAction) error {
	n, err := r.store.Enqueue(ctx, action)
	if err != nil {
		return fmt.Errorf("failed to queue %s: %w", action.Type, err)
	}
	r.logger.Printf("Queued %s %s (action %s, %d pending)", action.Type, actionTarget(action), action.ShortID(), n)
	r.publisher.Publish(status.Offline)
	return nil
}

func actionTarget(a schema.QueuedAction) string {
	if a.Type == schema.ActionCreate {
		return a.TempID
	}
	return a.ID
}

// Get returns the cached task with the given id.
func (r *Router) Get(ctx context.Context, id string) (schema.Task, bool, error) {
	return r.store.FindTask(ctx, id)
}

// List returns one page of tasks. Online, the server answers and its items
// are merged into the cache. Offline, the cache is filtered, sorted and
// paged locally.
func (r *Router) List(ctx context.Context, q schema.Query) (schema.Page, error) {
	if q.SortBy == "" {
		q.SortBy = schema.SortCreatedAt
	}
	if q.Order == "" {
		q.Order = schema.Asc
	}
	if err := q.Validate(); err != nil {
		return schema.Page{}, err
	}

	if !r.conn.Online() {
		tasks, err := r.store.Tasks(ctx)
		if err != nil {
			return schema.Page{}, fmt.Errorf("failed to read cache: %w", err)
		}
		return schema.SelectPage(tasks, q), nil
	}

	page, err := r.remote.List(ctx, q)
	if err != nil {
		return schema.Page{}, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	if err := r.store.MergeTasks(ctx, page.Items...); err != nil {
		return schema.Page{}, fmt.Errorf("failed to merge tasks: %w", err)
	}
	return page, nil
}

// Create adds a task. Offline, the task gets a temporary id, is inserted
// into the cache right away and a create action is queued.
func (r *Router) Create(ctx context.Context, task schema.Task) (schema.Task, error) {
	now := r.Now()
	task.ID = ""
	task.SetDefaults(now)
	if err := task.ValidateNew(now); err != nil {
		return schema.Task{}, err
	}
	if task.Priority == nil {
		next, err := r.nextPriority(ctx)
		if err != nil {
			return schema.Task{}, err
		}
		task.Priority = &next
	}

	if !r.conn.Online() {
		task.ID = r.newTempID()
		if err := r.store.InsertTask(ctx, task); err != nil {
			return schema.Task{}, fmt.Errorf("failed to cache task: %w", err)
		}
		if err := r.queueOffline(ctx, schema.NewCreateAction(task.ID, task)); err != nil {
			return schema.Task{}, err
		}
		return task, nil
	}

	created, err := r.remote.Create(ctx, task)
	if err != nil {
		return schema.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	if err := r.store.MergeTasks(ctx, created); err != nil {
		return schema.Task{}, fmt.Errorf("failed to merge task: %w", err)
	}
	return created, nil
}

// nextPriority ranks a new task after every cached one.
func (r *Router) nextPriority(ctx context.Context) (int, error) {
	tasks, err := r.store.Tasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache: %w", err)
	}
	highest := 0
	for _, t := range tasks {
		if p := t.PriorityValue(); p > highest {
			highest = p
		}
	}
	return highest + 1, nil
}

// Update applies a partial update. Done tasks are rejected with
// schema.ErrImmutableResource before any network or queue access.
func (r *Router) Update(ctx context.Context, id string, patch schema.TaskPatch) (schema.Task, error) {
	if id == "" {
		return schema.Task{}, schema.ErrMissingIdentifier
	}
	cached, ok, err := r.store.FindTask(ctx, id)
	if err != nil {
		return schema.Task{}, fmt.Errorf("failed to read cache: %w", err)
	}
	if ok && cached.IsDone() {
		return schema.Task{}, fmt.Errorf("%w: task %s", schema.ErrImmutableResource, id)
	}
	if patch.UpdatedAt == nil {
		patch.UpdatedAt = schema.Ptr(r.stamp())
	}
	if ok {
		next := patch.Apply(cached)
		if err := next.Validate(); err != nil {
			return schema.Task{}, err
		}
	}

	if !r.conn.Online() {
		if !ok {
			return schema.Task{}, fmt.Errorf("%w: task %s is not cached", schema.ErrNotFound, id)
		}
		updated := patch.Apply(cached)
		if err := r.store.PutTask(ctx, updated); err != nil {
			return schema.Task{}, fmt.Errorf("failed to cache task: %w", err)
		}
		if err := r.queueOffline(ctx, schema.NewUpdateAction(id, patch)); err != nil {
			return schema.Task{}, err
		}
		return updated, nil
	}

	updated, err := r.remote.Update(ctx, id, patch)
	if err != nil {
		return schema.Task{}, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if updated.ID == "" {
		updated.ID = id
	}
	if err := r.store.MergeTasks(ctx, updated); err != nil {
		return schema.Task{}, fmt.Errorf("failed to merge task: %w", err)
	}
	return updated, nil
}

// Delete removes a task.
func (r *Router) Delete(ctx context.Context, id string) error {
	if id == "" {
		return schema.ErrMissingIdentifier
	}

	if !r.conn.Online() {
		if err := r.store.RemoveTask(ctx, id); err != nil {
			return fmt.Errorf("failed to remove cached task: %w", err)
		}
		return r.queueOffline(ctx, schema.NewDeleteAction(id))
	}

	if err := r.remote.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if err := r.store.RemoveTask(ctx, id); err != nil {
		return fmt.Errorf("failed to remove cached task: %w", err)
	}
	return nil
}

// Reorder moves the dragged task to the target's position in priority
// order, renumbers every task 1..n and updates the tasks whose rank changed.
// Updates run one at a time; the first failure stops the reorder and is
// returned, leaving earlier updates applied. Done tasks keep their rank.
func (r *Router) Reorder(ctx context.Context, dragID, targetID string) error {
	if dragID == "" || targetID == "" {
		return schema.ErrMissingIdentifier
	}
	if dragID == targetID {
		return nil
	}

	page, err := r.List(ctx, schema.Query{Page: 1, Limit: ReorderLimit, SortBy: schema.SortPriority, Order: schema.Asc})
	if err != nil {
		return err
	}
	tasks := page.Items

	from, to := -1, -1
	for i, t := range tasks {
		switch t.ID {
		case dragID:
			from = i
		case targetID:
			to = i
		}
	}
	if from < 0 {
		return fmt.Errorf("%w: task %s", schema.ErrNotFound, dragID)
	}
	if to < 0 {
		return fmt.Errorf("%w: task %s", schema.ErrNotFound, targetID)
	}
	if tasks[from].IsDone() {
		return fmt.Errorf("%w: task %s", schema.ErrImmutableResource, dragID)
	}

	moved := make([]schema.Task, 0, len(tasks))
	moved = append(moved, tasks[:from]...)
	moved = append(moved, tasks[from+1:]...)
	moved = append(moved[:to], append([]schema.Task{tasks[from]}, moved[to:]...)...)

	for i, t := range moved {
		rank := i + 1
		if t.Priority != nil && *t.Priority == rank {
			continue
		}
		if t.IsDone() {
			r.logger.Printf("Skipping rank change for done task %s", t.ID)
			continue
		}
		if _, err := r.Update(ctx, t.ID, schema.TaskPatch{Priority: schema.Ptr(rank)}); err != nil {
			return fmt.Errorf("failed to reorder task %s: %w", t.ID, err)
		}
	}
	return nil
}
