// Package syncer replays actions queued while offline against the remote
// service once connectivity returns.
//
// A drain is a strictly sequential fold over the queue: action N+1 is sent
// only after action N has completed. Creates resolve temporary ids to
// server ids; later queued actions that reference the temporary id are
// rewritten before they replay. The first failure stops the drain and the
// unprocessed tail, including the failed action, stays queued.
package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/store"
)

// Connectivity reports whether the remote service is reachable.
type Connectivity interface {
	Online() bool
}

// ReplayFunc observes each successfully replayed action. id is the server
// id the action ended up targeting.
type ReplayFunc func(action schema.QueuedAction, id string)

// Engine drains the pending-action queue.
type Engine struct {
	store     *store.Store
	remote    remote.Service
	conn      Connectivity
	publisher *status.Publisher
	logger    *log.Logger

	draining atomic.Bool

	hooksMu sync.Mutex
	hooks   []ReplayFunc
}

// New creates an engine. conn may be nil, in which case drains always run.
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, svc remote.Service, conn Connectivity, publisher *status.Publisher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:     st,
		remote:    svc,
		conn:      conn,
		publisher: publisher,
		logger:    logger,
	}
}

// OnReplay registers a callback run after each action replays.
func (e *Engine) OnReplay(fn ReplayFunc) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// Draining reports whether a drain is in progress.
func (e *Engine) Draining() bool {
	return e.draining.Load()
}

// Pending returns the number of queued actions.
func (e *Engine) Pending(ctx context.Context) (int, error) {
	queue, err := e.store.Queue(ctx)
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

// Drain replays the queue. A call made while another drain is running
// returns nil immediately. A drain is skipped while offline.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.draining.CompareAndSwap(false, true) {
		e.logger.Println("Drain already in progress, skipping")
		return nil
	}
	defer e.draining.Store(false)

	if e.conn != nil && !e.conn.Online() {
		e.logger.Println("Offline, drain deferred")
		return nil
	}

	queue, err := e.store.Queue(ctx)
	if err != nil {
		e.publisher.Publish(status.Error)
		return fmt.Errorf("failed to load queue: %w", err)
	}
	if len(queue) == 0 {
		e.publisher.Publish(status.Online)
		return nil
	}

	idMap, err := e.store.IDMap(ctx)
	if err != nil {
		e.publisher.Publish(status.Error)
		return fmt.Errorf("failed to load id map: %w", err)
	}

	e.publisher.Publish(status.Syncing)
	e.logger.Printf("Draining %d queued action(s)", len(queue))

	for len(queue) > 0 {
		action := queue[0]
		rest := queue[1:]

		id, err := e.replay(ctx, action, rest, idMap)
		if err != nil {
			e.logger.Printf("Replay of %s %s (action %s) failed, %d action(s) left queued: %v",
				action.Type, target(action), action.ShortID(), len(queue), err)
			e.publisher.Publish(status.Error)
			return fmt.Errorf("failed to replay %s %s: %w", action.Type, target(action), err)
		}

		queue = rest
		if err := e.store.SaveQueue(ctx, queue); err != nil {
			e.publisher.Publish(status.Error)
			return fmt.Errorf("failed to persist queue: %w", err)
		}
		e.runHooks(action, id)
	}

	e.logger.Println("Queue drained")
	e.publisher.Publish(status.Online)
	return nil
}

// replay sends one action and applies its result locally. For a create,
// references to the temporary id in rest are rewritten in place.
func (e *Engine) replay(ctx context.Context, action schema.QueuedAction, rest []schema.QueuedAction, idMap map[string]string) (string, error) {
	switch action.Type {
	case schema.ActionCreate:
		if action.Task == nil {
			return "", fmt.Errorf("%w: create without payload", schema.ErrMissingIdentifier)
		}
		created, err := e.remote.Create(ctx, *action.Task)
		if err != nil {
			return "", err
		}
		if created.ID == "" {
			return "", fmt.Errorf("%w: server returned no id", schema.ErrMissingIdentifier)
		}

		if action.TempID == "" {
			e.logger.Printf("Created %s", created.ID)
			return created.ID, nil
		}
		for i := range rest {
			if rest[i].ID == action.TempID {
				rest[i].ID = created.ID
			}
		}
		// The server now holds the task, so the dequeue is persisted before
		// any other bookkeeping. Otherwise a later failure would leave the
		// create at the head of the queue and the next drain would post it
		// again.
		if err := e.store.SaveQueue(ctx, rest); err != nil {
			return "", fmt.Errorf("failed to persist queue: %w", err)
		}

		idMap[action.TempID] = created.ID
		if err := e.store.SaveIDMap(ctx, idMap); err != nil {
			e.logger.Printf("Failed to persist id map entry %s -> %s: %v", action.TempID, created.ID, err)
		}
		found, err := e.store.ReplaceID(ctx, action.TempID, created.ID)
		if err != nil {
			e.logger.Printf("Failed to rewrite cached id %s -> %s: %v", action.TempID, created.ID, err)
		} else if found {
			e.refresh(ctx, created, rest, idMap)
		}
		e.logger.Printf("Created %s as %s", action.TempID, created.ID)
		return created.ID, nil

	case schema.ActionUpdate:
		id := resolve(action.ID, idMap)
		if id == "" {
			return "", fmt.Errorf("%w: update %s", schema.ErrMissingIdentifier, action.ShortID())
		}
		var patch schema.TaskPatch
		if action.Patch != nil {
			patch = *action.Patch
		}
		updated, err := e.remote.Update(ctx, id, patch)
		if err != nil {
			return "", err
		}
		if updated.ID == "" {
			updated.ID = id
		}
		e.refresh(ctx, updated, rest, idMap)
		return id, nil

	case schema.ActionDelete:
		id := resolve(action.ID, idMap)
		if id == "" {
			return "", fmt.Errorf("%w: delete %s", schema.ErrMissingIdentifier, action.ShortID())
		}
		if err := e.remote.Delete(ctx, id); err != nil {
			return "", err
		}
		if err := e.store.RemoveTask(ctx, id); err != nil {
			return "", fmt.Errorf("failed to remove cached task: %w", err)
		}
		return id, nil

	default:
		return "", fmt.Errorf("unknown action type %q", action.Type)
	}
}

// refresh copies a server record over its cached task. The cache is left
// alone when the task is no longer cached or when a later queued action
// still targets it; that action's replay decides the final state.
func (e *Engine) refresh(ctx context.Context, task schema.Task, rest []schema.QueuedAction, idMap map[string]string) {
	for _, a := range rest {
		if resolve(a.ID, idMap) == task.ID {
			return
		}
	}
	if _, err := e.store.RefreshTask(ctx, task); err != nil {
		e.logger.Printf("Failed to refresh cached task %s: %v", task.ID, err)
	}
}

func (e *Engine) runHooks(action schema.QueuedAction, id string) {
	e.hooksMu.Lock()
	hooks := append([]ReplayFunc{}, e.hooks...)
	e.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(action, id)
	}
}

// resolve maps a temporary id to its server id, falling back to id itself.
func resolve(id string, idMap map[string]string) string {
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}

func target(a schema.QueuedAction) string {
	if a.Type == schema.ActionCreate {
		return a.TempID
	}
	return a.ID
}
