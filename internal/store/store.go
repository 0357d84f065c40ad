package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/tasksync/tasksync/internal/schema"
)

// Stable storage keys for the three tables.
const (
	CacheKey = "task-cache"
	QueueKey = "task-queue"
	IDMapKey = "task-id-map"
)

// Store gives typed access to the task cache, the pending-action queue and
// the temporary-id map.
//
// Read-modify-write helpers hold an internal lock, so the router and the
// sync engine may share one Store.
type Store struct {
	kv     KV
	logger *log.Logger
	mu     sync.Mutex
}

// New wraps a KV backend. If logger is nil, a default logger writing to
// stderr is used.
func New(kv KV, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{kv: kv, logger: logger}
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// readJSON decodes the value under key into out. Missing keys leave out
// untouched. Malformed values are logged and reported as ErrMalformedStorage
// so callers can fall back to an empty table.
func (s *Store) readJSON(ctx context.Context, key string, out any) error {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Printf("WARNING: discarding malformed %s: %v", key, err)
		return fmt.Errorf("%w: %s: %v", schema.ErrMalformedStorage, key, err)
	}
	return nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

// ===== Cache =====

// Tasks returns the cached tasks in insertion order.
func (s *Store) Tasks(ctx context.Context) ([]schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks(ctx)
}

func (s *Store) tasks(ctx context.Context) ([]schema.Task, error) {
	var tasks []schema.Task
	if err := s.readJSON(ctx, CacheKey, &tasks); err != nil {
		if isMalformed(err) {
			return []schema.Task{}, nil
		}
		return nil, err
	}
	if tasks == nil {
		tasks = []schema.Task{}
	}
	return tasks, nil
}

// SaveTasks replaces the whole cache.
func (s *Store) SaveTasks(ctx context.Context, tasks []schema.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(ctx, CacheKey, tasks)
}

// FindTask looks up a cached task by id.
func (s *Store) FindTask(ctx context.Context, id string) (schema.Task, bool, error) {
	tasks, err := s.Tasks(ctx)
	if err != nil {
		return schema.Task{}, false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return schema.Task{}, false, nil
}

// InsertTask appends a task to the cache.
func (s *Store) InsertTask(ctx context.Context, task schema.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	return s.writeJSON(ctx, CacheKey, append(tasks, task))
}

// MergeTasks reconciles server records into the cache. A server record
// replaces the cached task with the same id; unknown ids are appended. Records without an id are
// ignored. Merging the same record twice is the same as merging it once.
func (s *Store) MergeTasks(ctx context.Context, incoming ...schema.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.tasks(ctx)
	if err != nil {
		return err
	}

	index := make(map[string]int, len(tasks))
	merged := make([]schema.Task, 0, len(tasks)+len(incoming))
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if i, dup := index[t.ID]; dup {
			merged[i] = schema.Merge(merged[i], t)
			continue
		}
		index[t.ID] = len(merged)
		merged = append(merged, t)
	}

	for _, t := range incoming {
		if t.ID == "" {
			continue
		}
		if i, ok := index[t.ID]; ok {
			merged[i] = schema.Merge(merged[i], t)
			continue
		}
		index[t.ID] = len(merged)
		merged = append(merged, t.Clone())
	}

	return s.writeJSON(ctx, CacheKey, merged)
}

// PutTask replaces the cached task with the same id, or appends it.
func (s *Store) PutTask(ctx context.Context, task schema.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = task
			found = true
		}
	}
	if !found {
		tasks = append(tasks, task)
	}
	return s.writeJSON(ctx, CacheKey, tasks)
}

// RemoveTask drops the task with the given id from the cache.
// Removing an unknown id is a no-op.
func (s *Store) RemoveTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.tasks(ctx)
	if err != nil {
		return err
	}
	kept := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	return s.writeJSON(ctx, CacheKey, kept)
}

// ReplaceID rewrites a cached task's id from tempID to realID. The bool
// reports whether a cached task carried tempID.
func (s *Store) ReplaceID(ctx context.Context, tempID, realID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.tasks(ctx)
	if err != nil {
		return false, err
	}
	found := false
	for i := range tasks {
		if tasks[i].ID == tempID {
			tasks[i].ID = realID
			found = true
		}
	}
	if !found {
		return false, nil
	}
	return true, s.writeJSON(ctx, CacheKey, tasks)
}

// RefreshTask replaces the cached task with the same id by task. Unlike
// MergeTasks it never appends; the bool reports whether an entry matched.
func (s *Store) RefreshTask(ctx context.Context, task schema.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.tasks(ctx)
	if err != nil {
		return false, err
	}
	found := false
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = task.Clone()
			found = true
		}
	}
	if !found {
		return false, nil
	}
	return true, s.writeJSON(ctx, CacheKey, tasks)
}

// ===== Queue =====

// Queue returns the pending actions in FIFO order.
func (s *Store) Queue(ctx context.Context) ([]schema.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue(ctx)
}

func (s *Store) queue(ctx context.Context) ([]schema.QueuedAction, error) {
	var queue []schema.QueuedAction
	if err := s.readJSON(ctx, QueueKey, &queue); err != nil {
		if isMalformed(err) {
			return []schema.QueuedAction{}, nil
		}
		return nil, err
	}
	if queue == nil {
		queue = []schema.QueuedAction{}
	}
	return queue, nil
}

// SaveQueue replaces the whole queue.
func (s *Store) SaveQueue(ctx context.Context, queue []schema.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if queue == nil {
		queue = []schema.QueuedAction{}
	}
	return s.writeJSON(ctx, QueueKey, queue)
}

// Enqueue appends an action to the tail of the queue and returns the new
// queue length.
func (s *Store) Enqueue(ctx context.Context, action schema.QueuedAction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, err := s.queue(ctx)
	if err != nil {
		return 0, err
	}
	queue = append(queue, action)
	if err := s.writeJSON(ctx, QueueKey, queue); err != nil {
		return 0, err
	}
	return len(queue), nil
}

// ===== Id map =====

// IDMap returns the temp id → server id mapping.
func (s *Store) IDMap(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idMap := map[string]string{}
	if err := s.readJSON(ctx, IDMapKey, &idMap); err != nil {
		if isMalformed(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	if idMap == nil {
		idMap = map[string]string{}
	}
	return idMap, nil
}

// SaveIDMap replaces the id map.
func (s *Store) SaveIDMap(ctx context.Context, idMap map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(ctx, IDMapKey, idMap)
}

func isMalformed(err error) bool {
	return errors.Is(err, schema.ErrMalformedStorage)
}
