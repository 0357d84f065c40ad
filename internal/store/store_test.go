package store

import (
	"context"
	"io"
	"log"
	"reflect"
	"testing"

	"github.com/tasksync/tasksync/internal/schema"
)

func newTestStore(t *testing.T) (*Store, *MemoryKV) {
	t.Helper()
	kv := NewMemoryKV()
	return New(kv, log.New(io.Discard, "", 0)), kv
}

func TestStore_EmptyTables(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	tasks, err := s.Tasks(ctx)
	if err != nil || len(tasks) != 0 || tasks == nil {
		t.Errorf("Tasks() = %v, %v; want empty non-nil slice", tasks, err)
	}
	queue, err := s.Queue(ctx)
	if err != nil || len(queue) != 0 {
		t.Errorf("Queue() = %v, %v; want empty", queue, err)
	}
	idMap, err := s.IDMap(ctx)
	if err != nil || len(idMap) != 0 || idMap == nil {
		t.Errorf("IDMap() = %v, %v; want empty non-nil map", idMap, err)
	}
}

func TestStore_MalformedDataReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestStore(t)

	for _, key := range []string{CacheKey, QueueKey, IDMapKey} {
		if err := kv.Set(ctx, key, []byte("{not json")); err != nil {
			t.Fatalf("Set(%s) failed: %v", key, err)
		}
	}

	if tasks, err := s.Tasks(ctx); err != nil || len(tasks) != 0 {
		t.Errorf("Tasks() = %v, %v; want empty", tasks, err)
	}
	if queue, err := s.Queue(ctx); err != nil || len(queue) != 0 {
		t.Errorf("Queue() = %v, %v; want empty", queue, err)
	}
	if idMap, err := s.IDMap(ctx); err != nil || len(idMap) != 0 {
		t.Errorf("IDMap() = %v, %v; want empty", idMap, err)
	}

	// Writing after corruption replaces the bad value.
	if _, err := s.Enqueue(ctx, schema.NewDeleteAction("1")); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if queue, _ := s.Queue(ctx); len(queue) != 1 {
		t.Errorf("Queue() len = %d, want 1", len(queue))
	}
}

func TestStore_WrongShapeReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestStore(t)

	// Valid JSON, wrong type for the table.
	if err := kv.Set(ctx, IDMapKey, []byte(`["a","b"]`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if idMap, err := s.IDMap(ctx); err != nil || len(idMap) != 0 {
		t.Errorf("IDMap() = %v, %v; want empty", idMap, err)
	}
}

func TestStore_EnqueueKeepsFIFO(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ids := []string{"a", "b", "c"}
	for i, id := range ids {
		n, err := s.Enqueue(ctx, schema.NewDeleteAction(id))
		if err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
		if n != i+1 {
			t.Errorf("Enqueue() len = %d, want %d", n, i+1)
		}
	}

	queue, err := s.Queue(ctx)
	if err != nil {
		t.Fatalf("Queue() failed: %v", err)
	}
	for i, a := range queue {
		if a.ID != ids[i] {
			t.Errorf("queue[%d].ID = %q, want %q", i, a.ID, ids[i])
		}
	}
}

func TestStore_MergeTasks(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.InsertTask(ctx, schema.Task{ID: "local-1", Title: "offline", Status: schema.StatusTodo}); err != nil {
		t.Fatalf("InsertTask() failed: %v", err)
	}
	if err := s.InsertTask(ctx, schema.Task{ID: "7", Title: "seven", Description: "cached", Status: schema.StatusTodo}); err != nil {
		t.Fatalf("InsertTask() failed: %v", err)
	}

	server := []schema.Task{
		{ID: "7", Title: "seven!", Status: schema.StatusInProgress},
		{ID: "8", Title: "eight", Status: schema.StatusTodo},
		{Title: "no id"},
	}
	if err := s.MergeTasks(ctx, server...); err != nil {
		t.Fatalf("MergeTasks() failed: %v", err)
	}

	tasks, _ := s.Tasks(ctx)
	var gotIDs []string
	for _, task := range tasks {
		gotIDs = append(gotIDs, task.ID)
	}
	if want := []string{"local-1", "7", "8"}; !reflect.DeepEqual(gotIDs, want) {
		t.Fatalf("ids = %v, want %v", gotIDs, want)
	}
	if tasks[1].Title != "seven!" || tasks[1].Status != schema.StatusInProgress {
		t.Errorf("server fields should win: %+v", tasks[1])
	}
	if tasks[1].Description != "" {
		t.Errorf("server record should replace the cached one: %+v", tasks[1])
	}

	// Merging again is a no-op.
	before, _ := s.Tasks(ctx)
	if err := s.MergeTasks(ctx, server...); err != nil {
		t.Fatalf("second MergeTasks() failed: %v", err)
	}
	after, _ := s.Tasks(ctx)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("merge not idempotent:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestStore_ReplaceIDAndRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.InsertTask(ctx, schema.Task{ID: "local-1", Title: "a", Status: schema.StatusTodo})
	_ = s.InsertTask(ctx, schema.Task{ID: "2", Title: "b", Status: schema.StatusTodo})

	if found, err := s.ReplaceID(ctx, "local-1", "42"); err != nil || !found {
		t.Fatalf("ReplaceID() = %v, %v", found, err)
	}
	if found, err := s.ReplaceID(ctx, "local-9", "43"); err != nil || found {
		t.Errorf("ReplaceID(unknown) = %v, %v, want false", found, err)
	}
	if _, ok, _ := s.FindTask(ctx, "local-1"); ok {
		t.Error("temp id still present after ReplaceID")
	}
	task, ok, _ := s.FindTask(ctx, "42")
	if !ok || task.Title != "a" {
		t.Errorf("FindTask(42) = %+v, %v", task, ok)
	}

	if err := s.RemoveTask(ctx, "2"); err != nil {
		t.Fatalf("RemoveTask() failed: %v", err)
	}
	if err := s.RemoveTask(ctx, "missing"); err != nil {
		t.Errorf("RemoveTask(missing) = %v, want nil", err)
	}
	tasks, _ := s.Tasks(ctx)
	if len(tasks) != 1 || tasks[0].ID != "42" {
		t.Errorf("Tasks() = %+v", tasks)
	}
}

func TestStore_RefreshTask(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.InsertTask(ctx, schema.Task{ID: "7", Title: "a", Description: "old", Status: schema.StatusTodo})

	found, err := s.RefreshTask(ctx, schema.Task{ID: "7", Title: "b", Status: schema.StatusTodo})
	if err != nil || !found {
		t.Fatalf("RefreshTask() = %v, %v", found, err)
	}
	task, _, _ := s.FindTask(ctx, "7")
	if task.Title != "b" || task.Description != "" {
		t.Errorf("FindTask(7) = %+v", task)
	}

	found, err = s.RefreshTask(ctx, schema.Task{ID: "8", Title: "never cached", Status: schema.StatusTodo})
	if err != nil || found {
		t.Errorf("RefreshTask(unknown) = %v, %v, want false", found, err)
	}
	tasks, _ := s.Tasks(ctx)
	if len(tasks) != 1 {
		t.Errorf("RefreshTask appended: %+v", tasks)
	}
}

func TestStore_PutTask(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.PutTask(ctx, schema.Task{ID: "1", Title: "a", Status: schema.StatusTodo})
	_ = s.PutTask(ctx, schema.Task{ID: "1", Title: "b", Status: schema.StatusTodo})

	tasks, _ := s.Tasks(ctx)
	if len(tasks) != 1 || tasks[0].Title != "b" {
		t.Errorf("Tasks() = %+v", tasks)
	}
}

func TestStore_IDMapRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	want := map[string]string{"local-1": "42"}
	if err := s.SaveIDMap(ctx, want); err != nil {
		t.Fatalf("SaveIDMap() failed: %v", err)
	}
	got, err := s.IDMap(ctx)
	if err != nil {
		t.Fatalf("IDMap() failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("IDMap() = %v, want %v", got, want)
	}
}

func TestStore_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenSQLite(testDBPath(t))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	s := New(kv, log.New(io.Discard, "", 0))
	defer s.Close()

	if err := s.InsertTask(ctx, schema.Task{ID: "local-1", Title: "Buy milk", Status: schema.StatusTodo}); err != nil {
		t.Fatalf("InsertTask() failed: %v", err)
	}
	task, ok, err := s.FindTask(ctx, "local-1")
	if err != nil || !ok || task.Title != "Buy milk" {
		t.Errorf("FindTask() = %+v, %v, %v", task, ok, err)
	}
}
