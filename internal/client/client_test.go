package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tasksync/tasksync/internal/connectivity"
	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/router"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/store"
	"github.com/tasksync/tasksync/internal/testutil"
)

type recorder struct {
	mu       sync.Mutex
	statuses []status.Status
	events   []string
}

func (r *recorder) onStatus(s status.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) OnTaskCreated(task schema.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "created:"+task.ID)
}

func (r *recorder) OnTaskUpdated(before, after schema.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "updated:"+after.ID)
}

func (r *recorder) OnTaskDeleted(id string, before *schema.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "deleted:"+id)
}

func (r *recorder) published() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := make([]string, 0, len(r.statuses))
	for _, s := range r.statuses {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " ")
}

func newTestClient(t *testing.T, online bool, svc remote.Service, st *store.Store) (*Client, *recorder) {
	t.Helper()
	if st == nil {
		st = store.New(store.NewMemoryKV(), log.New(io.Discard, "", 0))
	}
	mon := connectivity.New(online, &connectivity.Config{Logger: log.New(io.Discard, "", 0)})
	c, err := New(Config{Store: st, Remote: svc, Monitor: mon, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Stop() })

	rec := &recorder{}
	c.Publisher.OnPublish(rec.onStatus)
	c.Watch(rec)
	return c, rec
}

func listIDs(t *testing.T, c *Client) []string {
	t.Helper()
	page, err := c.List(context.Background(), schema.Query{Page: 1, Limit: 50})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	ids := make([]string, 0, len(page.Items))
	for _, task := range page.Items {
		ids = append(ids, task.ID)
	}
	return ids
}

func pending(t *testing.T, c *Client) int {
	t.Helper()
	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	return info.Pending
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Remote: testutil.NewFakeRemote(1)}); err == nil {
		t.Error("New() without store succeeded")
	}
	st := store.New(store.NewMemoryKV(), log.New(io.Discard, "", 0))
	if _, err := New(Config{Store: st}); err == nil {
		t.Error("New() without remote succeeded")
	}
}

func TestNew_InitialStatusFollowsMonitor(t *testing.T) {
	on, _ := newTestClient(t, true, testutil.NewFakeRemote(1), nil)
	if on.Status() != status.Online {
		t.Errorf("online client status = %q", on.Status())
	}
	off, _ := newTestClient(t, false, testutil.NewFakeRemote(1), nil)
	if off.Status() != status.Offline {
		t.Errorf("offline client status = %q", off.Status())
	}
}

func TestOfflineCreateAppearsInList(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	c, rec := newTestClient(t, false, fake, nil)

	task, err := c.Create(context.Background(), schema.Task{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !router.IsTempID(task.ID) {
		t.Fatalf("id = %q, want a local- id", task.ID)
	}

	ids := listIDs(t, c)
	if len(ids) != 1 || ids[0] != task.ID {
		t.Errorf("List() ids = %v, want [%s]", ids, task.ID)
	}
	if got := pending(t, c); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("remote calls = %+v", fake.Calls())
	}
	if rec.events[0] != "created:"+task.ID {
		t.Errorf("events = %v", rec.events)
	}
}

func TestReconnectDrainsQueue(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	c, rec := newTestClient(t, false, fake, nil)

	if _, err := c.Create(context.Background(), schema.Task{Title: "Buy milk"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	c.Monitor.Set(true)

	ids := listIDs(t, c)
	if len(ids) != 1 || ids[0] != "42" {
		t.Errorf("List() ids = %v, want [42]", ids)
	}
	if got := pending(t, c); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
	if got := rec.published(); got != "offline syncing online" {
		t.Errorf("published = %q, want %q", got, "offline syncing online")
	}
	if c.Status() != status.Online {
		t.Errorf("status = %q", c.Status())
	}
}

func TestOfflineUpdateOfOfflineCreate(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	c, _ := newTestClient(t, false, fake, nil)
	ctx := context.Background()

	task, err := c.Create(ctx, schema.Task{Title: "Buy milk"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Update(ctx, task.ID, schema.TaskPatch{Description: schema.Ptr("oat milk")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	c.Monitor.Set(true)

	calls := fake.Calls()
	if len(calls) != 2 || calls[0] != (testutil.Call{Method: "create", ID: "42"}) || calls[1] != (testutil.Call{Method: "update", ID: "42"}) {
		t.Fatalf("calls = %+v, want create then update against 42", calls)
	}
	srv, _ := fake.Task("42")
	if srv.Description != "oat milk" {
		t.Errorf("server task = %+v", srv)
	}
	idMap, _ := c.Store.IDMap(ctx)
	if idMap[task.ID] != "42" {
		t.Errorf("id map = %v", idMap)
	}
}

func TestUpdateDoneTaskRejected(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	c, rec := newTestClient(t, true, fake, nil)
	ctx := context.Background()
	if err := c.Store.InsertTask(ctx, schema.Task{ID: "9", Title: "finished", Status: schema.StatusDone}); err != nil {
		t.Fatal(err)
	}

	_, err := c.Update(ctx, "9", schema.TaskPatch{Status: schema.Ptr(schema.StatusTodo)})
	if !errors.Is(err, schema.ErrImmutableResource) {
		t.Fatalf("Update() error = %v, want ErrImmutableResource", err)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("remote calls = %+v", fake.Calls())
	}
	if got := pending(t, c); got != 0 {
		t.Errorf("pending = %d", got)
	}
	if len(rec.events) != 0 {
		t.Errorf("observer saw a rejected update: %v", rec.events)
	}
}

func TestPartialDrainFailure(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	fake.Seed(schema.Task{ID: "7", Title: "seven", Status: schema.StatusTodo})
	c, _ := newTestClient(t, false, fake, nil)
	ctx := context.Background()
	c.Store.InsertTask(ctx, schema.Task{ID: "7", Title: "seven", Status: schema.StatusTodo})

	if _, err := c.Create(ctx, schema.Task{Title: "one"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Update(ctx, "7", schema.TaskPatch{Title: schema.Ptr("seven!")}); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "7"); err != nil {
		t.Fatal(err)
	}
	fake.FailCall(2, nil)

	c.Monitor.Set(true)

	if c.Status() != status.Error {
		t.Errorf("status = %q, want error", c.Status())
	}
	queue, _ := c.Store.Queue(ctx)
	if len(queue) != 2 || queue[0].Type != schema.ActionUpdate || queue[1].Type != schema.ActionDelete {
		t.Fatalf("queue = %+v, want update and delete", queue)
	}
	if calls := fake.Calls(); len(calls) != 2 {
		t.Errorf("calls = %+v, delete must not run", calls)
	}

	// An explicit sync retries the tail.
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if got := pending(t, c); got != 0 {
		t.Errorf("pending after retry = %d", got)
	}
	if _, ok := fake.Task("7"); ok {
		t.Error("task 7 still on server")
	}
}

func TestGoingOfflinePublishesOffline(t *testing.T) {
	c, rec := newTestClient(t, true, testutil.NewFakeRemote(1), nil)

	c.Monitor.Set(false)
	if c.Status() != status.Offline {
		t.Errorf("status = %q, want offline", c.Status())
	}
	if got := rec.published(); got != "offline" {
		t.Errorf("published = %q", got)
	}
}

func TestStartDrainsLeftoverQueue(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	st := store.New(store.NewMemoryKV(), log.New(io.Discard, "", 0))
	ctx := context.Background()
	st.InsertTask(ctx, schema.Task{ID: "local-5", Title: "from last time", Status: schema.StatusTodo})
	st.Enqueue(ctx, schema.NewCreateAction("local-5", schema.Task{Title: "from last time", Status: schema.StatusTodo}))

	c, _ := newTestClient(t, true, fake, st)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := pending(t, c); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
	if ids := listIDs(t, c); len(ids) != 1 || ids[0] != "42" {
		t.Errorf("ids = %v", ids)
	}
}

func TestEndToEndOverHTTPWithSQLite(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	srv := testutil.NewServer(fake)
	defer srv.Close()
	svc := remote.NewHTTPService(srv.URL, srv.Client())

	path := filepath.Join(t.TempDir(), "tasksync.db")
	kv, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	st := store.New(kv, log.New(io.Discard, "", 0))

	mon := connectivity.New(false, &connectivity.Config{Logger: log.New(io.Discard, "", 0)})
	c, err := New(Config{Store: st, Remote: svc, Monitor: mon, LogOutput: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	local, err := c.Create(ctx, schema.Task{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := c.Update(ctx, local.ID, schema.TaskPatch{Status: schema.Ptr(schema.StatusInProgress)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	mon.Set(true)
	if c.Status() != status.Online {
		t.Fatalf("status = %q, want online", c.Status())
	}
	server, ok := fake.Task("42")
	if !ok || server.Status != schema.StatusInProgress || server.Title != "Buy milk" {
		t.Fatalf("server task = %+v, %v", server, ok)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// The resolved state survives a restart.
	kv, err = store.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	reopened := store.New(kv, log.New(io.Discard, "", 0))
	defer reopened.Close()

	tasks, _ := reopened.Tasks(ctx)
	if len(tasks) != 1 || tasks[0].ID != "42" {
		t.Errorf("cache after restart = %+v", tasks)
	}
	queue, _ := reopened.Queue(ctx)
	if len(queue) != 0 {
		t.Errorf("queue after restart = %+v", queue)
	}
	idMap, _ := reopened.IDMap(ctx)
	if idMap[local.ID] != "42" {
		t.Errorf("id map after restart = %v", idMap)
	}
}

// flakyCacheKV fails the next read of the task cache once armed.
type flakyCacheKV struct {
	store.KV
	mu    sync.Mutex
	armed bool
}

func (f *flakyCacheKV) arm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
}

func (f *flakyCacheKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	fail := f.armed && key == store.CacheKey
	if fail {
		f.armed = false
	}
	f.mu.Unlock()
	if fail {
		return nil, false, errors.New("disk unavailable")
	}
	return f.KV.Get(ctx, key)
}

func TestCacheReadFailureIsLogged(t *testing.T) {
	fake := testutil.NewFakeRemote(42)
	fake.Seed(schema.Task{ID: "7", Title: "seven", Status: schema.StatusTodo})
	kv := &flakyCacheKV{KV: store.NewMemoryKV()}
	st := store.New(kv, log.New(io.Discard, "", 0))
	ctx := context.Background()
	if err := st.InsertTask(ctx, schema.Task{ID: "7", Title: "seven", Status: schema.StatusTodo}); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	mon := connectivity.New(true, &connectivity.Config{Logger: log.New(io.Discard, "", 0)})
	c, err := New(Config{Store: st, Remote: fake, Monitor: mon, LogOutput: &logs})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Stop()

	kv.arm()
	updated, err := c.Update(ctx, "7", schema.TaskPatch{Title: schema.Ptr("seven!")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "seven!" {
		t.Errorf("Update() = %+v", updated)
	}
	if !strings.Contains(logs.String(), "Failed to read cached task 7: disk unavailable") {
		t.Errorf("update log = %q", logs.String())
	}

	logs.Reset()
	kv.arm()
	if err := c.Delete(ctx, "7"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !strings.Contains(logs.String(), "Failed to read cached task 7: disk unavailable") {
		t.Errorf("delete log = %q", logs.String())
	}
	if _, ok := fake.Task("7"); ok {
		t.Error("task 7 still on server")
	}
}
