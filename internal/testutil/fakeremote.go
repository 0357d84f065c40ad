// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
)

var _ remote.Service = (*FakeRemote)(nil)

// Call records one request made to a FakeRemote.
type Call struct {
	Method string // list, create, update, delete
	ID     string // target id; for create the assigned id
}

// FakeRemote is an in-memory implementation of remote.Service for testing.
// Ids are assigned sequentially as decimal strings.
type FakeRemote struct {
	mu      sync.Mutex
	tasks   []schema.Task
	nextID  int
	calls   []Call
	failAt  map[int]error
	healthy bool

	// Error injection for testing
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error
}

// NewFakeRemote creates an empty FakeRemote whose first created task gets
// id firstID.
func NewFakeRemote(firstID int) *FakeRemote {
	return &FakeRemote{
		nextID:  firstID,
		failAt:  make(map[int]error),
		healthy: true,
	}
}

// Seed adds tasks as if they already existed on the server.
func (f *FakeRemote) Seed(tasks ...schema.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		f.tasks = append(f.tasks, t.Clone())
	}
}

// Tasks returns a copy of the server-side tasks in insertion order.
func (f *FakeRemote) Tasks() []schema.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schema.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Task returns the server-side task with the given id.
func (f *FakeRemote) Task(id string) (schema.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexOf(id); i >= 0 {
		return f.tasks[i].Clone(), true
	}
	return schema.Task{}, false
}

// Calls returns every call made so far, in order. Failed calls are included.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// FailCall makes the n-th call (1-based, counted across all methods) fail
// with err. A nil err fails with a generic network error.
func (f *FakeRemote) FailCall(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("%w: injected failure on call %d", schema.ErrNetwork, n)
	}
	f.failAt[n] = err
}

// SetHealthy controls the answer of the fake health endpoint.
func (f *FakeRemote) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

// Ping reports an error while the fake is unhealthy. It matches
// connectivity.CheckFunc.
func (f *FakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return fmt.Errorf("%w: service unhealthy", schema.ErrNetwork)
	}
	return nil
}

// record logs a call and returns the injected error for it, if any.
// Callers must hold f.mu.
func (f *FakeRemote) record(method, id string, methodErr error) (int, error) {
	f.calls = append(f.calls, Call{Method: method, ID: id})
	n := len(f.calls)
	if err, ok := f.failAt[n]; ok {
		return n, err
	}
	return n, methodErr
}

func (f *FakeRemote) indexOf(id string) int {
	for i, t := range f.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func notFound(method, id string) error {
	return fmt.Errorf("%w: %w", schema.ErrNetwork, &remote.StatusError{
		Method: method,
		URL:    "/tasks/" + id,
		Code:   http.StatusNotFound,
	})
}

// List implements remote.Service.
func (f *FakeRemote) List(ctx context.Context, q schema.Query) (schema.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.record("list", "", f.ListErr); err != nil {
		return schema.Page{}, err
	}
	return schema.SelectPage(f.tasks, q), nil
}

// Create implements remote.Service.
func (f *FakeRemote) Create(ctx context.Context, task schema.Task) (schema.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := strconv.Itoa(f.nextID)
	n, err := f.record("create", id, f.CreateErr)
	if err != nil {
		f.calls[n-1].ID = ""
		return schema.Task{}, err
	}
	f.nextID++

	created := task.Clone()
	created.ID = id
	f.tasks = append(f.tasks, created)
	return created.Clone(), nil
}

// Update implements remote.Service.
func (f *FakeRemote) Update(ctx context.Context, id string, patch schema.TaskPatch) (schema.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.record("update", id, f.UpdateErr); err != nil {
		return schema.Task{}, err
	}
	i := f.indexOf(id)
	if i < 0 {
		return schema.Task{}, notFound(http.MethodPatch, id)
	}
	f.tasks[i] = patch.Apply(f.tasks[i])
	return f.tasks[i].Clone(), nil
}

// Delete implements remote.Service.
func (f *FakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.record("delete", id, f.DeleteErr); err != nil {
		return err
	}
	i := f.indexOf(id)
	if i < 0 {
		return notFound(http.MethodDelete, id)
	}
	f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
	return nil
}
