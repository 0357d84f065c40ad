// Package client wires the local store, connectivity monitor, request
// router, sync engine and status publisher into one session.
package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/tasksync/tasksync/internal/connectivity"
	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/router"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/store"
	"github.com/tasksync/tasksync/internal/syncer"
)

// Observer receives task changes made through the client.
type Observer interface {
	OnTaskCreated(task schema.Task)
	OnTaskUpdated(before, after schema.Task)
	OnTaskDeleted(id string, before *schema.Task)
}

// Config holds the collaborators of a client.
type Config struct {
	Store   *store.Store
	Remote  remote.Service
	Monitor *connectivity.Monitor

	// LogOutput receives component logs (default: stderr)
	LogOutput io.Writer
}

// Client is one sync session. Its status starts from the monitor's view of
// connectivity and lives until Stop.
type Client struct {
	Store     *store.Store
	Monitor   *connectivity.Monitor
	Router    *router.Router
	Engine    *syncer.Engine
	Publisher *status.Publisher

	logger *log.Logger

	mu        sync.Mutex
	ctx       context.Context
	observers []Observer
}

// New wires a client. A became-online transition of the monitor drains the
// queue; a became-offline transition publishes offline.
func New(config Config) (*Client, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("client needs a store")
	}
	if config.Remote == nil {
		return nil, fmt.Errorf("client needs a remote service")
	}
	out := config.LogOutput
	if out == nil {
		out = os.Stderr
	}
	mon := config.Monitor
	if mon == nil {
		mon = connectivity.New(true, &connectivity.Config{
			Logger: log.New(out, "[monitor] ", log.LstdFlags),
		})
	}

	initial := status.Offline
	if mon.Online() {
		initial = status.Online
	}
	pub := status.NewPublisher(initial)

	c := &Client{
		Store:     config.Store,
		Monitor:   mon,
		Router:    router.New(config.Store, config.Remote, mon, pub, log.New(out, "[router] ", log.LstdFlags)),
		Engine:    syncer.New(config.Store, config.Remote, mon, pub, log.New(out, "[sync] ", log.LstdFlags)),
		Publisher: pub,
		logger:    log.New(out, "[client] ", log.LstdFlags),
		ctx:       context.Background(),
	}
	mon.OnChange(c.onConnectivity)
	return c, nil
}

func (c *Client) onConnectivity(online bool) {
	if !online {
		c.Publisher.Publish(status.Offline)
		return
	}
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if err := c.Engine.Drain(ctx); err != nil {
		c.logger.Printf("Drain after reconnect failed: %v", err)
	}
}

// Start begins connectivity monitoring. When the client is online, queued
// actions left over from an earlier session are drained before Start
// returns.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	if !c.Monitor.Online() {
		c.Publisher.Publish(status.Offline)
		return nil
	}
	if err := c.Engine.Drain(ctx); err != nil {
		c.logger.Printf("Startup drain failed: %v", err)
	}
	return nil
}

// Stop ends monitoring and closes the store.
func (c *Client) Stop() error {
	var firstErr error
	if err := c.Monitor.Stop(); err != nil {
		firstErr = err
	}
	if err := c.Store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close store: %w", err)
	}
	return firstErr
}

// Watch registers an observer for task changes.
func (c *Client) Watch(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Client) each(fn func(Observer)) {
	c.mu.Lock()
	observers := append([]Observer{}, c.observers...)
	c.mu.Unlock()
	for _, o := range observers {
		fn(o)
	}
}

// Status returns the current sync status.
func (c *Client) Status() status.Status {
	return c.Publisher.Current()
}

// Subscribe observes status transitions. See status.Publisher.Subscribe.
func (c *Client) Subscribe() (<-chan status.Status, func()) {
	return c.Publisher.Subscribe()
}

// Sync drains the queue now.
func (c *Client) Sync(ctx context.Context) error {
	return c.Engine.Drain(ctx)
}

// List returns one page of tasks.
func (c *Client) List(ctx context.Context, q schema.Query) (schema.Page, error) {
	return c.Router.List(ctx, q)
}

// Get returns a cached task.
func (c *Client) Get(ctx context.Context, id string) (schema.Task, bool, error) {
	return c.Router.Get(ctx, id)
}

// Create adds a task.
func (c *Client) Create(ctx context.Context, task schema.Task) (schema.Task, error) {
	created, err := c.Router.Create(ctx, task)
	if err != nil {
		return schema.Task{}, err
	}
	c.each(func(o Observer) { o.OnTaskCreated(created) })
	return created, nil
}

// Update patches a task.
func (c *Client) Update(ctx context.Context, id string, patch schema.TaskPatch) (schema.Task, error) {
	before, _, err := c.Router.Get(ctx, id)
	if err != nil {
		c.logger.Printf("Failed to read cached task %s: %v", id, err)
	}
	updated, err := c.Router.Update(ctx, id, patch)
	if err != nil {
		return schema.Task{}, err
	}
	c.each(func(o Observer) { o.OnTaskUpdated(before, updated) })
	return updated, nil
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, id string) error {
	before, found, err := c.Router.Get(ctx, id)
	if err != nil {
		c.logger.Printf("Failed to read cached task %s: %v", id, err)
	}
	if err := c.Router.Delete(ctx, id); err != nil {
		return err
	}
	var prev *schema.Task
	if found {
		prev = &before
	}
	c.each(func(o Observer) { o.OnTaskDeleted(id, prev) })
	return nil
}

// Reorder moves dragID to targetID's position. See router.Router.Reorder.
func (c *Client) Reorder(ctx context.Context, dragID, targetID string) error {
	return c.Router.Reorder(ctx, dragID, targetID)
}

// Info summarizes the session state.
type Info struct {
	Status  status.Status `json:"status" yaml:"status"`
	Online  bool          `json:"online" yaml:"online"`
	Pending int           `json:"pending" yaml:"pending"`
	Mapped  int           `json:"mapped" yaml:"mapped"`
	Cached  int           `json:"cached" yaml:"cached"`
}

// Info reports status, queue length, id map size and cache size.
func (c *Client) Info(ctx context.Context) (Info, error) {
	pending, err := c.Engine.Pending(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read queue: %w", err)
	}
	idMap, err := c.Store.IDMap(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read id map: %w", err)
	}
	tasks, err := c.Store.Tasks(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read cache: %w", err)
	}
	return Info{
		Status:  c.Status(),
		Online:  c.Monitor.Online(),
		Pending: pending,
		Mapped:  len(idMap),
		Cached:  len(tasks),
	}, nil
}
