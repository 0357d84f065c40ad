// Package connectivity tracks whether the remote task service is reachable
// and notifies listeners on online/offline transitions.
//
// Two platform signals feed the monitor:
//
//   - a health check polled at a fixed interval (reachable = online)
//   - an override file watched with fsnotify (present = forced offline)
//
// With neither signal configured the monitor reports "always online" unless
// a caller flips it with Set.
package connectivity

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CheckFunc checks reachability of the remote service. A nil error means
// the service answered.
type CheckFunc func(ctx context.Context) error

// Listener is called on every transition with the new state.
type Listener func(online bool)

// Config configures the monitor's platform signals.
type Config struct {
	// PollInterval is how often Check is called (default: 5s).
	PollInterval time.Duration

	// CheckTimeout bounds a single check (default: 2s).
	CheckTimeout time.Duration

	// Check pings the remote service. Nil disables polling.
	Check CheckFunc

	// OfflineFile, when it exists, forces the monitor offline.
	// Empty disables the override.
	OfflineFile string

	// Logger for monitor activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 5 * time.Second,
		CheckTimeout: 2 * time.Second,
		Logger:       log.New(os.Stderr, "[monitor] ", log.LstdFlags),
	}
}

// Monitor holds the process-wide connectivity flag.
type Monitor struct {
	config *Config

	mu        sync.Mutex
	online    bool
	reachable bool
	forced    bool
	listeners []Listener

	// notifyMu serializes listener dispatch so transitions are delivered
	// in the order they happened.
	notifyMu sync.Mutex

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a monitor whose initial state is online.
func New(online bool, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = defaults.CheckTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Monitor{
		config:    config,
		online:    online,
		reachable: online,
	}
}

// Online reports the current connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a listener for became-online / became-offline.
func (m *Monitor) OnChange(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Set reports reachability from an external signal. If the override file
// is present the monitor stays offline regardless. Listeners run
// synchronously before Set returns.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	m.reachable = online
	m.mu.Unlock()
	m.recompute()
}

func (m *Monitor) setForced(forced bool) {
	m.mu.Lock()
	m.forced = forced
	m.mu.Unlock()
	m.recompute()
}

// recompute derives the effective state and notifies on transitions.
func (m *Monitor) recompute() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	next := m.reachable && !m.forced
	changed := next != m.online
	m.online = next
	listeners := append([]Listener{}, m.listeners...)
	m.mu.Unlock()

	if !changed {
		return
	}

	if next {
		m.config.Logger.Println("Became online")
	} else {
		m.config.Logger.Println("Became offline")
	}
	for _, fn := range listeners {
		fn(next)
	}
}

// Start evaluates both signals once and then watches them in the
// background until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.running = true
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.config.OfflineFile != "" {
		if err := m.watchOverride(ctx); err != nil {
			cancel()
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return err
		}
	}

	if m.config.Check != nil {
		m.checkOnce(ctx)
		m.wg.Add(1)
		go m.pollLoop(ctx)
	}

	return nil
}

// Stop ends background watching and waits for goroutines to exit.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()

	var err error
	if m.watcher != nil {
		if cerr := m.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
	}
	m.wg.Wait()
	return err
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce(ctx)
		}
	}
}

func (m *Monitor) checkOnce(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.config.CheckTimeout)
	err := m.config.Check(pctx)
	cancel()

	if ctx.Err() != nil {
		return
	}
	if err != nil && m.Online() {
		m.config.Logger.Printf("Health check failed: %v", err)
	}
	m.Set(err == nil)
}

// watchOverride watches the directory holding the override file, since the
// file itself may not exist yet.
func (m *Monitor) watchOverride(ctx context.Context) error {
	path, err := filepath.Abs(m.config.OfflineFile)
	if err != nil {
		return fmt.Errorf("failed to resolve offline file: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create offline file directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	m.watcher = watcher

	m.setForced(fileExists(path))

	m.wg.Add(1)
	go m.processEvents(ctx, path)
	return nil
}

func (m *Monitor) processEvents(ctx context.Context, path string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				m.setForced(true)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				m.setForced(false)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
