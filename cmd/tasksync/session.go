package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/tasksync/tasksync/internal/client"
	"github.com/tasksync/tasksync/internal/config"
	"github.com/tasksync/tasksync/internal/connectivity"
	"github.com/tasksync/tasksync/internal/logging"
	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/store"
)

type sessionMode int

const (
	// modeCommand checks once, drains leftovers and logs to the log file only.
	modeCommand sessionMode = iota

	// modeDaemon keeps probing and also logs to stderr.
	modeDaemon

	// modeInspect checks once and never replays the queue.
	modeInspect
)

// session is one configured client plus the resources it owns.
type session struct {
	cfg    *config.Config
	remote *remote.HTTPService
	client *client.Client
	logOut io.Writer

	logCloser io.Closer
}

// openSession loads config, opens the store and starts the client. setup
// runs after wiring and before the startup drain, so observers it
// registers see that drain.
func openSession(ctx context.Context, mode sessionMode, setup func(*session) error) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var logOut io.Writer
	var logCloser io.Closer
	if mode == modeDaemon {
		logOut, logCloser = logging.Output(cfg.Log)
	} else {
		logOut, logCloser = logging.FileOnly(cfg.Log)
	}

	s := &session{
		cfg:       cfg,
		remote:    remote.NewHTTPService(cfg.Server.BaseURL, &http.Client{Timeout: remote.APITimeout}).WithHealthPath(cfg.Server.HealthPath),
		logOut:    logOut,
		logCloser: logCloser,
	}

	kv, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	st := store.New(kv, logging.New(logOut, "store"))

	interval, _ := cfg.PollInterval()
	monCfg := &connectivity.Config{
		PollInterval: interval,
		OfflineFile:  cfg.Monitor.OfflineFile,
		Logger:       logging.New(logOut, "monitor"),
	}
	online := false
	switch {
	case forceOffline:
	case mode == modeInspect:
		online = !fileExists(cfg.Monitor.OfflineFile) && s.remote.Ping(ctx) == nil
	default:
		monCfg.Check = s.remote.Ping
	}

	c, err := client.New(client.Config{
		Store:     st,
		Remote:    s.remote,
		Monitor:   connectivity.New(online, monCfg),
		LogOutput: logOut,
	})
	if err != nil {
		st.Close()
		logCloser.Close()
		return nil, err
	}
	s.client = c

	if setup != nil {
		if err := setup(s); err != nil {
			s.Close()
			return nil, err
		}
	}
	if mode != modeInspect {
		if err := c.Start(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close stops the client and flushes the log file.
func (s *session) Close() {
	if err := s.client.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	s.logCloser.Close()
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
