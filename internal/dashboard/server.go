// Package dashboard serves a live WebSocket feed of sync status and task
// changes.
//
// Connected clients first receive a welcome message carrying the current
// sync status, then every broadcast made afterwards.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeStatus carries a sync status transition
	MessageTypeStatus MessageType = "status"

	// MessageTypeTaskUpdate indicates a task was created, updated, or deleted
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeReplay indicates a queued action reached the server
	MessageTypeReplay MessageType = "replay"

	// MessageTypeStats carries cache and queue counters
	MessageTypeStats MessageType = "stats"
)

const (
	// outboxSize is how many undelivered messages a client may lag behind
	// before it is disconnected.
	outboxSize = 64

	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Message is one frame sent to dashboard clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// WelcomeFunc builds the first message sent to a new client.
type WelcomeFunc func() Message

// Config holds server configuration
type Config struct {
	// Host to bind (default: 127.0.0.1)
	Host string

	// Port to listen on (default: 7777, 0 picks a free port)
	Port int

	// Welcome builds the greeting for new clients (default: empty status)
	Welcome WelcomeFunc

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:   "127.0.0.1",
		Port:   7777,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// subscriber is one connected client. Messages are queued on outbox and
// written by the client's own goroutine, so a slow client never holds up
// the others.
type subscriber struct {
	conn   *websocket.Conn
	outbox chan []byte
	cancel context.CancelFunc
}

// Server fans dashboard messages out to WebSocket clients.
type Server struct {
	addr    string
	welcome WelcomeFunc
	logger  *log.Logger

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	subs     map[*subscriber]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server. Nothing listens until Start.
func NewServer(config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	logger := config.Logger
	if logger == nil {
		logger = defaults.Logger
	}
	host := config.Host
	if host == "" {
		host = defaults.Host
	}
	welcome := config.Welcome
	if welcome == nil {
		welcome = func() Message { return Message{Type: MessageTypeStatus} }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(host, fmt.Sprint(config.Port)),
		welcome: welcome,
		logger:  logger,
		subs:    make(map[*subscriber]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens and serves /ws, /health and an index page in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	routes := http.NewServeMux()
	routes.HandleFunc("/ws", s.handleWebSocket)
	routes.HandleFunc("/health", s.handleHealth)
	routes.HandleFunc("/", s.handleRoot)
	srv := &http.Server{
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.httpSrv = srv
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down. It is safe
// to call on a server that was never started.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.httpSrv
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscriber]struct{})
	s.mu.Unlock()

	s.cancel()
	for _, sub := range subs {
		_ = sub.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("server shutdown error: %w", shutdownErr)
		}
	}
	s.wg.Wait()

	if srv != nil {
		s.logger.Println("Dashboard stopped")
	}
	return err
}

// Broadcast queues msg for every connected client without blocking.
// Clients whose outbox is full are disconnected.
func (s *Server) Broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		s.logger.Printf("Failed to encode %s message: %v", msg.Type, err)
		return
	}

	s.mu.Lock()
	var lagging []*subscriber
	for sub := range s.subs {
		select {
		case sub.outbox <- data:
		default:
			lagging = append(lagging, sub)
			delete(s.subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range lagging {
		s.logger.Println("Warning: dropping client that fell behind")
		sub.cancel()
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

// handleWebSocket registers the client and then serves it until it
// disconnects or the server stops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	sub := &subscriber{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		cancel: cancel,
	}

	// The welcome is queued under the same lock Broadcast takes, so it
	// always reaches the client first.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	if data, err := encode(s.welcome()); err == nil {
		sub.outbox <- data
	}
	s.subs[sub] = struct{}{}
	total := len(s.subs)
	s.mu.Unlock()
	s.logger.Printf("Client connected (total: %d)", total)

	// Reading keeps control frames flowing and notices a closed peer.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	s.pump(ctx, sub)
	s.drop(sub)
}

// pump writes queued messages to the client until ctx ends or a write fails.
func (s *Server) pump(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sub.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sub.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) drop(sub *subscriber) {
	s.mu.Lock()
	_, present := s.subs[sub]
	delete(s.subs, sub)
	total := len(s.subs)
	s.mu.Unlock()

	_ = sub.conn.Close(websocket.StatusNormalClosure, "")
	if present {
		s.logger.Printf("Client disconnected (total: %d)", total)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}{"ok", s.ClientCount()})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, "<!DOCTYPE html>\n<title>tasksync</title>\n<h1>tasksync dashboard</h1>\n"+
		"<p>Feed: <code>ws://%s/ws</code> &middot; <a href=\"/health\">health</a></p>\n", r.Host)
}

// Addr returns the listening address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
