package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/status"
)

// StatusData carries a sync status.
type StatusData struct {
	Status status.Status `json:"status"`
}

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID   string        `json:"task_id"`
	Action   string        `json:"action"` // created, updated, deleted
	Status   schema.Status `json:"status,omitempty"`
	Title    string        `json:"title,omitempty"`
	Priority int           `json:"priority,omitempty"`
}

// ReplayData describes one replayed queued action.
type ReplayData struct {
	ActionID string            `json:"action_id"`
	Type     schema.ActionType `json:"type"`
	TempID   string            `json:"temp_id,omitempty"`
	TaskID   string            `json:"task_id"`
}

// StatsData contains cache and queue counters
type StatsData struct {
	Total    int                   `json:"total"`
	ByStatus map[schema.Status]int `json:"by_status"`
	Pending  int                   `json:"pending"`
}

// Handler turns client events into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger

	mu      sync.Mutex
	current status.Status
	stats   StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{ByStatus: make(map[schema.Status]int)},
	}
}

// Welcome returns the current status as a message. It is meant to be used
// as Config.Welcome.
func (h *Handler) Welcome() Message {
	h.mu.Lock()
	s := h.current
	h.mu.Unlock()
	return h.message(MessageTypeStatus, StatusData{Status: s})
}

func (h *Handler) message(typ MessageType, data any) Message {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: raw}
}

// Attach connects the handler to a server. A handler without a server
// only tracks state, which lets it serve as the server's Welcome source
// before the server exists.
func (h *Handler) Attach(server *Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.server = server
}

func (h *Handler) send(typ MessageType, data any) {
	h.mu.Lock()
	server := h.server
	h.mu.Unlock()
	if server == nil {
		return
	}
	server.Broadcast(h.message(typ, data))
}

// OnStatus records and broadcasts a status transition. Its signature
// matches status.Publisher.OnPublish.
func (h *Handler) OnStatus(s status.Status) {
	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
	h.send(MessageTypeStatus, StatusData{Status: s})
}

// OnTaskCreated handles task creation events
func (h *Handler) OnTaskCreated(task schema.Task) {
	h.logger.Printf("Task created: %s (%s)", task.ID, task.Title)
	h.mu.Lock()
	h.stats.Total++
	h.stats.ByStatus[task.Status]++
	h.mu.Unlock()

	h.send(MessageTypeTaskUpdate, taskData("created", task))
	h.broadcastStats()
}

// OnTaskUpdated handles task update events
func (h *Handler) OnTaskUpdated(before, after schema.Task) {
	h.logger.Printf("Task updated: %s (%s)", after.ID, after.Title)
	if before.Status != after.Status {
		h.mu.Lock()
		h.stats.ByStatus[before.Status]--
		h.stats.ByStatus[after.Status]++
		h.mu.Unlock()
	}

	h.send(MessageTypeTaskUpdate, taskData("updated", after))
	h.broadcastStats()
}

// OnTaskDeleted handles task deletion events. before may be nil when the
// task was not cached.
func (h *Handler) OnTaskDeleted(id string, before *schema.Task) {
	h.logger.Printf("Task deleted: %s", id)
	if before != nil {
		h.mu.Lock()
		h.stats.Total--
		h.stats.ByStatus[before.Status]--
		h.mu.Unlock()
	}

	h.send(MessageTypeTaskUpdate, TaskUpdateData{TaskID: id, Action: "deleted"})
	h.broadcastStats()
}

// OnReplay handles a replayed queued action. Its signature matches
// syncer.ReplayFunc.
func (h *Handler) OnReplay(action schema.QueuedAction, id string) {
	h.mu.Lock()
	if h.stats.Pending > 0 {
		h.stats.Pending--
	}
	h.mu.Unlock()

	h.send(MessageTypeReplay, ReplayData{
		ActionID: action.ActionID,
		Type:     action.Type,
		TempID:   action.TempID,
		TaskID:   id,
	})
}

// UpdateStats recomputes the counters from a full cache snapshot and
// broadcasts them.
func (h *Handler) UpdateStats(tasks []schema.Task, pending int) {
	h.mu.Lock()
	h.stats.Total = len(tasks)
	h.stats.ByStatus = make(map[schema.Status]int)
	for _, t := range tasks {
		h.stats.ByStatus[t.Status]++
	}
	h.stats.Pending = pending
	h.mu.Unlock()

	h.broadcastStats()
}

// Stats returns a copy of the current counters.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := StatsData{Total: h.stats.Total, Pending: h.stats.Pending, ByStatus: make(map[schema.Status]int, len(h.stats.ByStatus))}
	for k, v := range h.stats.ByStatus {
		out.ByStatus[k] = v
	}
	return out
}

func (h *Handler) broadcastStats() {
	h.send(MessageTypeStats, h.Stats())
}

func taskData(action string, t schema.Task) TaskUpdateData {
	return TaskUpdateData{
		TaskID:   t.ID,
		Action:   action,
		Status:   t.Status,
		Title:    t.Title,
		Priority: t.PriorityValue(),
	}
}
