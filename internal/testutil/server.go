package testutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
)

// NewServer serves f over the same REST routes the HTTP client speaks.
// The caller must Close the returned server.
func NewServer(f *FakeRemote) *httptest.Server {
	return httptest.NewServer(NewRouter(f))
}

// NewRouter registers the task routes backed by f.
func NewRouter(f *FakeRemote) *mux.Router {
	h := &handler{fake: f}
	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/tasks", h.list).Methods(http.MethodGet)
	r.HandleFunc("/tasks", h.create).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", h.update).Methods(http.MethodPatch)
	r.HandleFunc("/tasks/{id}", h.delete).Methods(http.MethodDelete)
	return r
}

type handler struct {
	fake *FakeRemote
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.fake.Ping(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := schema.Query{
		Page:   atoiDefault(v.Get("_page"), 1),
		Limit:  atoiDefault(v.Get("_limit"), 10),
		SortBy: schema.SortField(v.Get("_sort")),
		Order:  schema.Order(v.Get("_order")),
		Status: schema.Status(v.Get("status")),
	}
	if q.SortBy == "" {
		q.SortBy = schema.SortCreatedAt
	}
	if q.Order == "" {
		q.Order = schema.Asc
	}

	page, err := h.fake.List(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(remote.TotalCountHeader, strconv.Itoa(page.Total))
	writeJSON(w, http.StatusOK, page.Items)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var task schema.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	created, err := h.fake.Create(r.Context(), task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	var patch schema.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	updated, err := h.fake.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.fake.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var se *remote.StatusError
	if errors.As(err, &se) {
		code = se.Code
	}
	http.Error(w, err.Error(), code)
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}
