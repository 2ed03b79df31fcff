package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/notify"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/desertthunder/docdash/internal/tasks"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// API serves the task dashboard endpoints.
type API struct {
	manager   *tasks.Manager
	broker    *notify.Broker
	logger    *log.Logger
	heartbeat time.Duration
}

// NewAPI creates the API over a task manager and the broker feeding its event stream. broker may be nil,
// in which case /api/events answers 503.
func NewAPI(m *tasks.Manager, broker *notify.Broker, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{manager: m, broker: broker, logger: logger, heartbeat: 15 * time.Second}
}

// SetHeartbeat changes how often idle event streams receive a comment line.
func (a *API) SetHeartbeat(d time.Duration) {
	if d > 0 {
		a.heartbeat = d
	}
}

// Register adds every route to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodPost, "/api/tasks", http.HandlerFunc(a.handleTaskCreate))
	r.Handle(http.MethodGet, "/api/tasks", http.HandlerFunc(a.handleTaskList))
	r.Handle(http.MethodPost, "/api/tasks/emergency-stop", http.HandlerFunc(a.handleEmergencyStop))
	r.Handle(http.MethodGet, "/api/tasks/{id}", http.HandlerFunc(a.handleTaskGet))
	r.Handle(http.MethodPost, "/api/tasks/{id}/cancel", http.HandlerFunc(a.handleTaskCancel))
	r.Handle(http.MethodGet, "/api/kinds", http.HandlerFunc(a.handleKinds))

	r.Handle(http.MethodGet, "/api/history", http.HandlerFunc(a.handleHistoryList))
	r.Handle(http.MethodDelete, "/api/history", http.HandlerFunc(a.handleHistoryClear))

	r.Handle(http.MethodGet, "/api/events", http.HandlerFunc(a.handleEventStream))
	r.Handler(&healthHandler{api: a, started: time.Now()})
}

// NewRouter builds a [BasicRouter] with recovery and logging middleware and the API routes.
func NewRouter(a *API) *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recover(a.logger), Logging(a.logger))
	a.Register(r)
	return r
}

func (a *API) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTaskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := a.manager.Submit(req.Kind, req.Input)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, models.CreateTaskResponse{ID: id})
}

func (a *API) handleTaskList(w http.ResponseWriter, r *http.Request) {
	views := a.manager.List()
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := models.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filtered := views[:0]
		for _, v := range views {
			if v.Status == status {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, ok := a.manager.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", shared.ErrTaskNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a.manager.Cancel(id) {
		writeJSON(w, http.StatusAccepted, map[string]any{"task_id": id, "cancelled": true})
		return
	}

	if view, ok := a.manager.Status(id); ok {
		writeError(w, http.StatusConflict, fmt.Sprintf("%v: %s is %s", shared.ErrTaskTerminal, id, view.Status))
		return
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", shared.ErrTaskNotFound, id))
}

func (a *API) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req models.EmergencyStopRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := a.manager.EmergencyStop(r.Context(), req.Reason)
	writeJSON(w, http.StatusOK, models.EmergencyStopResponse{
		Cancelled: nonNil(res.Cancelled),
		Forced:    nonNil(res.Forced),
	})
}

func (a *API) handleKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.Catalog().Kinds())
}

func (a *API) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	store := a.manager.History()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "task history is disabled")
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := store.List(r.Context(), models.Kind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		a.logger.Error("history list failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func (a *API) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	store := a.manager.History()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "task history is disabled")
		return
	}
	if err := store.Clear(r.Context()); err != nil {
		a.logger.Error("history clear failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEventStream streams broker events as server-sent events. ?task_id= limits the stream to one task.
func (a *API) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if a.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream is disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, unsubscribe := a.broker.Subscribe(r.URL.Query().Get("task_id"))
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				a.logger.Warn("encode event failed", "task_id", ev.TaskID, "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// healthHandler reports liveness along with a few engine counters.
type healthHandler struct {
	api     *API
	started time.Time
}

func (h *healthHandler) Routes() []string { return []string{"GET /health"} }

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":       "ok",
		"uptime":       shared.FormatDuration(time.Since(h.started)),
		"active_tasks": len(h.api.manager.Registry().Active()),
		"cached_tasks": h.api.manager.Cache().Len(),
	}
	if h.api.broker != nil {
		body["subscribers"] = h.api.broker.Subscribers()
		body["dropped_events"] = h.api.broker.Dropped()
	}
	writeJSON(w, http.StatusOK, body)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrTaskTerminal):
		return http.StatusConflict
	case errors.Is(err, shared.ErrUnknownKind),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", shared.ErrInvalidArgument, key)
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
