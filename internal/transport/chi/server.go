package chi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
	dumpuc "github.com/kailas-cloud/searchcore/internal/usecase/dump"
	healthuc "github.com/kailas-cloud/searchcore/internal/usecase/health"
	taskuc "github.com/kailas-cloud/searchcore/internal/usecase/task"
)

// Server serves the admin API: the task queue, batches, dumps, health and metrics.
type Server struct {
	tasks  *taskuc.Service
	dumps  *dumpuc.Service
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates an admin HTTP API server.
func NewServer(tasks *taskuc.Service, dumps *dumpuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{tasks: tasks, dumps: dumps, health: health, logger: logger}
}

// taskList is the paginated response of GET /tasks.
type taskList struct {
	Results []domtask.Task `json:"results"`
	Limit   int            `json:"limit"`
	From    *uint32        `json:"from"`
	Next    *uint32        `json:"next"`
}

// ListTasks handles GET /tasks.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	q, errs := domtask.ParseQuery(r.URL.Query())
	if len(errs) > 0 {
		writeError(w, r, errs)
		return
	}
	limit := q.Limit
	q.Limit = limit + 1

	resp := taskList{Results: []domtask.Task{}, Limit: limit}
	for t, err := range s.tasks.List(r.Context(), q) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(resp.Results) == limit {
			next := t.UID()
			resp.Next = &next
			break
		}
		resp.Results = append(resp.Results, t)
	}
	if len(resp.Results) > 0 {
		from := resp.Results[0].UID()
		resp.From = &from
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTask handles GET /tasks/{uid}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseUint(chi.URLParam(r, "uid"), 10, 32)
	if err != nil {
		writeError(w, r, errcode.New(errcode.InvalidTaskUIDs,
			"`%s` is not a valid task uid", chi.URLParam(r, "uid")).In("uid"))
		return
	}
	t, err := s.tasks.Get(r.Context(), uint32(uid))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// taskSummary acknowledges a registered task.
type taskSummary struct {
	TaskUID    uint32         `json:"taskUid"`
	IndexUID   *string        `json:"indexUid"`
	Status     domtask.Status `json:"status"`
	Type       domtask.Kind   `json:"type"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}

func summarize(t domtask.Task) taskSummary {
	sum := taskSummary{TaskUID: t.UID(), Status: t.Status(), Type: t.Kind(), EnqueuedAt: t.EnqueuedAt()}
	if uid := t.IndexUID(); uid != "" {
		sum.IndexUID = &uid
	}
	return sum
}

// CancelTasks handles POST /tasks/cancel.
func (s *Server) CancelTasks(w http.ResponseWriter, r *http.Request) {
	q, errs := domtask.ParseQuery(r.URL.Query())
	if len(errs) > 0 {
		writeError(w, r, errs)
		return
	}
	t, _, err := s.tasks.Cancel(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(t))
}

// DeleteTasks handles DELETE /tasks.
func (s *Server) DeleteTasks(w http.ResponseWriter, r *http.Request) {
	q, errs := domtask.ParseQuery(r.URL.Query())
	if len(errs) > 0 {
		writeError(w, r, errs)
		return
	}
	t, _, err := s.tasks.DeleteTasks(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(t))
}

// batchView is the response of GET /batches/{uid}.
type batchView struct {
	domtask.BatchRecord
	Status domtask.Status `json:"status"`
}

// GetBatch handles GET /batches/{uid}.
func (s *Server) GetBatch(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseUint(chi.URLParam(r, "uid"), 10, 32)
	if err != nil {
		writeError(w, r, errcode.New(errcode.InvalidTaskUIDs,
			"`%s` is not a valid batch uid", chi.URLParam(r, "uid")).In("uid"))
		return
	}
	b, status, err := s.tasks.BatchStatus(r.Context(), uint32(uid))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchView{BatchRecord: b.Record(), Status: status})
}

// CreateDump handles POST /dumps. The dump runs to completion before the response; the
// returned task carries its outcome.
func (s *Server) CreateDump(w http.ResponseWriter, r *http.Request) {
	t, err := s.dumps.Create(r.Context())
	if err != nil {
		if t.Status() == "" {
			writeError(w, r, err)
			return
		}
		s.logger.Warn("Dump task failed", zap.Uint32("task_uid", t.UID()), zap.Error(err))
	}
	writeJSON(w, http.StatusAccepted, summarize(t))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
