package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowrun-dev/flowrun/internal/build"
	"github.com/flowrun-dev/flowrun/internal/digraph"
	"github.com/flowrun-dev/flowrun/internal/engine"
	"github.com/flowrun-dev/flowrun/internal/metrics"
	"github.com/flowrun-dev/flowrun/internal/models"
	"github.com/flowrun-dev/flowrun/internal/scheduler"
	"github.com/flowrun-dev/flowrun/internal/trigger"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        build.Version,
		"uptime_seconds": int(metrics.Uptime().Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// --- DAGs ---

type taskSpec struct {
	TaskID    string         `json:"task_id"`
	Params    map[string]any `json:"params"`
	DependsOn []string       `json:"depends_on"`
}

type createDAGRequest struct {
	DAGID string     `json:"dag_id"`
	Tasks []taskSpec `json:"tasks"`
}

func (s *Server) handleListDAGs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"dags": s.engine.ListDAGs()})
}

// echoExecutable is bound to tasks registered over the API; it returns
// the task's own parameter mapping.
func echoExecutable(_ context.Context, params map[string]any) (any, error) {
	return params, nil
}

func (s *Server) handleCreateDAG(w http.ResponseWriter, r *http.Request) {
	var req createDAGRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.DAGID == "" {
		writeError(w, http.StatusBadRequest, errors.New("dag_id required"))
		return
	}
	if _, exists := s.engine.GetDAG(req.DAGID); exists {
		writeError(w, http.StatusBadRequest, errors.New("DAG already exists"))
		return
	}

	dag := digraph.NewDAG(req.DAGID)
	for _, spec := range req.Tasks {
		dag.AddTask(digraph.NewTask(spec.TaskID, echoExecutable,
			digraph.WithParams(spec.Params),
			digraph.WithDependsOn(spec.DependsOn...),
		))
	}

	if err := s.engine.RegisterDAG(r.Context(), dag); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dag_id": req.DAGID, "status": "created"})
}

func (s *Server) handleGetDAG(w http.ResponseWriter, r *http.Request) {
	dagID := chi.URLParam(r, "dagID")
	status, err := s.engine.GetDAGStatus(dagID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type runDAGRequest struct {
	MaxParallel int `json:"max_parallel"`
}

func (s *Server) handleRunDAG(w http.ResponseWriter, r *http.Request) {
	dagID := chi.URLParam(r, "dagID")

	var req runDAGRequest
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
	}

	var opts []engine.RunOption
	if req.MaxParallel > 0 {
		opts = append(opts, engine.WithMaxParallel(req.MaxParallel))
	}

	runID, err := s.engine.RunDAG(r.Context(), dagID, opts...)
	if err != nil {
		if errors.Is(err, engine.ErrDAGNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		var graphErr *digraph.GraphError
		if errors.As(err, &graphErr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": "started"})
}

// --- Runs ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.engine.ListRuns(r.URL.Query().Get("dag_id"))
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, errors.New("Run not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- Schedules ---

type createScheduleRequest struct {
	DAGID        string `json:"dag_id"`
	ScheduleType string `json:"schedule_type"`
	Interval     int    `json:"interval"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": s.scheduler.ListSchedules()})
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.ScheduleType == "" {
		req.ScheduleType = string(scheduler.KindDaily)
	}

	schedule, err := scheduler.NewSchedule(req.DAGID, scheduler.Kind(req.ScheduleType), req.Interval)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.scheduler.AddSchedule(r.Context(), schedule); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dag_id": req.DAGID, "status": "scheduled"})
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.RemoveSchedule(r.Context(), chi.URLParam(r, "dagID")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleEnableSchedule(w http.ResponseWriter, r *http.Request) {
	s.setScheduleEnabled(w, r, s.scheduler.EnableSchedule, "enabled")
}

func (s *Server) handleDisableSchedule(w http.ResponseWriter, r *http.Request) {
	s.setScheduleEnabled(w, r, s.scheduler.DisableSchedule, "disabled")
}

func (s *Server) setScheduleEnabled(
	w http.ResponseWriter, r *http.Request,
	op func(context.Context, string) error, status string,
) {
	dagID := chi.URLParam(r, "dagID")
	if err := op(r.Context(), dagID); err != nil {
		if errors.Is(err, scheduler.ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dag_id": dagID, "status": status})
}

// --- Triggers ---

type createTriggerRequest struct {
	TriggerID   string         `json:"trigger_id"`
	TriggerType string         `json:"trigger_type"`
	Config      map[string]any `json:"config"`
}

func (s *Server) handleListTriggers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"triggers": s.triggers.List()})
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req createTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.TriggerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("trigger_id required"))
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = string(trigger.TypeManual)
	}

	trg, err := trigger.New(req.TriggerID, trigger.Type(req.TriggerType), req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.triggers.Register(r.Context(), trg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"trigger_id": req.TriggerID, "status": "created"})
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	trg, err := s.triggers.Get(chi.URLParam(r, "triggerID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, trg)
}

func (s *Server) handleFireTrigger(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
	}

	result, err := s.triggers.Fire(r.Context(), chi.URLParam(r, "triggerID"), payload)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("Trigger not found"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAddListener(w http.ResponseWriter, r *http.Request) {
	triggerID := chi.URLParam(r, "triggerID")
	s.triggers.AddListener(triggerID, chi.URLParam(r, "dagID"))
	writeJSON(w, http.StatusOK, map[string]any{
		"trigger_id": triggerID,
		"listeners":  s.triggers.Listeners(triggerID),
	})
}

func (s *Server) handleRemoveListener(w http.ResponseWriter, r *http.Request) {
	triggerID := chi.URLParam(r, "triggerID")
	s.triggers.RemoveListener(triggerID, chi.URLParam(r, "dagID"))
	writeJSON(w, http.StatusOK, map[string]any{
		"trigger_id": triggerID,
		"listeners":  s.triggers.Listeners(triggerID),
	})
}
