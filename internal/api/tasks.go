package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/sisyphus/internal/engine"
	"github.com/seantiz/sisyphus/internal/model"
	"github.com/seantiz/sisyphus/internal/store"
)

const maxBodySize = 1 << 20 // 1 MB

// listTasksResponse wraps the list response. A limit of zero means every task.
type listTasksResponse struct {
	Tasks  []*model.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// executionErrorResponse is returned when a blocking task could not persist
// one of its transitions. Task is set only for finish-stage failures.
type executionErrorResponse struct {
	Error string       `json:"error"`
	Stage engine.Stage `json:"stage"`
	Task  *model.Task  `json:"task,omitempty"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req model.NewTask
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Blocking {
		// Blocking tasks hold the response until they finish.
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			s.logger.Error("set write deadline for blocking task", "error", err)
		}
	}

	task, err := s.engine.Submit(r.Context(), req)
	if err == nil {
		s.writeJSON(w, http.StatusOK, task)
		return
	}

	var (
		subErr  *engine.SubmissionError
		execErr *engine.ExecutionError
	)
	switch {
	case errors.Is(err, model.ErrInvalidType), errors.Is(err, model.ErrInvalidParams):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &subErr):
		s.logger.Error("submit task", "task_id", subErr.TaskID, "error", subErr.Err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit task")
	case errors.As(err, &execErr):
		s.logger.Error("execute task", "task_id", execErr.TaskID, "stage", string(execErr.Stage), "error", execErr.Err)
		s.writeJSON(w, http.StatusInternalServerError, executionErrorResponse{
			Error: "failed to persist " + string(execErr.Stage) + " of task",
			Stage: execErr.Stage,
			Task:  task,
		})
	default:
		s.logger.Error("submit task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit task")
	}
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("get task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 0)
	offset := parseIntQuery(r, "offset", 0)

	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := s.store.ListTasks(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list tasks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	if tasks == nil {
		tasks = []*model.Task{}
	}

	s.writeJSON(w, http.StatusOK, listTasksResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
