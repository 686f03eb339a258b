package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/sisyphus/internal/model"
	"github.com/seantiz/sisyphus/internal/store"
)

const sseStatusEvent = "status"

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("get task for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// A finished task replays its last transition and ends the stream.
	if task.Status == model.StatusFinished {
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, sseStatusEvent, model.TaskEvent{
			TaskID: task.ID,
			Status: task.Status,
			At:     *task.FinishedAt,
		})
		_ = writeSSEDone(w)
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Tasks that are not executing in this process, including ones that
	// finished after the lookup above, get a closed channel.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	last := task.Status
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				s.writeFinalEvent(w, r, id, last)
				_ = writeSSEDone(w)
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEEvent(w, sseStatusEvent, ev); err != nil {
				return
			}
			last = ev.Status
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeFinalEvent reports a finish the subscriber missed because execution
// ended between the initial lookup and the subscription.
func (s *Server) writeFinalEvent(w http.ResponseWriter, r *http.Request, id string, last model.TaskStatus) {
	if last == model.StatusFinished {
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.logger.Error("get task after event stream", "task_id", id, "error", err)
		return
	}
	if task.Status == model.StatusFinished && task.FinishedAt != nil {
		_ = writeSSEEvent(w, sseStatusEvent, model.TaskEvent{
			TaskID: task.ID,
			Status: task.Status,
			At:     *task.FinishedAt,
		})
	}
}

// writeSSEEvent writes a named SSE event whose data is the JSON encoding of v.
func writeSSEEvent(w http.ResponseWriter, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}

func writeSSEDone(w http.ResponseWriter) error {
	_, err := fmt.Fprint(w, "event: done\ndata: stream complete\n\n")
	return err
}
