package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/config"
	"github.com/MimeLyc/ai-search-assistant/internal/jobs"
	"github.com/MimeLyc/ai-search-assistant/internal/service"
)

type enqueueJobRequest struct {
	Source         string `json:"source"`
	DedupeKey      string `json:"dedupe_key"`
	Link           string `json:"link"`
	CircularNumber string `json:"circular_number"`
	Title          string `json:"title"`
	Department     string `json:"department"`
	Date           string `json:"date"`
	MeantFor       string `json:"meant_for"`
}

type jobsResponse struct {
	Jobs   []*jobs.IngestJob   `json:"jobs"`
	Counts map[jobs.Status]int `json:"counts"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "job queue is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, jobsResponse{
			Jobs:   s.queue.List(),
			Counts: s.queue.Counts(),
		})
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Source == "" {
			req.Source = service.SourceManual
		}
		if req.Link == "" {
			writeError(w, http.StatusBadRequest, "link is required")
			return
		}
		if req.DedupeKey == "" {
			req.DedupeKey = req.Link
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    req.Source,
			DedupeKey: req.DedupeKey,
			Payload: jobs.IngestPayload{
				Link:           req.Link,
				CircularNumber: req.CircularNumber,
				Title:          req.Title,
				Department:     req.Department,
				Date:           req.Date,
				MeantFor:       req.MeantFor,
			},
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings.Masked())
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		current, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		req = req.KeepKey(current)
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved.Masked())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "scheduler is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status(time.Now()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok":       true,
		"sessions": s.sessions.Count(),
	}
	if s.queue != nil {
		resp["jobs"] = s.queue.Counts()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeServiceError reports err with the status and user-facing text its class maps to.
// Server-side failures also go to the error handler.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.errors.Handle(err)
	}
	writeError(w, status, service.DegradedMessage(err))
}

func statusFor(err error) int {
	switch service.Classify(err) {
	case service.ErrValidation:
		return http.StatusBadRequest
	case service.ErrNotFound:
		return http.StatusNotFound
	case service.ErrConflict:
		return http.StatusConflict
	case service.ErrTimeout:
		return http.StatusGatewayTimeout
	case service.ErrAPI, service.ErrTool, service.ErrReasoning, service.ErrModelOutput, service.ErrNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
