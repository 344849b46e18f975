package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MimeLyc/ai-search-assistant/internal/news"
	"github.com/MimeLyc/ai-search-assistant/internal/service"
)

type circularSearchRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.news == nil {
		writeError(w, http.StatusNotImplemented, "news is not configured")
		return
	}
	digest, err := s.news.Latest(r.Context())
	if errors.Is(err, news.ErrNoDigest) {
		writeJSON(w, http.StatusOK, news.Digest{Articles: []news.Article{}})
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

func (s *Server) handleNewsRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "scheduler is not configured")
		return
	}
	digest, err := s.scheduler.TriggerNews(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

func (s *Server) handleCircularSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.circulars == nil {
		writeError(w, http.StatusNotImplemented, "circular search is not configured")
		return
	}

	var req circularSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	answer, err := s.circulars.Query(r.Context(), req.Query, req.NumResults)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleCircularContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.circulars == nil {
		writeError(w, http.StatusNotImplemented, "circular search is not configured")
		return
	}
	link := strings.TrimSpace(r.URL.Query().Get("link"))
	if link == "" {
		writeError(w, http.StatusBadRequest, "link is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"link":    link,
		"content": s.circulars.FullContent(r.Context(), link),
	})
}

// handleCircularSync reads the circular index now and enqueues new rows.
func (s *Server) handleCircularSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "scheduler is not configured")
		return
	}
	result, err := s.scheduler.TriggerCirculars(r.Context(), service.SourceManual)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}
