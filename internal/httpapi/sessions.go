package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MimeLyc/ai-search-assistant/internal/account"
	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/history"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

type loginRequest struct {
	Email string `json:"email"`
}

type sessionResponse struct {
	SessionID     string                  `json:"session_id"`
	User          *account.User           `json:"user"`
	Conversations []chat.ConversationView `json:"conversations"`
}

type messageRequest struct {
	Query string `json:"query"`
}

type historyResponse struct {
	RecentQuestions []string                     `json:"recent_questions"`
	Conversations   []history.TitledConversation `json:"conversations"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "accounts are not configured")
		return
	}

	var req account.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := s.accounts.SignUp(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.startSession(r, user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "accounts are not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := s.accounts.Login(r.Context(), req.Email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.startSession(r, user))
}

// startSession opens a session for user and restores their logged conversations.
func (s *Server) startSession(r *http.Request, user *account.User) sessionResponse {
	session := s.sessions.Create(user.SessionUser())
	if s.history != nil {
		if n, err := s.history.Restore(r.Context(), session); err != nil {
			log.Warn("Failed to restore history for %s: %v", user.UID, err)
		} else if n > 0 {
			log.Debug("Restored %d conversations for %s", n, user.UID)
		}
	}
	return sessionResponse{
		SessionID:     session.ID(),
		User:          user,
		Conversations: views(session),
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.Header.Get(SessionHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": s.sessions.Destroy(id),
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, views(session))
	case http.MethodPost:
		conv := session.NewConversation()
		writeJSON(w, http.StatusCreated, conv.View())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleConversation serves /api/conversations/{id} and /api/conversations/{id}/messages.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/conversations/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing conversation id")
		return
	}
	conv, err := session.Conversation(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, conv.View())
	case sub == "messages" && r.Method == http.MethodPost:
		s.postMessage(w, r, session, conv.ID())
	case sub == "" || sub == "messages":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request, session *chat.Session, conversationID string) {
	if s.assistant == nil {
		writeError(w, http.StatusNotImplemented, "assistant is not configured")
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	reply, err := s.assistant.Ask(r.Context(), session, conversationID, req.Query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history is not configured")
		return
	}

	uid := session.User().UID
	recent, err := s.history.RecentQuestions(r.Context(), uid, history.DefaultRecentLimit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	grouped, err := s.history.Conversations(r.Context(), uid)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		RecentQuestions: recent,
		Conversations:   grouped,
	})
}

// authenticated runs h only for requests that carry a live session.
func (s *Server) authenticated(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.requireSession(w, r); !ok {
			return
		}
		h(w, r)
	}
}

func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		// EventSource cannot set headers.
		id = r.URL.Query().Get(sessionQueryParam)
	}
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing session")
		return nil, false
	}
	session, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unknown session")
		return nil, false
	}
	return session, true
}

func views(session *chat.Session) []chat.ConversationView {
	convs := session.Conversations()
	out := make([]chat.ConversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.View())
	}
	return out
}
