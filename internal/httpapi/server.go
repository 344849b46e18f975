package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/account"
	"github.com/MimeLyc/ai-search-assistant/internal/assistant"
	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/config"
	"github.com/MimeLyc/ai-search-assistant/internal/docqa"
	"github.com/MimeLyc/ai-search-assistant/internal/history"
	"github.com/MimeLyc/ai-search-assistant/internal/jobs"
	"github.com/MimeLyc/ai-search-assistant/internal/news"
	"github.com/MimeLyc/ai-search-assistant/internal/service"
)

// SessionHeader carries the session ID on every authenticated request.
const SessionHeader = "X-Session-ID"

const sessionQueryParam = "session_id"

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type accountService interface {
	SignUp(ctx context.Context, req account.SignUpRequest) (*account.User, error)
	Login(ctx context.Context, email string) (*account.User, error)
}

type asker interface {
	Ask(ctx context.Context, session *chat.Session, conversationID, query string) (*assistant.Reply, error)
}

type chatHistory interface {
	RecentQuestions(ctx context.Context, uid string, limit int) ([]string, error)
	Conversations(ctx context.Context, uid string) ([]history.TitledConversation, error)
	Restore(ctx context.Context, session *chat.Session) (int, error)
}

type newsReader interface {
	Latest(ctx context.Context) (*news.Digest, error)
}

type circularSearch interface {
	Query(ctx context.Context, query string, numResults int) (*docqa.Answer, error)
	FullContent(ctx context.Context, link string) string
}

type scheduler interface {
	TriggerNews(ctx context.Context) (*news.Digest, error)
	TriggerCirculars(ctx context.Context, source string) (*service.ListingResult, error)
	Status(now time.Time) []service.TaskStatus
}

type Server struct {
	sessions  *chat.Manager
	queue     *jobs.Queue
	accounts  accountService
	assistant asker
	history   chatHistory
	news      newsReader
	circulars circularSearch
	scheduler scheduler
	settings  runtimeSettingsStore
	apply     runtimeSettingsApplier
	errors    service.ErrorHandler

	uiEnabled   bool
	uiStaticDir string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithAccounts(a accountService) Option {
	return func(s *Server) {
		s.accounts = a
	}
}

func WithAssistant(a asker) Option {
	return func(s *Server) {
		s.assistant = a
	}
}

func WithHistory(h chatHistory) Option {
	return func(s *Server) {
		s.history = h
	}
}

func WithNews(n newsReader) Option {
	return func(s *Server) {
		s.news = n
	}
}

func WithCirculars(c circularSearch) Option {
	return func(s *Server) {
		s.circulars = c
	}
}

func WithScheduler(sch scheduler) Option {
	return func(s *Server) {
		s.scheduler = sch
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithErrorHandler(h service.ErrorHandler) Option {
	return func(s *Server) {
		s.errors = h
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func NewServer(sessions *chat.Manager, queue *jobs.Queue, opts ...Option) *Server {
	if sessions == nil {
		sessions = chat.NewManager()
	}
	s := &Server{
		sessions:  sessions,
		queue:     queue,
		uiEnabled: false,
		errors:    service.NewDefaultErrorHandler(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/signup", s.handleSignUp)
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/logout", s.handleLogout)
	s.mux.HandleFunc("/api/conversations", s.handleConversations)
	s.mux.HandleFunc("/api/conversations/", s.handleConversation)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/news", s.handleNews)
	s.mux.HandleFunc("/api/news/refresh", s.authenticated(s.handleNewsRefresh))
	s.mux.HandleFunc("/api/circulars/search", s.handleCircularSearch)
	s.mux.HandleFunc("/api/circulars/content", s.handleCircularContent)
	s.mux.HandleFunc("/api/circulars/sync", s.authenticated(s.handleCircularSync))
	s.mux.HandleFunc("/api/jobs", s.authenticated(s.handleJobs))
	s.mux.HandleFunc("/api/jobs/stream", s.authenticated(s.handleJobStream))
	s.mux.HandleFunc("/api/settings", s.authenticated(s.handleSettings))
	s.mux.HandleFunc("/api/schedule", s.authenticated(s.handleSchedule))
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
