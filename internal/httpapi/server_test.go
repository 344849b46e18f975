package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/account"
	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/assistant"
	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/config"
	"github.com/MimeLyc/ai-search-assistant/internal/docqa"
	"github.com/MimeLyc/ai-search-assistant/internal/history"
	"github.com/MimeLyc/ai-search-assistant/internal/jobs"
	"github.com/MimeLyc/ai-search-assistant/internal/news"
	"github.com/MimeLyc/ai-search-assistant/internal/persistence"
	"github.com/MimeLyc/ai-search-assistant/internal/service"
	"github.com/MimeLyc/ai-search-assistant/pkg/icron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

// fakeAsker answers like the assistant without calling any model.
type fakeAsker struct {
	log *history.Log
	err error
}

func (f *fakeAsker) Ask(ctx context.Context, session *chat.Session, conversationID, query string) (*assistant.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	conv, err := session.Conversation(conversationID)
	if err != nil {
		return nil, err
	}
	answer := "answer to " + query
	turns := conv.AppendExchange(query, answer)
	conv.SetTitle("About " + query)
	if f.log != nil {
		if _, err := f.log.Append(ctx, session.User().UID, query, answer, conv.Title()); err != nil {
			return nil, err
		}
	}
	return &assistant.Reply{
		ConversationID: conv.ID(),
		Title:          conv.Title(),
		Answer:         answer,
		Outcome:        assistant.OutcomeAnswered,
		Turns:          turns,
	}, nil
}

type fakeNews struct {
	digest *news.Digest
}

func (f *fakeNews) Latest(context.Context) (*news.Digest, error) {
	if f.digest == nil {
		return nil, news.ErrNoDigest
	}
	return f.digest, nil
}

type fakeScheduler struct {
	newsCalls int
	source    string
}

func (f *fakeScheduler) TriggerNews(context.Context) (*news.Digest, error) {
	f.newsCalls++
	return &news.Digest{Articles: []news.Article{{Title: "UPI volumes rise"}}}, nil
}

func (f *fakeScheduler) TriggerCirculars(_ context.Context, source string) (*service.ListingResult, error) {
	f.source = source
	return &service.ListingResult{Rows: 3, Enqueued: 2, Skipped: 1}, nil
}

func (f *fakeScheduler) Status(now time.Time) []service.TaskStatus {
	info, _ := icron.GetTriggerInfo("0 */6 * * *", now)
	return []service.TaskStatus{{Name: service.TaskNews, Trigger: info}}
}

type fakeCirculars struct {
	query string
	n     int
	err   error
}

func (f *fakeCirculars) Query(_ context.Context, query string, n int) (*docqa.Answer, error) {
	f.query, f.n = query, n
	if f.err != nil {
		return nil, f.err
	}
	return &docqa.Answer{Response: "KYC answer", Circulars: []docqa.Circular{{Title: "KYC"}}}, nil
}

func (f *fakeCirculars) FullContent(_ context.Context, link string) string {
	return "content of " + link
}

func newStore(t *testing.T) *persistence.SQLiteStore {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func do(t *testing.T, srv *Server, method, target, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func openSession(t *testing.T, srv *Server) string {
	t.Helper()
	return srv.sessions.Create(chat.User{UID: "ops", Email: "ops@example.com"}).ID()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func newChatServer(t *testing.T) (*Server, *history.Log) {
	t.Helper()
	store := newStore(t)
	chatLog := history.New(store)
	srv := NewServer(chat.NewManager(), jobs.NewQueue(1, nil),
		WithAccounts(account.NewService(store)),
		WithHistory(chatLog),
		WithAssistant(&fakeAsker{log: chatLog}),
	)
	return srv, chatLog
}

func TestServer_SignUpLoginAndChat(t *testing.T) {
	srv, _ := newChatServer(t)

	rec := do(t, srv, http.MethodPost, "/api/signup", "", account.SignUpRequest{
		Email:      "Ops@Example.com",
		Department: "Payments",
		Interests:  []string{"UPI"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	signup := decode[sessionResponse](t, rec)
	require.NotEmpty(t, signup.SessionID)
	assert.Equal(t, "ops@example.com", signup.User.Email)

	rec = do(t, srv, http.MethodPost, "/api/conversations", signup.SessionID, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[chat.ConversationView](t, rec)
	assert.Equal(t, "New Conversation", conv.Title)

	rec = do(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", signup.SessionID, messageRequest{Query: "UPI limits"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[assistant.Reply](t, rec)
	assert.Equal(t, "answer to UPI limits", reply.Answer)

	rec = do(t, srv, http.MethodGet, "/api/conversations/"+conv.ID, signup.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[chat.ConversationView](t, rec)
	require.Len(t, view.Turns, 2)
	assert.Equal(t, "About UPI limits", view.Title)

	rec = do(t, srv, http.MethodGet, "/api/history", signup.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[historyResponse](t, rec)
	assert.Equal(t, []string{"UPI limits"}, hist.RecentQuestions)

	rec = do(t, srv, http.MethodPost, "/api/logout", signup.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/conversations", signup.SessionID, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// a fresh login restores the logged conversation
	rec = do(t, srv, http.MethodPost, "/api/login", "", loginRequest{Email: "ops@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[sessionResponse](t, rec)
	assert.NotEqual(t, signup.SessionID, login.SessionID)
	require.Len(t, login.Conversations, 1)
	assert.Equal(t, "About UPI limits", login.Conversations[0].Title)
	assert.Len(t, login.Conversations[0].Turns, 2)
}

func TestServer_SignUpDuplicateEmail(t *testing.T) {
	srv, _ := newChatServer(t)
	req := account.SignUpRequest{Email: "a@example.com"}

	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/signup", "", req).Code)
	rec := do(t, srv, http.MethodPost, "/api/signup", "", req)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestServer_LoginUnknownEmail(t *testing.T) {
	srv, _ := newChatServer(t)
	rec := do(t, srv, http.MethodPost, "/api/login", "", loginRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ConversationsRequireSession(t *testing.T) {
	srv, _ := newChatServer(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/conversations", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/conversations", "nope", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/history", "", nil).Code)
}

func TestServer_SessionsAreIsolated(t *testing.T) {
	srv, _ := newChatServer(t)

	a := decode[sessionResponse](t, do(t, srv, http.MethodPost, "/api/signup", "", account.SignUpRequest{Email: "a@example.com"}))
	b := decode[sessionResponse](t, do(t, srv, http.MethodPost, "/api/signup", "", account.SignUpRequest{Email: "b@example.com"}))

	conv := decode[chat.ConversationView](t, do(t, srv, http.MethodPost, "/api/conversations", a.SessionID, nil))

	rec := do(t, srv, http.MethodGet, "/api/conversations/"+conv.ID, b.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list := decode[[]chat.ConversationView](t, do(t, srv, http.MethodGet, "/api/conversations", b.SessionID, nil))
	assert.Empty(t, list)
}

func TestServer_PostMessageErrors(t *testing.T) {
	sessions := chat.NewManager()
	session := sessions.Create(chat.User{UID: "u1"})
	conv := session.NewConversation()

	srv := NewServer(sessions, nil, WithAssistant(&fakeAsker{err: assistant.ErrEmptyQuery}))
	rec := do(t, srv, http.MethodPost, "/api/conversations/"+conv.ID()+"/messages", session.ID(), messageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv = NewServer(sessions, nil, WithAssistant(&fakeAsker{err: &agent.ToolExecutionError{ToolName: "web_search", Cause: errors.New("503")}}))
	rec = do(t, srv, http.MethodPost, "/api/conversations/"+conv.ID()+"/messages", session.ID(), messageRequest{Query: "q"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "I apologize")

	rec = do(t, srv, http.MethodGet, "/api/conversations/"+conv.ID()+"/messages", session.ID(), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/conversations/"+conv.ID()+"/other", session.ID(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateJob(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(nil, queue)
	sid := openSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/jobs", sid, enqueueJobRequest{Link: "https://rbi.example/c/1", Title: "KYC"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Created bool            `json:"created"`
		Job     *jobs.IngestJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.Created)
	assert.Equal(t, service.SourceManual, created.Job.Source)
	assert.Equal(t, "https://rbi.example/c/1", created.Job.DedupeKey)
	assert.Equal(t, "KYC", created.Job.Payload.Title)

	rec = do(t, srv, http.MethodPost, "/api/jobs", sid, enqueueJobRequest{Link: "https://rbi.example/c/1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/jobs", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[jobsResponse](t, rec)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, 1, list.Counts[jobs.StatusPending])
}

func TestServer_CreateJob_RequiresLink(t *testing.T) {
	srv := NewServer(nil, jobs.NewQueue(1, nil))
	sid := openSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/jobs", sid, enqueueJobRequest{Title: "no link"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "link is required")

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("{"))
	req.Header.Set(SessionHeader, sid)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_JobsNotConfigured(t *testing.T) {
	srv := NewServer(nil, nil)
	sid := openSession(t, srv)
	assert.Equal(t, http.StatusNotImplemented, do(t, srv, http.MethodGet, "/api/jobs", sid, nil).Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, srv, http.MethodGet, "/api/jobs/stream", sid, nil).Code)
}

func TestServer_JobStreamSendsSnapshot(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	queue.Enqueue(jobs.EnqueueRequest{Source: "manual", DedupeKey: "k", Payload: jobs.IngestPayload{Link: "https://rbi.example/c/1"}})
	srv := NewServer(nil, queue)
	sid := openSession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/stream?session_id="+sid, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: jobs\ndata: "))
	assert.Contains(t, body, "https://rbi.example/c/1")
	assert.Equal(t, 1, strings.Count(body, "event: jobs"))
}

func testSettings() config.RuntimeSettings {
	return config.RuntimeSettings{
		LLMAPIURL:     "https://old.example/v1",
		LLMAPIKey:     "sk-old-secret",
		LLMModel:      "old-model",
		NewsCron:      "0 */6 * * *",
		CircularsCron: "30 2 * * *",
	}
}

func TestServer_GetSettings(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}
	srv := NewServer(nil, nil, WithRuntimeSettingsStore(store))

	rec := do(t, srv, http.MethodGet, "/api/settings", openSession(t, srv), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[config.RuntimeSettings](t, rec)
	assert.Equal(t, "*********cret", got.LLMAPIKey)
	assert.NotContains(t, rec.Body.String(), "sk-old-secret")
	got.LLMAPIKey = store.current.LLMAPIKey
	assert.Equal(t, store.current, got)
}

func TestServer_AdminRoutesRequireSession(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}
	var applyCalls int
	srv := NewServer(nil, jobs.NewQueue(1, nil),
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(config.RuntimeSettings) error {
			applyCalls++
			return nil
		}),
		WithScheduler(&fakeScheduler{}),
	)

	hijack := testSettings()
	hijack.LLMAPIURL = "https://attacker.example/v1"
	for _, tc := range []struct {
		method, target string
		body           any
	}{
		{http.MethodGet, "/api/settings", nil},
		{http.MethodPut, "/api/settings", hijack},
		{http.MethodGet, "/api/jobs", nil},
		{http.MethodPost, "/api/jobs", enqueueJobRequest{Link: "https://rbi.example/c/1"}},
		{http.MethodGet, "/api/jobs/stream", nil},
		{http.MethodPost, "/api/news/refresh", nil},
		{http.MethodPost, "/api/circulars/sync", nil},
		{http.MethodGet, "/api/schedule", nil},
	} {
		rec := do(t, srv, tc.method, tc.target, "", tc.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.target)
		rec = do(t, srv, tc.method, tc.target, "stale-session", tc.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.target)
	}
	assert.Equal(t, "https://old.example/v1", store.current.LLMAPIURL)
	assert.Zero(t, applyCalls)
}

func TestServer_UpdateSettings_KeepsKeyWhenMaskedValueEchoed(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}
	var applied config.RuntimeSettings
	srv := NewServer(nil, nil,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			return nil
		}),
	)
	sid := openSession(t, srv)

	shown := decode[config.RuntimeSettings](t, do(t, srv, http.MethodGet, "/api/settings", sid, nil))
	shown.LLMModel = "new-model"
	rec := do(t, srv, http.MethodPut, "/api/settings", sid, shown)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "sk-old-secret", store.current.LLMAPIKey)
	assert.Equal(t, "sk-old-secret", applied.LLMAPIKey)
	assert.Equal(t, "new-model", applied.LLMModel)
	assert.Equal(t, "*********cret", decode[config.RuntimeSettings](t, rec).LLMAPIKey)
}

func TestServer_UpdateSettings_AppliesRuntimeSettingsImmediately(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}

	var applied config.RuntimeSettings
	var applyCalls int
	srv := NewServer(nil, nil,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			applyCalls++
			return nil
		}),
	)

	body := []byte(`{"llm_api_url":"https://new.example/v1","llm_api_key":"sk-new-key","llm_model":"new-model","news_cron":"0 * * * *","circulars_cron":"*/10 * * * *"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body))
	req.Header.Set(SessionHeader, openSession(t, srv))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[config.RuntimeSettings](t, rec)
	require.Equal(t, "new-model", got.LLMModel)
	require.Equal(t, "******-key", got.LLMAPIKey)
	require.Equal(t, "sk-new-key", store.current.LLMAPIKey)
	require.Equal(t, "sk-new-key", applied.LLMAPIKey)
	require.Equal(t, 1, applyCalls)
	require.Equal(t, "0 * * * *", applied.NewsCron)
	require.Equal(t, "*/10 * * * *", applied.CircularsCron)
}

func TestServer_UpdateSettings_Rejects(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}
	srv := NewServer(nil, nil, WithRuntimeSettingsStore(store))
	sid := openSession(t, srv)

	bad := testSettings()
	bad.NewsCron = "whenever"
	rec := do(t, srv, http.MethodPut, "/api/settings", sid, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	store.updateErr = errors.New("save failed")
	rec = do(t, srv, http.MethodPut, "/api/settings", sid, testSettings())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_News(t *testing.T) {
	sch := &fakeScheduler{}
	srv := NewServer(nil, nil, WithNews(&fakeNews{}), WithScheduler(sch))

	rec := do(t, srv, http.MethodGet, "/api/news", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[news.Digest](t, rec).Articles)

	sid := openSession(t, srv)
	rec = do(t, srv, http.MethodPost, "/api/news/refresh", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sch.newsCalls)
	assert.Len(t, decode[news.Digest](t, rec).Articles, 1)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodGet, "/api/news/refresh", sid, nil).Code)
}

func TestServer_CircularSearch(t *testing.T) {
	circ := &fakeCirculars{}
	srv := NewServer(nil, nil, WithCirculars(circ))

	rec := do(t, srv, http.MethodPost, "/api/circulars/search", "", circularSearchRequest{Query: "KYC", NumResults: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KYC", circ.query)
	assert.Equal(t, 3, circ.n)
	assert.Equal(t, "KYC answer", decode[docqa.Answer](t, rec).Response)

	rec = do(t, srv, http.MethodGet, "/api/circulars/content?link=https://rbi.example/c/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "content of https://rbi.example/c/1")

	rec = do(t, srv, http.MethodGet, "/api/circulars/content", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	circ.err = errors.New("qdrant down")
	rec = do(t, srv, http.MethodPost, "/api/circulars/search", "", circularSearchRequest{Query: "KYC"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_CircularSyncAndSchedule(t *testing.T) {
	sch := &fakeScheduler{}
	srv := NewServer(nil, nil, WithScheduler(sch))
	sid := openSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/circulars/sync", sid, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, service.SourceManual, sch.source)
	assert.Equal(t, 2, decode[service.ListingResult](t, rec).Enqueued)

	rec = do(t, srv, http.MethodGet, "/api/schedule", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[[]service.TaskStatus](t, rec)
	require.Len(t, status, 1)
	assert.Equal(t, "0 */6 * * *", status[0].Trigger.Expression)
}

func TestServer_Health(t *testing.T) {
	srv := NewServer(nil, jobs.NewQueue(1, nil))
	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

type recordingErrors struct {
	handled []error
}

func (r *recordingErrors) Handle(err error) bool {
	r.handled = append(r.handled, err)
	return true
}

func (r *recordingErrors) GetAdvice(service.ErrorType) string { return "" }

func TestServer_ServerErrorsReachErrorHandler(t *testing.T) {
	errs := &recordingErrors{}
	circ := &fakeCirculars{err: errors.New("qdrant down")}
	srv := NewServer(nil, nil, WithCirculars(circ), WithErrorHandler(errs))

	rec := do(t, srv, http.MethodPost, "/api/circulars/search", "", circularSearchRequest{Query: "KYC"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "qdrant down")
	require.Len(t, errs.handled, 1)
	assert.EqualError(t, errs.handled[0], "qdrant down")

	circ.err = assistant.ErrEmptyQuery
	rec = do(t, srv, http.MethodPost, "/api/circulars/search", "", circularSearchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, errs.handled, 1)
}
