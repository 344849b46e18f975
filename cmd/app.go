package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/account"
	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/assistant"
	"github.com/MimeLyc/ai-search-assistant/internal/circulars"
	"github.com/MimeLyc/ai-search-assistant/internal/config"
	"github.com/MimeLyc/ai-search-assistant/internal/docqa"
	"github.com/MimeLyc/ai-search-assistant/internal/history"
	"github.com/MimeLyc/ai-search-assistant/internal/llm"
	"github.com/MimeLyc/ai-search-assistant/internal/news"
	"github.com/MimeLyc/ai-search-assistant/internal/persistence"
	"github.com/MimeLyc/ai-search-assistant/internal/summary"
	"github.com/MimeLyc/ai-search-assistant/internal/tools"
	"github.com/MimeLyc/ai-search-assistant/internal/vectorstore"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
	"github.com/rs/zerolog"
)

// liveClient forwards to the current LLM client. Settings updates swap it in place.
type liveClient struct {
	current atomic.Pointer[llm.Client]
}

func newLiveClient(c *llm.Client) *liveClient {
	l := &liveClient{}
	l.current.Store(c)
	return l
}

func (l *liveClient) Swap(c *llm.Client) {
	l.current.Store(c)
}

func (l *liveClient) Chat(ctx context.Context, messages []llm.Message, defs []llm.ToolDefinition, opts *llm.ChatCompletionOptions) (*llm.ChatResponse, error) {
	return l.current.Load().Chat(ctx, messages, defs, opts)
}

func (l *liveClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return l.current.Load().Embed(ctx, text)
}

type app struct {
	// cfg is replaced, never mutated, so readers need no lock.
	cfg        atomic.Pointer[config.Config]
	settingsMu sync.Mutex

	store     *persistence.SQLiteStore
	llm       *liveClient
	search    *tools.WebSearchTool
	agent     *agent.LLMAgent
	assistant *assistant.Assistant
	docqa     *docqa.Service
	scraper   *circulars.Scraper
	ingestor  *circulars.Ingestor
	news      *news.Service
	history   *history.Log
	accounts  *account.Service
}

type appOptions struct {
	relevanceGate bool
}

func llmConfig(cfg *config.Config) *llm.Config {
	return &llm.Config{
		APIKey:         cfg.LLM.APIKey,
		APIURL:         cfg.LLM.APIURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        cfg.LLM.Timeout,
	}
}

func agentPolicy(cfg *config.Config) agent.Policy {
	policy := agent.DefaultPolicy()
	policy.MaxIterations = cfg.Agent.MaxIterations
	policy.CallTimeout = time.Duration(cfg.Agent.CallTimeout) * time.Second
	policy.RetryBackoff = time.Duration(cfg.Agent.RetryBackoffMS) * time.Millisecond
	return policy
}

// loadConfig reads the config and overlays the saved runtime settings, if any.
func loadConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	saved, err := config.LoadRuntimeSettingsFile(cfg.System.SettingsFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		log.Warn("Ignoring runtime settings %s: %v", cfg.System.SettingsFile, err)
		return cfg, nil
	}
	return config.Load(configFile, config.WithRuntimeSettings(saved))
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	client, err := llm.NewClient(llmConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	live := newLiveClient(client)

	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.NewClient(cfg.Vector.URL, cfg.Vector.APIKey, cfg.Vector.Collection)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	search := tools.NewWebSearchTool(cfg.Search.APIKey, cfg.Search.APIURL)
	registry, err := tools.NewRegistry(search)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tracer := agent.NewZerologTracer(zerolog.New(os.Stderr).With().Timestamp().Str("component", "agent").Logger())
	loop, err := agent.NewLLMAgent(live, registry, "", agent.WithPolicy(agentPolicy(cfg)), agent.WithTracer(tracer))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	chatLog := history.New(store)
	scraper := circulars.NewScraper()

	a := &app{
		store:    store,
		llm:      live,
		search:   search,
		agent:    loop,
		scraper:  scraper,
		ingestor: circulars.NewIngestor(scraper, live, vectors),
		history:  chatLog,
		accounts: account.NewService(store),
		news:     news.NewService(search, live, store),
		docqa: docqa.New(live, vectors, live,
			docqa.WithContentFetcher(scraper),
			docqa.WithCache(store, docqa.DefaultContentTTL),
		),
	}
	a.cfg.Store(cfg)
	a.assistant = assistant.New(loop, search, summary.New(live),
		assistant.WithChatLog(chatLog),
		assistant.WithRelevanceGate(opts.relevanceGate),
		assistant.WithReplyLanguage(cfg.Assistant.ReplyTag()),
	)
	return a, nil
}

func (a *app) currentConfig() *config.Config {
	return a.cfg.Load()
}

// applySettings points the live client at the new provider settings and
// publishes the updated config.
func (a *app) applySettings(next config.RuntimeSettings) error {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()

	updated := *a.currentConfig()
	config.WithRuntimeSettings(next)(&updated)
	client, err := llm.NewClient(llmConfig(&updated))
	if err != nil {
		return err
	}
	a.llm.Swap(client)
	a.cfg.Store(&updated)
	log.Info("LLM client now uses %s at %s", updated.LLM.Model, updated.LLM.APIURL)
	return nil
}

func (a *app) Close() error {
	return errors.Join(a.agent.Close(), a.store.Close())
}
