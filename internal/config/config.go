package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/ai-search-assistant/pkg/log"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values come from environment variables, an optional config file and defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY / OPENAI_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: OpenAI-compatible endpoint (default: https://api.openai.com/v1)
// - LLM_MODEL: chat model (default: gpt-3.5-turbo)
// - LLM_EMBEDDING_MODEL: embedding model (default: text-embedding-3-small)
// - LLM_MAX_TOKENS: maximum tokens for responses (default: 1000)
// - LLM_TEMPERATURE: sampling temperature (default: 0.7)
// - LLM_TIMEOUT: request timeout in seconds (default: 30)
//
// Search Configuration:
// - SEARCH_API_KEY / TAVILY_API_KEY: Tavily API key
// - SEARCH_API_URL: Tavily endpoint (default: https://api.tavily.com/search)
//
// Vector Configuration:
// - QDRANT_URL, QDRANT_API_KEY, QDRANT_COLLECTION_NAME (default: rbi_circulars)
//
// Agent Configuration:
// - AGENT_MAX_ITERATIONS: loop bound, 1..50 (default: 10)
// - AGENT_CALL_TIMEOUT: per external call timeout in seconds (default: 30)
// - AGENT_RETRY_BACKOFF: reasoning retry backoff in milliseconds (default: 500)
//
// System Configuration:
// - DATA_DIR (default: /app/data), DB_PATH, SETTINGS_FILE, TZ
// - SERVER_ADDR (default: :8080), UI_STATIC_DIR, UI_ENABLED
// - NEWS_CRON, CIRCULARS_CRON, CIRCULARS_LISTING_URL, INGEST_WORKERS
// - REPLY_LANGUAGE: fixed reply language (default: detect from query)
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm" json:"llm"`
	Search    SearchConfig    `mapstructure:"search" json:"search"`
	Vector    VectorConfig    `mapstructure:"vector" json:"vector"`
	Agent     AgentConfig     `mapstructure:"agent" json:"agent"`
	HTTP      HTTPConfig      `mapstructure:"http" json:"http"`
	System    SystemConfig    `mapstructure:"system" json:"system"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" json:"schedule"`
	Assistant AssistantConfig `mapstructure:"assistant" json:"assistant"`
}

// LLMConfig holds the configuration for the OpenAI-compatible client.
type LLMConfig struct {
	APIKey         string  `mapstructure:"api_key" json:"-" validate:"required"`
	APIURL         string  `mapstructure:"api_url" json:"api_url" validate:"required,url"`
	Model          string  `mapstructure:"model" json:"model" validate:"required"`
	EmbeddingModel string  `mapstructure:"embedding_model" json:"embedding_model" validate:"required"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens" validate:"gt=0"`
	Temperature    float64 `mapstructure:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	Timeout        int     `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
}

// SearchConfig holds the configuration for the web search tool.
type SearchConfig struct {
	APIKey string `mapstructure:"api_key" json:"-"`
	APIURL string `mapstructure:"api_url" json:"api_url" validate:"required,url"`
}

// VectorConfig points at the Qdrant instance backing document QA.
type VectorConfig struct {
	URL        string `mapstructure:"url" json:"url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key" json:"-"`
	Collection string `mapstructure:"collection" json:"collection" validate:"required"`
}

// AgentConfig holds the configuration for the tool-use loop.
type AgentConfig struct {
	MaxIterations  int `mapstructure:"max_iterations" json:"max_iterations" validate:"gte=1,lte=50"`
	CallTimeout    int `mapstructure:"call_timeout" json:"call_timeout" validate:"gt=0"`
	RetryBackoffMS int `mapstructure:"retry_backoff_ms" json:"retry_backoff_ms" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr" json:"addr" validate:"required"`
	UIStaticDir string `mapstructure:"ui_static_dir" json:"ui_static_dir"`
	UIEnabled   bool   `mapstructure:"ui_enabled" json:"ui_enabled"`
}

type SystemConfig struct {
	DataDir      string `mapstructure:"data_dir" json:"data_dir" validate:"required"`
	DBPath       string `mapstructure:"db_path" json:"db_path"`
	SettingsFile string `mapstructure:"settings_file" json:"settings_file"`
	TZ           string `mapstructure:"tz" json:"tz"`
	LogLevel     string `mapstructure:"log_level" json:"log_level"`
}

type ScheduleConfig struct {
	NewsCron            string `mapstructure:"news_cron" json:"news_cron" validate:"required,cronspec"`
	CircularsCron       string `mapstructure:"circulars_cron" json:"circulars_cron" validate:"required,cronspec"`
	CircularsListingURL string `mapstructure:"circulars_listing_url" json:"circulars_listing_url" validate:"required,url"`
	IngestWorkers       int    `mapstructure:"ingest_workers" json:"ingest_workers" validate:"gte=1,lte=32"`
}

type AssistantConfig struct {
	ReplyLanguage string `mapstructure:"reply_language" json:"reply_language" validate:"omitempty,langtag"`
}

// ReplyTag returns the fixed reply language, or language.Und when replies follow the query.
func (c AssistantConfig) ReplyTag() language.Tag {
	if c.ReplyLanguage == "" {
		return language.Und
	}
	tag, err := language.Parse(c.ReplyLanguage)
	if err != nil {
		return language.Und
	}
	return tag
}

// DBPath returns the sqlite database location.
func (c *Config) DBPath() string {
	if c.System.DBPath != "" {
		return c.System.DBPath
	}
	return filepath.Join(c.System.DataDir, "assistant.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// envBindings maps config keys to the environment variables that may set them.
var envBindings = map[string][]string{
	"llm.api_key":                    {"LLM_API_KEY", "OPENAI_API_KEY"},
	"llm.api_url":                    {"LLM_API_URL"},
	"llm.model":                      {"LLM_MODEL"},
	"llm.embedding_model":            {"LLM_EMBEDDING_MODEL"},
	"llm.max_tokens":                 {"LLM_MAX_TOKENS"},
	"llm.temperature":                {"LLM_TEMPERATURE"},
	"llm.timeout":                    {"LLM_TIMEOUT"},
	"search.api_key":                 {"SEARCH_API_KEY", "TAVILY_API_KEY"},
	"search.api_url":                 {"SEARCH_API_URL"},
	"vector.url":                     {"QDRANT_URL"},
	"vector.api_key":                 {"QDRANT_API_KEY"},
	"vector.collection":              {"QDRANT_COLLECTION_NAME"},
	"agent.max_iterations":           {"AGENT_MAX_ITERATIONS"},
	"agent.call_timeout":             {"AGENT_CALL_TIMEOUT"},
	"agent.retry_backoff_ms":         {"AGENT_RETRY_BACKOFF"},
	"http.addr":                      {"SERVER_ADDR"},
	"http.ui_static_dir":             {"UI_STATIC_DIR"},
	"http.ui_enabled":                {"UI_ENABLED"},
	"system.data_dir":                {"DATA_DIR"},
	"system.db_path":                 {"DB_PATH"},
	"system.settings_file":           {"SETTINGS_FILE"},
	"system.tz":                      {"TZ"},
	"system.log_level":               {"LOG_LEVEL"},
	"schedule.news_cron":             {"NEWS_CRON"},
	"schedule.circulars_cron":        {"CIRCULARS_CRON"},
	"schedule.circulars_listing_url": {"CIRCULARS_LISTING_URL"},
	"schedule.ingest_workers":        {"INGEST_WORKERS"},
	"assistant.reply_language":       {"REPLY_LANGUAGE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.api_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 30)

	v.SetDefault("search.api_url", "https://api.tavily.com/search")

	v.SetDefault("vector.url", "http://localhost:6333")
	v.SetDefault("vector.collection", "rbi_circulars")

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.call_timeout", 30)
	v.SetDefault("agent.retry_backoff_ms", 500)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.ui_static_dir", "/app/web")
	v.SetDefault("http.ui_enabled", true)

	v.SetDefault("system.data_dir", "/app/data")
	v.SetDefault("system.settings_file", DefaultRuntimeSettingsFile)
	v.SetDefault("system.tz", "UTC")
	v.SetDefault("system.log_level", "info")

	v.SetDefault("schedule.news_cron", "0 */6 * * *")
	v.SetDefault("schedule.circulars_cron", "30 2 * * *")
	v.SetDefault("schedule.circulars_listing_url", "https://m.rbi.org.in//scripts/BS_CircularIndexDisplay.aspx")
	v.SetDefault("schedule.ingest_workers", 4)
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	return Load("", opts...)
}

// Load reads configFile (if set), then the environment, then applies opts.
func Load(configFile string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// blank env values should not override defaults
	if strings.TrimSpace(config.System.DataDir) == "" {
		config.System.DataDir = "/app/data"
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config loaded: llm=%s model=%s max_iterations=%d db=%s",
		config.LLM.APIURL, config.LLM.Model, config.Agent.MaxIterations, config.DBPath())

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		if e.Namespace() == "Config.LLM.APIKey" {
			return fmt.Errorf("LLM_API_KEY is required")
		}
		return fmt.Errorf("invalid config %s: failed on '%s' (value %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
