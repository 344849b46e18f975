package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the settings editable while the server runs.
type RuntimeSettings struct {
	LLMAPIURL     string `json:"llm_api_url" validate:"required,url"`
	LLMAPIKey     string `json:"llm_api_key" validate:"required"`
	LLMModel      string `json:"llm_model" validate:"required"`
	NewsCron      string `json:"news_cron" validate:"required,cronspec"`
	CircularsCron string `json:"circulars_cron" validate:"required,cronspec"`
	ReplyLanguage string `json:"reply_language,omitempty" validate:"omitempty,langtag"`
}

var settingsValidator = sync.OnceValue(func() *validator.Validate {
	v := newValidator()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
})

// Validate reports the first invalid field by its JSON name.
func (s RuntimeSettings) Validate() error {
	err := settingsValidator().Struct(s.trimmed())
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	e := verrs[0]
	if e.Tag() == "required" {
		return fmt.Errorf("%s is required", e.Field())
	}
	return fmt.Errorf("invalid %s %q: failed on '%s'", e.Field(), e.Value(), e.Tag())
}

// Masked hides all but the last four characters of the API key.
func (s RuntimeSettings) Masked() RuntimeSettings {
	s.LLMAPIKey = maskKey(s.LLMAPIKey)
	return s
}

// KeepKey takes the API key from current when s leaves it empty or echoes
// back its masked form.
func (s RuntimeSettings) KeepKey(current RuntimeSettings) RuntimeSettings {
	key := strings.TrimSpace(s.LLMAPIKey)
	if key == "" || key == maskKey(current.LLMAPIKey) {
		s.LLMAPIKey = current.LLMAPIKey
	}
	return s
}

func maskKey(key string) string {
	const visible = 4
	runes := []rune(key)
	if len(runes) <= visible {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visible) + string(runes[len(runes)-visible:])
}

func (s RuntimeSettings) trimmed() RuntimeSettings {
	s.LLMAPIURL = strings.TrimSpace(s.LLMAPIURL)
	s.LLMAPIKey = strings.TrimSpace(s.LLMAPIKey)
	s.LLMModel = strings.TrimSpace(s.LLMModel)
	s.NewsCron = strings.TrimSpace(s.NewsCron)
	s.CircularsCron = strings.TrimSpace(s.CircularsCron)
	s.ReplyLanguage = strings.TrimSpace(s.ReplyLanguage)
	return s
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMAPIURL:     c.LLM.APIURL,
		LLMAPIKey:     c.LLM.APIKey,
		LLMModel:      c.LLM.Model,
		NewsCron:      c.Schedule.NewsCron,
		CircularsCron: c.Schedule.CircularsCron,
		ReplyLanguage: c.Assistant.ReplyLanguage,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.LLMAPIURL) != "" {
			c.LLM.APIURL = settings.LLMAPIURL
		}
		if strings.TrimSpace(settings.LLMAPIKey) != "" {
			c.LLM.APIKey = settings.LLMAPIKey
		}
		if strings.TrimSpace(settings.LLMModel) != "" {
			c.LLM.Model = settings.LLMModel
		}
		if strings.TrimSpace(settings.NewsCron) != "" {
			c.Schedule.NewsCron = settings.NewsCron
		}
		if strings.TrimSpace(settings.CircularsCron) != "" {
			c.Schedule.CircularsCron = settings.CircularsCron
		}
		if _, err := language.Parse(settings.ReplyLanguage); err == nil {
			c.Assistant.ReplyLanguage = settings.ReplyLanguage
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// UpdateRuntimeSettings validates next, writes it to disk and then makes it current.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	next = next.trimmed()
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
