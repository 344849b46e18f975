package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMAPIURL:     "https://example.test/v1",
		LLMAPIKey:     "ak-test",
		LLMModel:      "model-test",
		NewsCron:      "*/5 * * * *",
		CircularsCron: "0 3 * * *",
		ReplyLanguage: "en",
	}
}

func TestRuntimeSettings_Validate(t *testing.T) {
	valid := validSettings()
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.NewsCron = "bad cron"
	require.Error(t, invalid.Validate())

	missingCron := valid
	missingCron.CircularsCron = ""
	require.Error(t, missingCron.Validate())

	invalidLang := valid
	invalidLang.ReplyLanguage = "not a language tag"
	require.Error(t, invalidLang.Validate())

	autoLang := valid
	autoLang.ReplyLanguage = ""
	require.NoError(t, autoLang.Validate())
}

func TestRuntimeSettings_ValidateNamesJSONField(t *testing.T) {
	s := validSettings()
	s.LLMModel = "   "
	assert.EqualError(t, s.Validate(), "llm_model is required")

	s = validSettings()
	s.LLMAPIURL = "not a url"
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_api_url")

	s = validSettings()
	s.NewsCron = "61 * * * *"
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "news_cron")
	assert.Contains(t, err.Error(), "cronspec")
}

func TestRuntimeSettingsStore_TrimsBeforeSaving(t *testing.T) {
	store, err := NewRuntimeSettingsStore(filepath.Join(t.TempDir(), "settings.json"), validSettings())
	require.NoError(t, err)

	next := validSettings()
	next.LLMModel = "  spaced-model  "
	saved, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, "spaced-model", saved.LLMModel)
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "runtime.json")
	input := validSettings()

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("LLM_API_URL", "https://env.example/v1")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("NEWS_CRON", "0 1 * * *")

	override := RuntimeSettings{
		LLMAPIURL:     "https://file.example/v1",
		LLMAPIKey:     "file-key",
		LLMModel:      "file-model",
		NewsCron:      "*/30 * * * *",
		CircularsCron: "15 4 * * *",
		ReplyLanguage: "ja",
	}

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, override.LLMAPIURL, cfg.LLM.APIURL)
	assert.Equal(t, override.LLMAPIKey, cfg.LLM.APIKey)
	assert.Equal(t, override.LLMModel, cfg.LLM.Model)
	assert.Equal(t, override.NewsCron, cfg.Schedule.NewsCron)
	assert.Equal(t, override.CircularsCron, cfg.Schedule.CircularsCron)
	assert.Equal(t, "ja", cfg.Assistant.ReplyTag().String())
}

func TestRuntimeSettingsStore_UpdatePersistsFile(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "runtime-settings.json")

	store, err := NewRuntimeSettingsStore(filePath, validSettings())
	require.NoError(t, err)

	next := RuntimeSettings{
		LLMAPIURL:     "https://new.example/v1",
		LLMAPIKey:     "new-ak",
		LLMModel:      "new-model",
		NewsCron:      "*/10 * * * *",
		CircularsCron: "0 5 * * *",
	}
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	loaded, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, loaded)

	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, next, current)
}

func TestRuntimeSettingsStore_RejectsInvalidUpdate(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runtime-settings.json")
	store, err := NewRuntimeSettingsStore(filePath, validSettings())
	require.NoError(t, err)

	bad := validSettings()
	bad.LLMModel = " "
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)

	_, statErr := os.Stat(filePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRuntimeSettings_MaskedAndKeepKey(t *testing.T) {
	current := RuntimeSettings{LLMAPIKey: "sk-abcdef1234"}

	masked := current.Masked()
	assert.Equal(t, "*********1234", masked.LLMAPIKey)
	assert.Equal(t, "***", RuntimeSettings{LLMAPIKey: "abc"}.Masked().LLMAPIKey)

	assert.Equal(t, "sk-abcdef1234", masked.KeepKey(current).LLMAPIKey)
	assert.Equal(t, "sk-abcdef1234", RuntimeSettings{}.KeepKey(current).LLMAPIKey)
	assert.Equal(t, "sk-new", RuntimeSettings{LLMAPIKey: "sk-new"}.KeepKey(current).LLMAPIKey)
}
