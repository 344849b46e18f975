package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the configuration for the LLM client.
// Any OpenAI-compatible provider works (OpenAI, OpenRouter, local gateways).
type Config struct {
	APIKey         string  `json:"api_key"`
	APIURL         string  `json:"api_url"`
	Model          string  `json:"model"`
	EmbeddingModel string  `json:"embedding_model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	Timeout        int     `json:"timeout"`
	SiteURL        string  `json:"site_url"`
	AppName        string  `json:"app_name"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// GetHeaders returns the extra headers sent with every request.
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{}
	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}
	return headers
}

func (c *Config) baseURL() string {
	return strings.TrimRight(c.APIURL, "/") + "/"
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
