package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	WebSearchToolName = "web_search"

	DefaultMaxResults = 5
	maxContentChars   = 500
)

// WebSearchTool implements web search using Tavily API
type WebSearchTool struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// WebSearchArgs represents the arguments the model passes to web_search
type WebSearchArgs struct {
	Query      string `json:"query" required:"true" description:"The search query. Be specific and include names, dates or places when relevant."`
	MaxResults int    `json:"max_results,omitempty" minimum:"1" maximum:"20" description:"Number of results to return (default 5)"`
}

var webSearchSchema = MustSchemaFor(WebSearchArgs{})

// SearchRequest is a direct search call.
type SearchRequest struct {
	Query          string
	MaxResults     int
	IncludeDomains []string
	ExcludeDomains []string
	// TimeRange limits results to the last day, week, month or year ("d", "w", "m", "y").
	TimeRange string
	Topic     string
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// TavilyRequest represents a request to Tavily API
type TavilyRequest struct {
	APIKey            string   `json:"api_key"`
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth,omitempty"`
	Topic             string   `json:"topic,omitempty"`
	IncludeAnswer     bool     `json:"include_answer,omitempty"`
	IncludeRawContent bool     `json:"include_raw_content,omitempty"`
	MaxResults        int      `json:"max_results,omitempty"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
	TimeRange         string   `json:"time_range,omitempty"`
}

// TavilyResponse represents a response from Tavily API
type TavilyResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []TavilyResult `json:"results"`
}

// TavilyResult represents a single search result
type TavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// SearchResults is the structured payload of a web_search observation.
type SearchResults struct {
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
}

// NewWebSearchTool creates a new web search tool
func NewWebSearchTool(apiKey, apiURL string) *WebSearchTool {
	if apiURL == "" {
		apiURL = "https://api.tavily.com/search"
	}
	return &WebSearchTool{
		apiKey: apiKey,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *WebSearchTool) Name() string {
	return WebSearchToolName
}

func (t *WebSearchTool) Description() string {
	return `Search the web for current information.
Use this tool for questions about recent events, facts you are unsure of, or anything that needs a cited source.
Returns ranked results with title, URL and a content snippet.`
}

func (t *WebSearchTool) Parameters() json.RawMessage {
	return webSearchSchema
}

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (Observation, error) {
	var searchArgs WebSearchArgs
	if err := json.Unmarshal(args, &searchArgs); err != nil {
		return Observation{}, fmt.Errorf("failed to parse search arguments: %w", err)
	}
	if strings.TrimSpace(searchArgs.Query) == "" {
		return Observation{}, fmt.Errorf("query is required")
	}

	hits, err := t.Search(ctx, SearchRequest{Query: searchArgs.Query, MaxResults: searchArgs.MaxResults})
	if err != nil {
		return Observation{}, err
	}

	return Observation{
		Content: FormatHits(searchArgs.Query, hits),
		Data:    SearchResults{Query: searchArgs.Query, Hits: hits},
	}, nil
}

// Search runs a query against Tavily and returns the ranked hits.
func (t *WebSearchTool) Search(ctx context.Context, sr SearchRequest) ([]SearchHit, error) {
	maxResults := sr.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	resp, err := t.search(ctx, TavilyRequest{
		APIKey:         t.apiKey,
		Query:          sr.Query,
		SearchDepth:    "basic",
		Topic:          sr.Topic,
		MaxResults:     maxResults,
		IncludeDomains: sr.IncludeDomains,
		ExcludeDomains: sr.ExcludeDomains,
		TimeRange:      sr.TimeRange,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, SearchHit{
			Title:         r.Title,
			URL:           r.URL,
			Content:       r.Content,
			Score:         r.Score,
			PublishedDate: r.PublishedDate,
		})
	}
	return hits, nil
}

func (t *WebSearchTool) search(ctx context.Context, request TavilyRequest) (*TavilyResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var tavilyResp TavilyResponse
	if err := json.Unmarshal(body, &tavilyResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &tavilyResp, nil
}

// FormatHits renders hits as the text the model reads.
func FormatHits(query string, hits []SearchHit) string {
	var result bytes.Buffer

	result.WriteString(fmt.Sprintf("Search Query: %s\n\n", query))

	if len(hits) == 0 {
		result.WriteString("No results found.\n")
		return result.String()
	}

	result.WriteString("Search Results:\n")
	for i, r := range hits {
		result.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, r.Title))
		result.WriteString(fmt.Sprintf("   URL: %s\n", r.URL))
		result.WriteString(fmt.Sprintf("   Content: %s\n", clip(r.Content, maxContentChars)))
	}

	return result.String()
}

// clip cuts s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
