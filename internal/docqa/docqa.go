// Package docqa answers questions over the indexed RBI circulars.
package docqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/llm"
	"github.com/MimeLyc/ai-search-assistant/internal/persistence"
	"github.com/MimeLyc/ai-search-assistant/internal/vectorstore"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

const (
	DefaultResults = 5
	MaxResults     = 10

	EmptyQueryMessage  = "Please enter a query."
	NoResultsMessage   = "No relevant circulars found."
	NoContentMessage   = "Full content could not be extracted. Please visit the original link."
	DefaultContentTTL  = 24 * time.Hour
	answerTemperature  = 0.3
	answerMaxTokens    = 1000
	contentCachePrefix = "circulars/content/"
)

const systemPrompt = "You are a helpful assistant specializing in RBI policies and circulars."

const answerPrompt = `You are an RBI policy expert. Use the following RBI circulars to answer the user's question.
If the information is not in the circulars, say you don't know.

User Query: %s

Retrieved Circulars:
%s
Please provide a comprehensive answer based on the information in these circulars.
`

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]vectorstore.Hit, error)
}

// ContentFetcher returns the readable text of a circular page and whether any was found.
type ContentFetcher interface {
	FullText(ctx context.Context, link string) (string, bool, error)
}

// Cache keeps fetched circular text. *persistence.SQLiteStore satisfies it.
type Cache interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	SetWithTTL(ctx context.Context, path string, value any, ttl time.Duration) error
}

// Circular is one retrieved document.
type Circular struct {
	Score          float64 `json:"score"`
	CircularNumber string  `json:"circular_number"`
	Title          string  `json:"title"`
	Department     string  `json:"department"`
	Date           string  `json:"date"`
	MeantFor       string  `json:"meant_for"`
	Link           string  `json:"link"`
	Preview        string  `json:"preview"`
}

// Relevance is the score as a whole percentage.
func (c Circular) Relevance() int {
	return int(c.Score * 100)
}

type Answer struct {
	Response     string     `json:"response"`
	ResponseHTML string     `json:"response_html,omitempty"`
	Circulars    []Circular `json:"circulars"`
}

type Service struct {
	embedder Embedder
	searcher Searcher
	chat     agent.ChatClient
	fetcher  ContentFetcher
	cache    Cache
	cacheTTL time.Duration
}

type Option func(*Service)

func WithContentFetcher(f ContentFetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithCache stores fetched circular text for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func New(embedder Embedder, searcher Searcher, chat agent.ChatClient, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		searcher: searcher,
		chat:     chat,
		cacheTTL: DefaultContentTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampResults keeps n within 1..MaxResults, using DefaultResults for n <= 0.
func ClampResults(n int) int {
	switch {
	case n <= 0:
		return DefaultResults
	case n > MaxResults:
		return MaxResults
	default:
		return n
	}
}

// Query retrieves the circulars closest to query and asks the model to answer from them.
func (s *Service) Query(ctx context.Context, query string, numResults int) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return &Answer{Response: EmptyQueryMessage}, nil
	}

	circulars, err := s.Search(ctx, query, numResults)
	if err != nil {
		return nil, err
	}
	if len(circulars) == 0 {
		return &Answer{Response: NoResultsMessage}, nil
	}

	prompt := fmt.Sprintf(answerPrompt, query, buildContext(circulars))
	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(systemPrompt).
		WithTemperature(answerTemperature).
		WithMaxTokens(answerMaxTokens)
	resp, err := s.chat.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	answer := &Answer{
		Response:  strings.TrimSpace(resp.Content),
		Circulars: circulars,
	}
	answer.ResponseHTML = RenderHTML(answer.Response)
	return answer, nil
}

// Search embeds query and returns the nearest circulars.
func (s *Service) Search(ctx context.Context, query string, numResults int) ([]Circular, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.searcher.Search(ctx, vector, ClampResults(numResults))
	if err != nil {
		return nil, fmt.Errorf("search circulars: %w", err)
	}

	circulars := make([]Circular, 0, len(hits))
	for _, h := range hits {
		circulars = append(circulars, Circular{
			Score:          h.Score,
			CircularNumber: h.String("circular_number"),
			Title:          h.String("title"),
			Department:     h.String("department"),
			Date:           h.String("date"),
			MeantFor:       h.String("meant_for"),
			Link:           h.String("link"),
			Preview:        h.String("text"),
		})
	}
	return circulars, nil
}

// FullContent returns the text of the circular at link. Fetch failures are
// reported in the returned text, not as an error.
func (s *Service) FullContent(ctx context.Context, link string) string {
	if s.fetcher == nil || strings.TrimSpace(link) == "" {
		return NoContentMessage
	}

	key := contentCachePrefix + link
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var cached string
			if err := json.Unmarshal(raw, &cached); err == nil && cached != "" {
				return cached
			}
		} else if !errors.Is(err, persistence.ErrNotFound) {
			log.Warn("Content cache read failed for %s: %v", link, err)
		}
	}

	text, ok, err := s.fetcher.FullText(ctx, link)
	if err != nil {
		return fmt.Sprintf("Error fetching content: %v", err)
	}
	if !ok {
		return NoContentMessage
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, key, text, s.cacheTTL); err != nil {
			log.Warn("Content cache write failed for %s: %v", link, err)
		}
	}
	return text
}

func buildContext(circulars []Circular) string {
	var b strings.Builder
	for i, c := range circulars {
		fmt.Fprintf(&b, "Document %d:\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", c.Title)
		fmt.Fprintf(&b, "Circular Number: %s\n", c.CircularNumber)
		fmt.Fprintf(&b, "Department: %s\n", c.Department)
		fmt.Fprintf(&b, "Date: %s\n", c.Date)
		fmt.Fprintf(&b, "Preview: %s\n\n", c.Preview)
	}
	return b.String()
}

// RenderHTML converts a markdown answer to HTML. It returns "" if conversion fails.
func RenderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return ""
	}
	return buf.String()
}
