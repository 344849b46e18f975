// Package news builds the recent-news digest shown next to the chat.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/llm"
	"github.com/MimeLyc/ai-search-assistant/internal/persistence"
	"github.com/MimeLyc/ai-search-assistant/internal/tools"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

const (
	LatestPath   = "news/latest"
	DefaultTopic = "NPCI India and Indian payment related articles"
	RecentDate   = "Recent"
	DateLayout   = "2006-01-02 15:04:05 UTC"

	DefaultLimit          = 10
	MaxAge                = 7 * 24 * time.Hour
	DefaultRefreshTimeout = 2 * time.Minute
	searchResults         = 20
)

var (
	IncludeDomains = []string{"bbc.com", "cnn.com", "reuters.com", "apnews.com", "bloomberg.com", "nytimes.com", "wsj.com"}
	ExcludeDomains = []string{"wikipedia.org"}
)

var ErrNoDigest = errors.New("no news digest yet")

// articlesSchema is what the model must return.
var articlesSchema = []byte(`{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["title", "summary", "url", "date", "source"],
    "properties": {
      "title":   {"type": "string", "minLength": 1},
      "summary": {"type": "string"},
      "url":     {"type": "string"},
      "date":    {"type": "string"},
      "source":  {"type": "string"}
    }
  }
}`)

type Article struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}

// Published parses Date. It accepts the full UTC layout, RFC 3339 or a bare
// YYYY-MM-DD.
func (a Article) Published() (time.Time, bool) {
	date := strings.TrimSpace(a.Date)
	if date == "" || strings.EqualFold(date, RecentDate) {
		return time.Time{}, false
	}
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.UTC(), true
		}
	}
	if fields := strings.Fields(date); len(fields) > 0 {
		if t, err := time.Parse("2006-01-02", fields[0]); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Age renders how long ago the article was published, e.g. "3 hours ago".
func (a Article) Age(now time.Time) string {
	t, ok := a.Published()
	if !ok {
		return RecentDate
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Digest is one refresh result.
type Digest struct {
	Topic       string    `json:"topic"`
	Articles    []Article `json:"articles"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

type Searcher interface {
	Search(ctx context.Context, req tools.SearchRequest) ([]tools.SearchHit, error)
}

type Service struct {
	searcher Searcher
	chat     agent.ChatClient
	kv       persistence.KV
	topic    string
	limit    int
	now      func() time.Time
	timeout  time.Duration

	group singleflight.Group
}

type Option func(*Service)

func WithTopic(topic string) Option {
	return func(s *Service) {
		if strings.TrimSpace(topic) != "" {
			s.topic = topic
		}
	}
}

func WithLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithRefreshTimeout bounds one shared refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(searcher Searcher, chat agent.ChatClient, kv persistence.KV, opts ...Option) *Service {
	s := &Service{
		searcher: searcher,
		chat:     chat,
		kv:       kv,
		topic:    DefaultTopic,
		limit:    DefaultLimit,
		now:      time.Now,
		timeout:  DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh searches for the latest news, has the model pick and summarise the
// articles and stores the digest. Concurrent calls share one refresh, which
// runs detached from any single caller and is bounded by the refresh timeout.
func (s *Service) Refresh(ctx context.Context) (*Digest, error) {
	ch := s.group.DoChan("refresh", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(runCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("News refresh shared with a concurrent caller")
		}
		return res.Val.(*Digest), nil
	}
}

func (s *Service) refresh(ctx context.Context) (*Digest, error) {
	now := s.now().UTC()
	today := now.Format("2006-01-02")

	hits, err := s.searcher.Search(ctx, tools.SearchRequest{
		Query:          fmt.Sprintf("latest news as of %s related to %s", today, s.topic),
		MaxResults:     searchResults,
		IncludeDomains: IncludeDomains,
		ExcludeDomains: ExcludeDomains,
		TimeRange:      "d",
		Topic:          "news",
	})
	if err != nil {
		return nil, fmt.Errorf("search news: %w", err)
	}

	results, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("encode search results: %w", err)
	}

	resp, err := s.chat.Chat(ctx, []llm.Message{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(digestPrompt, s.limit, s.topic, today, string(results)),
	}}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("summarise news: %w", err)
	}

	articles, err := ParseArticles(resp.Content)
	if err != nil {
		return nil, err
	}

	digest := &Digest{
		Topic:       s.topic,
		Articles:    FilterRecent(articles, now, s.limit),
		RefreshedAt: now,
	}
	if err := s.kv.Set(ctx, LatestPath, digest); err != nil {
		return nil, fmt.Errorf("store news digest: %w", err)
	}
	log.Info("News digest refreshed: %d of %d articles kept", len(digest.Articles), len(articles))
	return digest, nil
}

// Latest returns the stored digest or ErrNoDigest.
func (s *Service) Latest(ctx context.Context) (*Digest, error) {
	raw, err := s.kv.Get(ctx, LatestPath)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrNoDigest
		}
		return nil, err
	}
	var digest Digest
	if err := json.Unmarshal(raw, &digest); err != nil {
		return nil, fmt.Errorf("decode news digest: %w", err)
	}
	return &digest, nil
}

// ParseArticles decodes the model's article list. Anything that is not a JSON
// array of articles is a *llm.MalformedModelOutputError.
func ParseArticles(output string) ([]Article, error) {
	var articles []Article
	if err := llm.DecodeStrict(output, articlesSchema, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// FilterRecent drops articles older than MaxAge and keeps at most limit.
// Articles without a parseable date are kept. Parsed dates are rewritten in
// DateLayout and missing ones become RecentDate.
func FilterRecent(articles []Article, now time.Time, limit int) []Article {
	if limit <= 0 {
		limit = DefaultLimit
	}
	kept := make([]Article, 0, len(articles))
	for _, a := range articles {
		t, ok := a.Published()
		if ok && now.Sub(t) > MaxAge {
			continue
		}
		if ok || strings.TrimSpace(a.Date) == "" {
			a.Date = FormatDate(t)
		}
		kept = append(kept, a)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

// FormatDate renders t in DateLayout, or "Recent" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return RecentDate
	}
	return t.UTC().Format(DateLayout)
}

const digestPrompt = `Based on these search results, identify the %d most recent and relevant news articles related to %s.
Today's date is %s. Only include articles from the past week, prioritizing the most recent ones.
For each article, provide:
1. A concise title (max 15 words)
2. A brief summary (2-3 sentences)
3. The source URL
4. The exact publication date and time (if available, in UTC)
5. The source name

Return only a JSON array of objects, each containing "title", "summary", "url", "date" and "source" keys.
The "date" field must be in the format 'YYYY-MM-DD HH:MM:SS UTC' if available, or 'YYYY-MM-DD' if only the date is known.
If the exact date is not available, use "Recent" as the date value.

Sort the articles by date, with the most recent first.

Search results:
%s`
