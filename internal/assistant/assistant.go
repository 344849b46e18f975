// Package assistant answers chat questions: relevance gate, agent loop,
// source summaries and the single direct-search fallback.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/history"
	"github.com/MimeLyc/ai-search-assistant/internal/summary"
	"github.com/MimeLyc/ai-search-assistant/internal/tools"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

const (
	IrrelevantMessage = "I apologize, but this query doesn't seem to be related to your department or interests. Would you like to rephrase your question or ask something more relevant?"
	DegradedMessage   = "I apologize, but I encountered an error while processing the search results. Please try your query again or rephrase it."
	NoResultsMessage  = "No search results found."

	topSources = 5
)

var ErrEmptyQuery = errors.New("query is required")

// Outcome is how a question was answered.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeFallback   Outcome = "fallback"
	OutcomeIrrelevant Outcome = "irrelevant"
	OutcomeDegraded   Outcome = "degraded"
)

type Agent interface {
	Execute(ctx context.Context, req agent.Request) (*agent.Result, error)
}

type Searcher interface {
	Search(ctx context.Context, req tools.SearchRequest) ([]tools.SearchHit, error)
}

type Summarizer interface {
	Title(ctx context.Context, firstMessage string, opts ...summary.Option) (string, error)
	SummarizeDocument(ctx context.Context, content string, opts ...summary.Option) (string, error)
	OverallSummary(ctx context.Context, docs []string, opts ...summary.Option) (string, error)
	IsRelevant(ctx context.Context, query string, profile summary.Profile) (bool, error)
}

type ChatLog interface {
	Append(ctx context.Context, uid, question, response, title string) (history.ChatLog, error)
}

// Source is one cited search hit.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

type Reply struct {
	ConversationID string       `json:"conversation_id"`
	Title          string       `json:"title"`
	Answer         string       `json:"answer"`
	Outcome        Outcome      `json:"outcome"`
	Sources        []Source     `json:"sources,omitempty"`
	Turns          []chat.Turn  `json:"turns"`
	Steps          int          `json:"steps"`
	Language       language.Tag `json:"-"`
}

type Assistant struct {
	agent      Agent
	searcher   Searcher
	summarizer Summarizer
	chatLog    ChatLog
	gate       bool
	replyLang  language.Tag
}

type Option func(*Assistant)

// WithChatLog persists every exchange.
func WithChatLog(l ChatLog) Option {
	return func(a *Assistant) {
		a.chatLog = l
	}
}

// WithRelevanceGate turns the profile relevance check on or off. It is on by default.
func WithRelevanceGate(enabled bool) Option {
	return func(a *Assistant) {
		a.gate = enabled
	}
}

// WithReplyLanguage fixes the reply language instead of following the query.
func WithReplyLanguage(tag language.Tag) Option {
	return func(a *Assistant) {
		a.replyLang = tag
	}
}

func New(ag Agent, searcher Searcher, summarizer Summarizer, opts ...Option) *Assistant {
	a := &Assistant{
		agent:      ag,
		searcher:   searcher,
		summarizer: summarizer,
		gate:       true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask answers query inside the given conversation. The exchange is appended
// to the conversation only once an answer, fallback or apology is settled.
func (a *Assistant) Ask(ctx context.Context, session *chat.Session, conversationID, query string) (*Reply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	conv, err := session.Conversation(conversationID)
	if err != nil {
		return nil, err
	}

	user := session.User()
	reply := a.Answer(ctx, user, query)

	firstExchange := conv.Len() == 0
	reply.Turns = conv.AppendExchange(query, reply.Answer)
	if firstExchange {
		title, err := a.summarizer.Title(ctx, query, summary.WithLanguage(reply.Language))
		if err != nil {
			log.Warn("Failed to title conversation %s: %v", conv.ID(), err)
		}
		conv.SetTitle(title)
	}
	reply.ConversationID = conv.ID()
	reply.Title = conv.Title()

	if a.chatLog != nil && user.UID != "" {
		if _, err := a.chatLog.Append(ctx, user.UID, query, reply.Answer, reply.Title); err != nil {
			log.Warn("Failed to store chat log for %s: %v", user.UID, err)
		}
	}
	return reply, nil
}

// Answer runs the pipeline without touching any conversation.
func (a *Assistant) Answer(ctx context.Context, user chat.User, query string) *Reply {
	lang := a.replyLang
	if lang == language.Und {
		lang = DetectLanguage(query)
	}
	reply := &Reply{Language: lang}

	if a.gate && !a.relevant(ctx, user, query) {
		reply.Answer = IrrelevantMessage
		reply.Outcome = OutcomeIrrelevant
		return reply
	}

	result, err := a.agent.Execute(ctx, agent.Request{Query: query})
	if err != nil {
		log.Warn("Agent loop failed, falling back to direct search: %v", err)
		return a.fallback(ctx, query, lang, reply)
	}
	reply.Steps = len(result.Steps)

	hits, ok := hitsFromResult(result)
	if !ok {
		hits, err = a.search(ctx, query)
		if err != nil {
			log.Warn("Source search failed: %v", err)
		}
	}

	sources, formatted := a.formatSources(ctx, hits, lang)
	overall := a.overall(ctx, hits, lang)
	reply.Sources = sources
	reply.Answer = fmt.Sprintf("%s\n\n%s\nOverall Summary:\n%s", result.Answer, formatted, overall)
	reply.Outcome = OutcomeAnswered
	return reply
}

// fallback runs exactly one direct search with the raw query.
func (a *Assistant) fallback(ctx context.Context, query string, lang language.Tag, reply *Reply) *Reply {
	hits, err := a.search(ctx, query)
	if err != nil {
		log.Error("Direct search fallback failed: %v", err)
		reply.Answer = DegradedMessage
		reply.Outcome = OutcomeDegraded
		return reply
	}
	sources, formatted := a.formatSources(ctx, hits, lang)
	reply.Sources = sources
	reply.Answer = fmt.Sprintf("%s\nOverall Summary:\n%s", formatted, a.overall(ctx, hits, lang))
	reply.Outcome = OutcomeFallback
	return reply
}

func (a *Assistant) relevant(ctx context.Context, user chat.User, query string) bool {
	ok, err := a.summarizer.IsRelevant(ctx, query, summary.Profile{
		Department: user.Department,
		Interests:  user.Interests,
	})
	if err != nil {
		log.Warn("Relevance check failed, treating query as irrelevant: %v", err)
		return false
	}
	return ok
}

func (a *Assistant) search(ctx context.Context, query string) ([]tools.SearchHit, error) {
	return a.searcher.Search(ctx, tools.SearchRequest{Query: query, MaxResults: tools.DefaultMaxResults})
}

// formatSources renders the top hits with three-line summaries, generated in parallel.
func (a *Assistant) formatSources(ctx context.Context, hits []tools.SearchHit, lang language.Tag) ([]Source, string) {
	if len(hits) == 0 {
		return nil, NoResultsMessage
	}
	if len(hits) > topSources {
		hits = hits[:topSources]
	}

	sources := make([]Source, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	for i, hit := range hits {
		title := hit.Title
		if strings.TrimSpace(title) == "" {
			title = fmt.Sprintf("Reference %d", i+1)
		}
		sources[i] = Source{Title: title, URL: hit.URL}
		g.Go(func() error {
			text, err := a.summarizer.SummarizeDocument(gctx, hit.Content, summary.WithLanguage(lang))
			if err != nil {
				log.Warn("Failed to summarise %s: %v", hit.URL, err)
				text = hit.Content
			}
			sources[i].Summary = text
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d Sources:\n\n", topSources)
	for i, s := range sources {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, s.Title, s.URL)
		fmt.Fprintf(&b, "   %s\n\n", s.Summary)
	}
	return sources, b.String()
}

func (a *Assistant) overall(ctx context.Context, hits []tools.SearchHit, lang language.Tag) string {
	docs := make([]string, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, h.Content)
	}
	text, err := a.summarizer.OverallSummary(ctx, docs, summary.WithLanguage(lang))
	if err != nil {
		log.Warn("Failed to build overall summary: %v", err)
		return summary.NoInformation
	}
	return text
}

// hitsFromResult takes the sources from the first tool step.
func hitsFromResult(result *agent.Result) ([]tools.SearchHit, bool) {
	obs, ok := result.FirstObservation()
	if !ok {
		return nil, false
	}
	switch data := obs.Data.(type) {
	case tools.SearchResults:
		return data.Hits, true
	case *tools.SearchResults:
		if data != nil {
			return data.Hits, true
		}
	}
	return nil, false
}

// DetectLanguage guesses the language of text. It returns language.Und when
// the guess is unreliable.
func DetectLanguage(text string) language.Tag {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return language.Und
	}
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil {
		return language.Und
	}
	return tag
}
