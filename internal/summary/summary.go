// Package summary holds the one-shot prompt calls that post-process search results:
// titles, source summaries, the overall summary and the relevance gate.
package summary

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/llm"
)

const (
	DefaultTitle     = "New Conversation"
	NoInformation    = "No information available to summarize."
	titleWords       = 5
	overallDocsLimit = 5
)

// Profile is what the relevance gate checks a query against.
type Profile struct {
	Department string   `json:"department"`
	Interests  []string `json:"interests"`
}

// Option adjusts a single call.
type Option func(*callOptions)

type callOptions struct {
	lang language.Tag
}

// WithLanguage asks for the output in lang. language.Und leaves it to the model.
func WithLanguage(lang language.Tag) Option {
	return func(o *callOptions) {
		o.lang = lang
	}
}

// Summarizer issues stateless prompt-in/text-out calls.
type Summarizer struct {
	client agent.ChatClient
}

func New(client agent.ChatClient) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize condenses text to at most maxWords words.
func (s *Summarizer) Summarize(ctx context.Context, text string, maxWords int, opts ...Option) (string, error) {
	if maxWords <= 0 {
		maxWords = titleWords
	}
	prompt := fmt.Sprintf("Summarize the following message in %d words or less: %s", maxWords, text)
	return s.predict(ctx, prompt, opts)
}

// Title derives a short conversation title from its first message.
func (s *Summarizer) Title(ctx context.Context, firstMessage string, opts ...Option) (string, error) {
	if strings.TrimSpace(firstMessage) == "" {
		return DefaultTitle, nil
	}
	title, err := s.Summarize(ctx, firstMessage, titleWords, opts...)
	if err != nil {
		return DefaultTitle, err
	}
	title = strings.Trim(title, "\"' \n")
	if title == "" {
		return DefaultTitle, nil
	}
	return title, nil
}

// SummarizeDocument returns a three-line summary of content.
func (s *Summarizer) SummarizeDocument(ctx context.Context, content string, opts ...Option) (string, error) {
	prompt := fmt.Sprintf("Provide a three-line summary of the following content:\n\n%s\n\nSummary:", content)
	return s.predict(ctx, prompt, opts)
}

// OverallSummary condenses the first five documents into one summary.
func (s *Summarizer) OverallSummary(ctx context.Context, docs []string, opts ...Option) (string, error) {
	if len(docs) == 0 {
		return NoInformation, nil
	}
	if len(docs) > overallDocsLimit {
		docs = docs[:overallDocsLimit]
	}
	prompt := fmt.Sprintf(
		"Provide a concise overall summary of the following information:\n\n%s\n\nSummary:",
		strings.Join(docs, " "),
	)
	return s.predict(ctx, prompt, opts)
}

// IsRelevant asks whether query fits the profile. Any failure reports false
// together with an *agent.RelevanceCheckError.
func (s *Summarizer) IsRelevant(ctx context.Context, query string, profile Profile) (bool, error) {
	prompt := fmt.Sprintf(`Given the user's company department: %s
and interests: %s,
is the following query relevant? Query: %s
Respond with 'Yes' or 'No'.`,
		profile.Department,
		strings.Join(profile.Interests, ", "),
		query,
	)

	answer, err := s.predict(ctx, prompt, nil)
	if err != nil {
		return false, &agent.RelevanceCheckError{Cause: err}
	}
	return parseYesNo(answer), nil
}

func parseYesNo(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	answer = strings.TrimRight(answer, ".!")
	return answer == "yes"
}

func (s *Summarizer) predict(ctx context.Context, prompt string, opts []Option) (string, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if instruction := languageInstruction(o.lang); instruction != "" {
		prompt += "\n\n" + instruction
	}

	resp, err := s.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func languageInstruction(tag language.Tag) string {
	if tag == language.Und {
		return ""
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return ""
	}
	return fmt.Sprintf("Respond in %s.", name)
}
