package summary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type fakeChat struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition, _ *llm.ChatCompletionOptions) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply}, nil
}

func (f *fakeChat) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

func TestIsRelevant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reply string
		want  bool
	}{
		{"Yes", true},
		{" yes.\n", true},
		{"YES!", true},
		{"No", false},
		{"Yes, because it relates to payments", false},
		{"", false},
	}
	for _, tt := range tests {
		chat := &fakeChat{reply: tt.reply}
		got, err := New(chat).IsRelevant(context.Background(), "UPI volumes", Profile{
			Department: "Payments",
			Interests:  []string{"UPI", "cards"},
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "reply %q", tt.reply)
		assert.Contains(t, chat.lastPrompt(), "department: Payments")
		assert.Contains(t, chat.lastPrompt(), "interests: UPI, cards")
	}
}

func TestIsRelevant_FailureCountsAsIrrelevant(t *testing.T) {
	t.Parallel()

	cause := errors.New("timeout")
	ok, err := New(&fakeChat{err: cause}).IsRelevant(context.Background(), "q", Profile{})
	assert.False(t, ok)

	var relErr *agent.RelevanceCheckError
	require.ErrorAs(t, err, &relErr)
	assert.ErrorIs(t, err, cause)
}

func TestTitle(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "\"Topic X news\"\n"}
	s := New(chat)

	title, err := s.Title(context.Background(), "What is the latest on Topic X?")
	require.NoError(t, err)
	assert.Equal(t, "Topic X news", title)
	assert.Contains(t, chat.lastPrompt(), "in 5 words or less")

	title, err = s.Title(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, title)

	title, err = New(&fakeChat{err: errors.New("down")}).Title(context.Background(), "hi")
	assert.Error(t, err)
	assert.Equal(t, DefaultTitle, title)
}

func TestSummarizeDocument(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "  line one\nline two\nline three  "}
	got, err := New(chat).SummarizeDocument(context.Background(), "long article")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\nline three", got)
	assert.Contains(t, chat.lastPrompt(), "three-line summary")
	assert.Contains(t, chat.lastPrompt(), "long article")
}

func TestOverallSummary(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "overall"}
	s := New(chat)

	got, err := s.OverallSummary(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, NoInformation, got)
	assert.Empty(t, chat.prompts)

	docs := []string{"d1", "d2", "d3", "d4", "d5", "d6"}
	got, err = s.OverallSummary(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, "overall", got)
	assert.Contains(t, chat.lastPrompt(), "d1 d2 d3 d4 d5")
	assert.NotContains(t, chat.lastPrompt(), "d6")
}

func TestWithLanguage(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "ok"}
	s := New(chat)

	_, err := s.Summarize(context.Background(), "bonjour", 10, WithLanguage(language.French))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(chat.lastPrompt(), "Respond in French."))

	_, err = s.Summarize(context.Background(), "hello", 10, WithLanguage(language.Und))
	require.NoError(t, err)
	assert.NotContains(t, chat.lastPrompt(), "Respond in")
}
