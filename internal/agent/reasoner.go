package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/ai-search-assistant/internal/llm"
	"github.com/MimeLyc/ai-search-assistant/internal/tools"
)

const DefaultSystemPrompt = `You are a helpful research assistant.
Use the web_search tool when a question needs current or factual information, then answer from what you found.
When you have enough information, reply with the answer directly.`

// ChatClient is the slice of llm.Client the reasoner needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts *llm.ChatCompletionOptions) (*llm.ChatResponse, error)
}

// LLMReasoner asks a tool-calling chat model for the next step.
type LLMReasoner struct {
	client       ChatClient
	registry     *tools.Registry
	systemPrompt string
}

func NewLLMReasoner(client ChatClient, registry *tools.Registry, systemPrompt string) *LLMReasoner {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &LLMReasoner{
		client:       client,
		registry:     registry,
		systemPrompt: systemPrompt,
	}
}

func (r *LLMReasoner) Reason(ctx context.Context, query string, history []IntermediateStep) (AgentStep, error) {
	opts := llm.NewChatCompletionOptions().WithSystemPrompt(r.systemPrompt)

	resp, err := r.client.Chat(ctx, BuildMessages(query, history), r.registry.Definitions(), opts)
	if err != nil {
		return nil, err
	}
	return ParseStep(resp)
}

// BuildMessages renders the query and transcript as chat messages.
// Each step becomes an assistant tool call followed by the tool's reply.
func BuildMessages(query string, history []IntermediateStep) []llm.Message {
	messages := make([]llm.Message, 0, 1+2*len(history))
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	for i, step := range history {
		id := step.Invocation.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		messages = append(messages,
			llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:        id,
					Name:      step.Invocation.ToolName,
					Arguments: string(step.Invocation.ToolInput),
				}},
			},
			llm.Message{
				Role:       llm.RoleTool,
				Content:    step.Observation.Content,
				ToolCallID: id,
			},
		)
	}
	return messages
}

// ParseStep maps a chat response to exactly one AgentStep.
// Only the first tool call is honoured.
func ParseStep(resp *llm.ChatResponse) (AgentStep, error) {
	if resp == nil {
		return nil, &llm.MalformedModelOutputError{Reason: "empty response"}
	}

	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0]
		if strings.TrimSpace(call.Name) == "" {
			return nil, &llm.MalformedModelOutputError{Reason: "tool call without a name", Output: call.Arguments}
		}
		args := strings.TrimSpace(call.Arguments)
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return nil, &llm.MalformedModelOutputError{Reason: "tool arguments are not valid JSON", Output: call.Arguments}
		}
		return ToolInvocation{
			ID:        call.ID,
			ToolName:  call.Name,
			ToolInput: json.RawMessage(args),
		}, nil
	}

	if strings.TrimSpace(resp.Content) == "" {
		return nil, &llm.MalformedModelOutputError{
			Reason: fmt.Sprintf("no answer and no tool call (finish_reason=%s)", resp.FinishReason),
		}
	}
	return FinalAnswer{Text: resp.Content}, nil
}
