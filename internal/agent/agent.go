package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/ai-search-assistant/internal/tools"
)

// Agent defines the interface for an agent that can execute tasks
type Agent interface {
	// Execute runs the agent with the given request
	Execute(ctx context.Context, req Request) (*Result, error)

	// Close releases any resources held by the agent
	Close() error
}

// LLMAgent implements the Agent interface using an LLM with tool calling
type LLMAgent struct {
	reasoner Reasoner
	registry *tools.Registry
	opts     []Option
}

// NewLLMAgent creates a new LLM-based agent
func NewLLMAgent(client ChatClient, registry *tools.Registry, systemPrompt string, opts ...Option) (*LLMAgent, error) {
	if client == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	return &LLMAgent{
		reasoner: NewLLMReasoner(client, registry, systemPrompt),
		registry: registry,
		opts:     opts,
	}, nil
}

// Execute runs the agent with the given request
func (a *LLMAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return &Result{}, fmt.Errorf("query is required")
	}
	opts := append([]Option{}, a.opts...)
	opts = append(opts, WithMaxIterations(req.MaxIterations))
	return NewController(a.reasoner, a.registry, opts...).Run(ctx, req.Query)
}

// Close releases any resources held by the agent
func (a *LLMAgent) Close() error {
	// No resources to release currently
	return nil
}
