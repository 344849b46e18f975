package agent

import (
	"context"
	"errors"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/llm"
	"github.com/MimeLyc/ai-search-assistant/internal/tools"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxIterations = 10
	DefaultCallTimeout   = 30 * time.Second
	DefaultRetryBackoff  = 500 * time.Millisecond
)

// Reasoner produces the next step from the query and the transcript so far.
type Reasoner interface {
	Reason(ctx context.Context, query string, history []IntermediateStep) (AgentStep, error)
}

// Policy bounds a loop execution.
type Policy struct {
	MaxIterations int           // reasoning calls per run
	CallTimeout   time.Duration // per reasoning or tool call
	RetryCount    int           // extra attempts for a failed reasoning call
	RetryBackoff  time.Duration // base delay before a retry
}

// DefaultPolicy returns the default loop bounds.
func DefaultPolicy() Policy {
	return Policy{
		MaxIterations: DefaultMaxIterations,
		CallTimeout:   DefaultCallTimeout,
		RetryCount:    1,
		RetryBackoff:  DefaultRetryBackoff,
	}
}

// Budget is the wall-clock ceiling for one run.
func (p Policy) Budget() time.Duration {
	return time.Duration(p.MaxIterations) * p.CallTimeout
}

func (p Policy) normalized() Policy {
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = DefaultCallTimeout
	}
	if p.RetryCount < 0 {
		p.RetryCount = 0
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = time.Millisecond
	}
	return p
}

// Controller runs the reason/act/observe loop against a tool registry.
type Controller struct {
	reasoner Reasoner
	registry *tools.Registry
	policy   Policy
	tracer   Tracer
}

// Option configures a Controller.
type Option func(*Controller)

func WithPolicy(p Policy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

func WithMaxIterations(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.policy.MaxIterations = n
		}
	}
}

func WithTracer(t Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

func NewController(reasoner Reasoner, registry *tools.Registry, opts ...Option) *Controller {
	c := &Controller{
		reasoner: reasoner,
		registry: registry,
		policy:   DefaultPolicy(),
		tracer:   nopTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = c.policy.normalized()
	return c
}

// Policy returns the effective loop bounds.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Run executes the loop for query until a FinalAnswer, an error, or the iteration bound.
// The returned Result is never nil and holds the steps completed so far.
func (c *Controller) Run(ctx context.Context, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.policy.Budget())
	defer cancel()

	ctx, finish := c.tracer.StartSpan(ctx, "agent.run", map[string]any{
		"max_iterations": c.policy.MaxIterations,
	})

	result := &Result{}
	err := c.loop(ctx, query, result)
	finish(err)
	return result, err
}

func (c *Controller) loop(ctx context.Context, query string, result *Result) error {
	state := StateReasoning
	history := make([]IntermediateStep, 0)

	for result.Iterations < c.policy.MaxIterations {
		result.Iterations++

		step, err := c.reason(ctx, query, history)
		if err != nil {
			return err
		}

		switch s := step.(type) {
		case FinalAnswer:
			c.transition(ctx, &state, StateDone)
			result.Answer = s.Text
			return nil

		case ToolInvocation:
			c.transition(ctx, &state, StateActing)

			tool, ok := c.registry.Get(s.ToolName)
			if !ok {
				return &UnknownToolError{ToolName: s.ToolName}
			}

			obs, err := c.act(ctx, tool, s)
			log.Info("Tool %s executed: error=%v", s.ToolName, err != nil)
			if err != nil {
				return &ToolExecutionError{ToolName: s.ToolName, Cause: err}
			}

			history = append(history, IntermediateStep{Invocation: s, Observation: obs})
			result.Steps = history
			c.transition(ctx, &state, StateReasoning)

		default:
			return &llm.MalformedModelOutputError{Reason: "reasoner returned an unknown step type"}
		}
	}

	return &MaxIterationsError{Limit: c.policy.MaxIterations}
}

// reason calls the reasoner under the per-call timeout, retrying transient failures.
func (c *Controller) reason(ctx context.Context, query string, history []IntermediateStep) (AgentStep, error) {
	var (
		step     AgentStep
		attempts int
	)

	backoff := retry.WithMaxRetries(uint64(c.policy.RetryCount), retry.NewExponential(c.policy.RetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, c.policy.CallTimeout)
		defer cancel()

		spanCtx, finish := c.tracer.StartSpan(callCtx, "agent.reason", map[string]any{
			"attempt": attempts,
			"steps":   len(history),
		})
		s, err := c.reasoner.Reason(spanCtx, query, cloneSteps(history))
		finish(err)
		if err != nil {
			if ctx.Err() == nil && llm.IsRetryable(err) {
				log.Warn("Reasoning call failed (attempt %d): %v", attempts, err)
				return retry.RetryableError(err)
			}
			return err
		}
		step = s
		return nil
	})
	if err != nil {
		var malformed *llm.MalformedModelOutputError
		if errors.As(err, &malformed) {
			return nil, err
		}
		return nil, &ReasoningUnavailableError{Attempts: attempts, Cause: err}
	}
	return step, nil
}

func (c *Controller) act(ctx context.Context, tool tools.Tool, inv ToolInvocation) (tools.Observation, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.policy.CallTimeout)
	defer cancel()

	callCtx, finish := c.tracer.StartSpan(callCtx, "agent.tool", map[string]any{
		"tool": inv.ToolName,
	})
	obs, err := tool.Execute(callCtx, inv.ToolInput)
	finish(err)
	return obs, err
}

func (c *Controller) transition(ctx context.Context, state *State, next State) {
	c.tracer.Event(ctx, "agent.transition", map[string]any{
		"from": state.String(),
		"to":   next.String(),
	})
	*state = next
}

func cloneSteps(steps []IntermediateStep) []IntermediateStep {
	out := make([]IntermediateStep, len(steps))
	copy(out, steps)
	return out
}
