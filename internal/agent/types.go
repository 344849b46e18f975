package agent

import (
	"encoding/json"

	"github.com/MimeLyc/ai-search-assistant/internal/tools"
)

// AgentStep is the outcome of one reasoning call: a ToolInvocation or a FinalAnswer.
type AgentStep interface {
	isAgentStep()
}

// ToolInvocation asks the controller to run a registered tool.
type ToolInvocation struct {
	// ID correlates the invocation with its observation in the transcript.
	ID        string
	ToolName  string
	ToolInput json.RawMessage
}

// FinalAnswer ends the loop.
type FinalAnswer struct {
	Text string
}

func (ToolInvocation) isAgentStep() {}
func (FinalAnswer) isAgentStep()    {}

// IntermediateStep pairs an invocation with the observation it produced.
type IntermediateStep struct {
	Invocation  ToolInvocation
	Observation tools.Observation
}

// State is the controller's position in the decide/act/observe cycle.
type State int

const (
	StateReasoning State = iota
	StateActing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReasoning:
		return "REASONING"
	case StateActing:
		return "ACTING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Request represents a request to the agent
type Request struct {
	// Query is the user's question
	Query string

	// MaxIterations overrides the agent's iteration bound when > 0
	MaxIterations int
}

// Result represents the result from an agent execution.
// On error it still carries the steps completed before the failure.
type Result struct {
	// Answer is the final text response from the agent
	Answer string

	// Steps is the ordered transcript of tool invocations and observations
	Steps []IntermediateStep

	// Iterations is the number of reasoning calls made
	Iterations int
}

// FirstObservation returns the observation of the first tool step, if any.
func (r *Result) FirstObservation() (tools.Observation, bool) {
	if r == nil || len(r.Steps) == 0 {
		return tools.Observation{}, false
	}
	return r.Steps[0].Observation, true
}
