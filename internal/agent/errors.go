package agent

import "fmt"

// UnknownToolError is returned when the reasoning step names a tool that is not registered.
type UnknownToolError struct {
	ToolName string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.ToolName)
}

// ToolExecutionError wraps a failure raised by a tool.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// ReasoningUnavailableError is returned when the reasoning capability fails or times out
// after its retry budget.
type ReasoningUnavailableError struct {
	Attempts int
	Cause    error
}

func (e *ReasoningUnavailableError) Error() string {
	return fmt.Sprintf("reasoning unavailable after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *ReasoningUnavailableError) Unwrap() error {
	return e.Cause
}

// MaxIterationsError is returned when the loop hits its iteration bound.
type MaxIterationsError struct {
	Limit int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("max iterations (%d) reached without completion", e.Limit)
}

// RelevanceCheckError wraps a failed profile-relevance call.
type RelevanceCheckError struct {
	Cause error
}

func (e *RelevanceCheckError) Error() string {
	return fmt.Sprintf("relevance check failed: %v", e.Cause)
}

func (e *RelevanceCheckError) Unwrap() error {
	return e.Cause
}
