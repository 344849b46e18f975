package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/ai-search-assistant/internal/account"
	"github.com/MimeLyc/ai-search-assistant/internal/agent"
	"github.com/MimeLyc/ai-search-assistant/internal/assistant"
	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/llm"
	"github.com/MimeLyc/ai-search-assistant/internal/news"
	"github.com/MimeLyc/ai-search-assistant/internal/persistence"
	"github.com/MimeLyc/ai-search-assistant/internal/vectorstore"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrNotFound
	ErrConflict
	ErrAPI
	ErrNetwork
	ErrModelOutput
	ErrTool
	ErrReasoning
	ErrConfig
	ErrStorage
	ErrTimeout
	ErrUnknown
)

type AppError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *AppError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithContext(key string, value any) *AppError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrValidation:
		return "Validation"
	case ErrNotFound:
		return "NotFound"
	case ErrConflict:
		return "Conflict"
	case ErrAPI:
		return "API"
	case ErrNetwork:
		return "Network"
	case ErrModelOutput:
		return "ModelOutput"
	case ErrTool:
		return "Tool"
	case ErrReasoning:
		return "Reasoning"
	case ErrConfig:
		return "Config"
	case ErrStorage:
		return "Storage"
	case ErrTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Classify maps an error from any layer onto an ErrorType.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}

	var (
		unknownTool *agent.UnknownToolError
		toolErr     *agent.ToolExecutionError
		reasonErr   *agent.ReasoningUnavailableError
		maxIter     *agent.MaxIterationsError
		malformed   *llm.MalformedModelOutputError
		llmAPIErr   *llm.APIError
		qdrantErr   *vectorstore.APIError
	)
	switch {
	case errors.Is(err, assistant.ErrEmptyQuery),
		errors.Is(err, account.ErrInvalidEmail):
		return ErrValidation
	case errors.Is(err, chat.ErrSessionNotFound),
		errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, account.ErrUserNotFound),
		errors.Is(err, news.ErrNoDigest),
		errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, account.ErrEmailExists):
		return ErrConflict
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.As(err, &malformed):
		return ErrModelOutput
	case errors.As(err, &unknownTool), errors.As(err, &toolErr):
		return ErrTool
	case errors.As(err, &reasonErr), errors.As(err, &maxIter):
		return ErrReasoning
	case errors.As(err, &llmAPIErr), errors.As(err, &qdrantErr):
		return ErrAPI
	}
	return ErrUnknown
}

// DegradedMessage is the text shown to a user when err ends a request.
// Caller mistakes get a specific hint, everything else the single apology.
func DegradedMessage(err error) string {
	switch Classify(err) {
	case ErrValidation:
		return "Please check your input and try again."
	case ErrNotFound:
		return "The requested item could not be found."
	case ErrConflict:
		return "An account with this email already exists."
	default:
		return assistant.DegradedMessage
	}
}

// ErrorHandler logs a failed operation with operator advice for its class.
type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(t ErrorType) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err and reports whether it belongs to a known class.
func (h *DefaultErrorHandler) Handle(err error) bool {
	t := Classify(err)
	if t == ErrUnknown {
		log.Error("Unknown error: %v", err)
		return false
	}
	log.Error("%s error: %v (advice: %s)", t, err, h.GetAdvice(t))
	return true
}

// GetAdvice returns what an operator should check for errors of type t.
func (h *DefaultErrorHandler) GetAdvice(t ErrorType) string {
	switch t {
	case ErrAPI:
		return "Please check the API keys and endpoints, or review the provider's service status"
	case ErrNetwork:
		return "Please check network connectivity to the LLM, search and Qdrant endpoints"
	case ErrModelOutput:
		return "The model returned text in an unexpected shape; retry, or try a stronger model"
	case ErrTool:
		return "The search tool failed; check SEARCH_API_KEY and the Tavily quota"
	case ErrReasoning:
		return "The reasoning model did not finish; consider raising AGENT_MAX_ITERATIONS or AGENT_CALL_TIMEOUT"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	case ErrStorage:
		return "Please check that DATA_DIR is writable and the sqlite database is not locked"
	case ErrTimeout:
		return "An external call took too long; consider raising AGENT_CALL_TIMEOUT"
	default:
		return "Please review detailed error information and check relevant configuration"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *AppError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and turns a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
