package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInput represents rejected input (bad sentence or bad parse)
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeConflict represents facts that contradict persisted data
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeNotFound represents lookups of unknown entities
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeParser represents failures of the external NLP service
	ErrorTypeParser ErrorType = "parser"
	// ErrorTypeGraph represents graph store errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents programming errors (e.g. unmapped intent)
	ErrorTypeInternal ErrorType = "internal"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Input Errors

// ErrSentenceParse is returned when a sentence is empty or cannot be normalized
type ErrSentenceParse struct {
	*BaseError
	Sentence string
}

func NewSentenceParse(sentence string) *ErrSentenceParse {
	return &ErrSentenceParse{
		BaseError: NewBaseError(ErrorTypeInput, "sentence cannot be parsed", nil),
		Sentence:  sentence,
	}
}

// ErrInvalidFactData is returned when parsed sentence data is not a well-formed fact
type ErrInvalidFactData struct {
	*BaseError
	Detail string
}

func NewInvalidFactData(detail string) *ErrInvalidFactData {
	return &ErrInvalidFactData{
		BaseError: NewBaseError(ErrorTypeInput, fmt.Sprintf("invalid fact data: %s", detail), nil),
		Detail:    detail,
	}
}

// ErrInvalidQueryData is returned when parsed sentence data is not a well-formed query
type ErrInvalidQueryData struct {
	*BaseError
	Detail string
}

func NewInvalidQueryData(detail string) *ErrInvalidQueryData {
	return &ErrInvalidQueryData{
		BaseError: NewBaseError(ErrorTypeInput, fmt.Sprintf("invalid query data: %s", detail), nil),
		Detail:    detail,
	}
}

// Conflict Errors

// ErrConflictingFact is returned when a new fact contradicts persisted data.
// ConflictingFactID identifies the fact that created the contradicted edge.
type ErrConflictingFact struct {
	*BaseError
	ConflictingFactID string
}

func NewConflictingFact(conflictingFactID, detail string) *ErrConflictingFact {
	return &ErrConflictingFact{
		BaseError: NewBaseError(ErrorTypeConflict,
			fmt.Sprintf("fact conflicts with existing fact %s: %s", conflictingFactID, detail), nil),
		ConflictingFactID: conflictingFactID,
	}
}

// Not Found Errors

// ErrFactNotFound is returned when a fact id has no persisted fact
type ErrFactNotFound struct {
	*BaseError
	FactID string
}

func NewFactNotFound(factID string) *ErrFactNotFound {
	return &ErrFactNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("fact not found: %s", factID), nil),
		FactID:    factID,
	}
}

// Parser Errors

// ErrParserUnavailable is returned when the external NLP service fails or times out
type ErrParserUnavailable struct {
	*BaseError
}

func NewParserUnavailable(err error) *ErrParserUnavailable {
	return &ErrParserUnavailable{
		BaseError: NewBaseError(ErrorTypeParser, "language parser unavailable", err),
	}
}

// Graph Errors

// ErrGraphQueryFailed is returned when a graph store operation fails
type ErrGraphQueryFailed struct {
	*BaseError
	Operation string
}

func NewGraphQueryFailed(operation string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("graph operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Internal Errors

// ErrNoResolver is returned when a parsed intent maps to no answer resolver.
// This is a programming error, distinct from a legitimate empty answer.
type ErrNoResolver struct {
	*BaseError
	Intent string
}

func NewNoResolver(intent string) *ErrNoResolver {
	return &ErrNoResolver{
		BaseError: NewBaseError(ErrorTypeInternal, fmt.Sprintf("no answer function found for intent: %s", intent), nil),
		Intent:    intent,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// categorized is implemented by BaseError and promoted through embedding,
// so every typed error in this package satisfies it.
type categorized interface {
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType {
	return e.Type
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var cat categorized
	if stderrors.As(err, &cat) {
		return cat.errorType() == errType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Rejected input and conflicts never succeed on retry
	if IsErrorType(err, ErrorTypeInput) || IsErrorType(err, ErrorTypeConflict) {
		return false
	}
	// Parser and graph failures are transient
	if IsErrorType(err, ErrorTypeParser) || IsErrorType(err, ErrorTypeGraph) {
		return true
	}
	return false
}
