package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category groups error codes by the remedy a caller should offer.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryExhaustion Category = "exhaustion"
	CategoryConflict   Category = "conflict"
	CategoryIntegrity  Category = "integrity"
	CategoryGeneral    Category = "general"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Status    int      `json:"status"`
	Category  Category `json:"category"`
	Retryable bool     `json:"retryable"`
	Err       error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so sentinels survive Clone and Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Category: CategoryGeneral}
}

func newCategorised(code string, status int, category Category, retryable bool, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Category: category, Retryable: retryable}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Category: CategoryGeneral, Err: err}
}

// WrapAs wraps err keeping the code, status and category of the template.
func WrapAs(err error, template *Error, message string) *Error {
	clone := Clone(template, message)
	clone.Err = err
	return clone
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrRateLimited        = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrValidation        = newCategorised("VALIDATION_ERROR", http.StatusBadRequest, CategoryValidation, false, "validation failed")
	ErrInvalidTransition = newCategorised("INVALID_TRANSITION", http.StatusUnprocessableEntity, CategoryValidation, false, "status transition not allowed")
	ErrInvalidResize     = newCategorised("INVALID_RESIZE", http.StatusUnprocessableEntity, CategoryValidation, false, "resize would drop below committed allocation")
	ErrEmptyBatch        = newCategorised("EMPTY_BATCH", http.StatusBadRequest, CategoryValidation, false, "batch contains no application ids")

	ErrAllocationExhausted = newCategorised("ALLOCATION_EXHAUSTED", http.StatusConflict, CategoryExhaustion, false, "allocation budget or quota exhausted")
	ErrSlotConflict        = newCategorised("SLOT_CONFLICT", http.StatusConflict, CategoryExhaustion, false, "interview slot conflict")

	ErrConcurrencyConflict = newCategorised("CONCURRENCY_CONFLICT", http.StatusConflict, CategoryConflict, true, "concurrent update lost, retry the operation")

	ErrIntegrityFault = newCategorised("INTEGRITY_FAULT", http.StatusInternalServerError, CategoryIntegrity, false, "integrity fault")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err normalises to the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
