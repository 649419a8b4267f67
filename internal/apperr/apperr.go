package apperr

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents different kinds of engine errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeInsufficientStock ErrorType = "insufficient_stock"
	ErrorTypeCollaborator      ErrorType = "collaborator"
	ErrorTypeMalformedReminder ErrorType = "malformed_reminder"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeInternal          ErrorType = "internal"
)

// AppError represents an application error with additional context
type AppError struct {
	Type     ErrorType
	Message  string
	Code     string
	Internal error
	Context  map[string]interface{}
	Source   string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the internal error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is matches on type and code so callers can compare against the sentinels below.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// LogFields returns structured logging fields
func (e *AppError) LogFields() []any {
	fields := []any{
		"error_type", e.Type,
		"error_code", e.Code,
		"error_message", e.Message,
		"source", e.Source,
	}
	if e.Internal != nil {
		fields = append(fields, "internal_error", e.Internal.Error())
	}
	for k, v := range e.Context {
		fields = append(fields, k, v)
	}
	return fields
}

// New creates a new AppError
func New(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Source:  caller(),
		Context: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error into AppError
func Wrap(err error, errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Internal: err,
		Source:   caller(),
		Context:  make(map[string]interface{}),
	}
}

func caller() string {
	_, file, line, _ := runtime.Caller(2)
	return fmt.Sprintf("%s:%d", file, line)
}

// TypeOf reports the ErrorType carried by err, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// Predefined errors, comparable with errors.Is
var (
	ErrInvalidInput      = New(ErrorTypeValidation, "VALIDATION", "Invalid input provided")
	ErrInsufficientStock = New(ErrorTypeInsufficientStock, "INSUFFICIENT_STOCK", "Not enough pills in stock")
	ErrReminderNotFound  = New(ErrorTypeNotFound, "REMINDER_NOT_FOUND", "Reminder not found")
	ErrTimerService      = New(ErrorTypeCollaborator, "TIMER_SERVICE", "Reminder timer service failed")
	ErrPersistence       = New(ErrorTypeCollaborator, "PERSISTENCE", "Snapshot persistence failed")
	ErrAlertChannel      = New(ErrorTypeCollaborator, "ALERT_CHANNEL", "Alert channel unavailable")
	ErrMalformedTime     = New(ErrorTypeMalformedReminder, "MALFORMED_TIME", "Reminder time is malformed")
)

// Convenience functions for common errors
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, "VALIDATION", message)
}

func NewNotFoundError(id string) *AppError {
	return New(ErrorTypeNotFound, "REMINDER_NOT_FOUND", "Reminder not found").
		WithContext("reminder_id", id)
}

func NewInsufficientStockError(stock, pillsPerDose int) *AppError {
	return New(ErrorTypeInsufficientStock, "INSUFFICIENT_STOCK", "Not enough pills in stock").
		WithContext("stock", stock).
		WithContext("pills_per_dose", pillsPerDose)
}

func NewTimerServiceError(err error, operation string) *AppError {
	return Wrap(err, ErrorTypeCollaborator, "TIMER_SERVICE", fmt.Sprintf("reminder timer %s failed", operation)).
		WithContext("operation", operation)
}

func NewPersistenceError(err error) *AppError {
	return Wrap(err, ErrorTypeCollaborator, "PERSISTENCE", "Snapshot persistence failed")
}

func NewAlertChannelError(err error, channel string) *AppError {
	return Wrap(err, ErrorTypeCollaborator, "ALERT_CHANNEL", fmt.Sprintf("%s channel failed", channel)).
		WithContext("channel", channel)
}

func NewMalformedTimeError(err error, reminderID, value string) *AppError {
	return Wrap(err, ErrorTypeMalformedReminder, "MALFORMED_TIME", "Reminder time is malformed").
		WithContext("reminder_id", reminderID).
		WithContext("time", value)
}
