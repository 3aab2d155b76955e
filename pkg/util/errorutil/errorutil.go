package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Stable error codes carried to the API boundary.
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeNoteRequired            = "NOTE_REQUIRED"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeImmutableTicket         = "IMMUTABLE_TICKET"
	CodeVersionConflict         = "VERSION_CONFLICT"
	CodeNotFound                = "NOT_FOUND"
	CodeForbidden               = "FORBIDDEN"
	CodeInsufficientRole        = "INSUFFICIENT_ROLE"
	CodeNotSelf                 = "NOT_SELF"
	CodeNotInTeam               = "NOT_IN_TEAM"
	CodeNotAssignee             = "NOT_ASSIGNEE"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeSessionExpired          = "SESSION_EXPIRED"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternal                = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is checks. Never mutate these; use the constructors
// below to attach messages or details.
var (
	ErrNoteRequired            = NewDomainError(CodeNoteRequired, "a note is required for this action", http.StatusBadRequest, nil)
	ErrInvalidStatusTransition = NewDomainError(CodeInvalidStatusTransition, "invalid status transition", http.StatusBadRequest, nil)
	ErrImmutableTicket         = NewDomainError(CodeImmutableTicket, "closed tickets are immutable", http.StatusForbidden, nil)
	ErrVersionConflict         = NewDomainError(CodeVersionConflict, "the ticket has been modified by another user, refresh and try again", http.StatusConflict, nil)
	ErrSessionExpired          = NewDomainError(CodeSessionExpired, "session expired, please log in again", http.StatusUnauthorized, nil)
	ErrNotFound                = NewDomainError(CodeNotFound, "resource not found", http.StatusNotFound, nil)
	ErrUnauthorized            = NewDomainError(CodeUnauthorized, "authentication required", http.StatusUnauthorized, nil)
	ErrForbidden               = NewDomainError(CodeForbidden, "insufficient permissions", http.StatusForbidden, nil)
	ErrValidation              = NewDomainError(CodeValidation, "validation failed", http.StatusBadRequest, nil)
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(code, message string) error {
	if code == "" {
		code = CodeForbidden
	}
	return NewDomainError(code, message, http.StatusForbidden, nil)
}

func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidStatusTransition,
		fmt.Sprintf("cannot transition from %s to %s", from, to),
		http.StatusBadRequest,
		map[string]any{"from": from, "to": to})
}

// NewSessionExpired keeps cause for logs; only the code reaches callers.
func NewSessionExpired(cause error) error {
	return &DomainError{
		Code:       CodeSessionExpired,
		Message:    ErrSessionExpired.Message,
		HTTPStatus: http.StatusUnauthorized,
		Err:        cause,
	}
}

func NewRateLimited(limit int) error {
	return NewDomainError(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests,
		map[string]any{"limit": limit})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// FromStatus rebuilds a DomainError from a decoded error envelope.
func FromStatus(status int, code, message string, details map[string]any) *DomainError {
	if code == "" {
		code = codeForStatus(status)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return NewDomainError(code, message, status, details)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeVersionConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
