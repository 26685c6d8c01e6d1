package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to API callers.
const (
	CodeValidation                = "VALIDATION_FAILED"
	CodeNotFound                  = "NOT_FOUND"
	CodeUnauthorized              = "UNAUTHORIZED"
	CodeForbidden                 = "FORBIDDEN"
	CodeConflict                  = "CONFLICT"
	CodeReassignmentLimitExceeded = "REASSIGNMENT_LIMIT_EXCEEDED"
	CodeInvalidAgent              = "INVALID_AGENT"
	CodeSelfReassignment          = "SELF_REASSIGNMENT"
	CodeNotAnAgent                = "NOT_AN_AGENT"
	CodeNoAgentsAvailable         = "NO_AGENTS_AVAILABLE"
	CodeInternal                  = "INTERNAL_ERROR"
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

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewReassignmentLimitExceeded reports a second reassignment attempt on a ticket.
func NewReassignmentLimitExceeded(ticketID string) error {
	return NewDomainError(CodeReassignmentLimitExceeded, "ticket has already been reassigned once",
		http.StatusConflict, map[string]any{"ticket_id": ticketID})
}

func NewInvalidAgent(agentID string) error {
	return NewDomainError(CodeInvalidAgent, "target is not a valid agent",
		http.StatusUnprocessableEntity, map[string]any{"agent_id": agentID})
}

func NewSelfReassignment() error {
	return NewDomainError(CodeSelfReassignment, "cannot reassign a ticket to yourself",
		http.StatusUnprocessableEntity, nil)
}

func NewNotAnAgent(userID string) error {
	return NewDomainError(CodeNotAnAgent, "user is not an agent",
		http.StatusUnprocessableEntity, map[string]any{"user_id": userID})
}

func NewNoAgentsAvailable() error {
	return NewDomainError(CodeNoAgentsAvailable, "no agents available to take the ticket",
		http.StatusServiceUnavailable, nil)
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

// MapError is ToDomainError typed as error, nil-safe.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
