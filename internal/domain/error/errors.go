package error

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller-facing boundary. Capacity and
// validation failures must stay distinguishable from not-found and from
// generic failure so the transport layer can render them differently.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindRateLimited  Kind = "rate_limited"
	KindUnavailable  Kind = "unavailable"
	KindDomain       Kind = "domain"
	KindInternal     Kind = "internal"
)

// Code is a stable machine-readable error identifier.
type Code string

// Error is the domain error type. It carries a kind for boundary mapping,
// a stable code for clients, and an optional wrapped cause.
type Error struct {
	kind    Kind
	code    Code
	message string
	cause   error
}

// New creates a new domain Error.
func New(kind Kind, code Code, message string) *Error {
	return &Error{kind: kind, code: code, message: message}
}

// Wrap attaches a cause to a copy of e, preserving kind and code.
func Wrap(e *Error, cause error) *Error {
	return &Error{kind: e.kind, code: e.code, message: e.message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Kind() Kind      { return e.kind }
func (e *Error) Code() Code      { return e.code }
func (e *Error) Message() string { return e.message }
func (e *Error) Unwrap() error   { return e.cause }

// Is matches domain errors by code, so sentinel comparisons survive Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.code == t.code
}

// KindOf reports the kind of err if it is a domain Error, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Domain error codes
const (
	// Session errors
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeSessionExpired      Code = "SESSION_EXPIRED"
	CodeSessionFull         Code = "SESSION_FULL"
	CodeSessionCompleted    Code = "SESSION_COMPLETED"
	CodeTooManySessions     Code = "TOO_MANY_SESSIONS"
	CodeSessionIDRequired   Code = "SESSION_ID_REQUIRED"
	CodeSessionCodeRequired Code = "SESSION_CODE_REQUIRED"

	// Participant errors
	CodeUserIDRequired Code = "USER_ID_REQUIRED"
	CodeNotParticipant Code = "NOT_A_PARTICIPANT"

	// Swipe errors
	CodeInvalidSwipe    Code = "INVALID_SWIPE"
	CodeInvalidItemType Code = "INVALID_ITEM_TYPE"

	// Chat errors
	CodeMessageEmpty   Code = "MESSAGE_EMPTY"
	CodeMessageTooLong Code = "MESSAGE_TOO_LONG"

	// Item errors
	CodeItemNotFound Code = "ITEM_NOT_FOUND"

	// Token errors
	CodeTokenInvalid Code = "TOKEN_INVALID"
	CodeTokenExpired Code = "TOKEN_EXPIRED"

	// Rate limit errors
	CodeRateLimited Code = "RATE_LIMITED"

	// Cache-tier errors
	CodeCacheUnavailable Code = "CACHE_UNAVAILABLE"
	CodePoolTimeout      Code = "POOL_TIMEOUT"
	CodePoolClosed       Code = "POOL_CLOSED"
)

// Session errors
var (
	ErrSessionNotFound = New(KindNotFound, CodeSessionNotFound, "session not found")

	ErrSessionExpired = New(KindDomain, CodeSessionExpired, "session has expired")

	ErrSessionFull = New(KindDomain, CodeSessionFull, "session is full")

	ErrSessionCompleted = New(KindDomain, CodeSessionCompleted, "session is already completed")

	ErrTooManySessions = New(KindDomain, CodeTooManySessions, "user already has an active session")

	ErrSessionIDRequired = New(KindValidation, CodeSessionIDRequired, "session ID is required")

	ErrSessionCodeRequired = New(KindValidation, CodeSessionCodeRequired, "session code is required")
)

// Participant errors
var (
	ErrUserIDRequired = New(KindValidation, CodeUserIDRequired, "user ID is required")

	ErrNotParticipant = New(KindForbidden, CodeNotParticipant, "user is not a participant of this session")
)

// Swipe errors
var (
	ErrInvalidSwipe = New(KindValidation, CodeInvalidSwipe, "swipe direction must be left or right")

	ErrInvalidItemType = New(KindValidation, CodeInvalidItemType, "item type must be recipe or restaurant")
)

// Chat errors
var (
	ErrMessageEmpty = New(KindValidation, CodeMessageEmpty, "message text is required")

	ErrMessageTooLong = New(KindValidation, CodeMessageTooLong, "message text exceeds the maximum length")
)

// Item errors
var (
	ErrItemNotFound = New(KindNotFound, CodeItemNotFound, "item not found")
)

// Token errors
var (
	ErrTokenInvalid = New(KindUnauthorized, CodeTokenInvalid, "token is invalid")

	ErrTokenExpired = New(KindUnauthorized, CodeTokenExpired, "token has expired")
)

// Rate limit errors
var (
	ErrRateLimited = New(KindRateLimited, CodeRateLimited, "rate limit exceeded")
)

// Cache-tier errors. These never reach end callers; they are swallowed at
// the cache service boundary and converted into miss/fallback semantics.
var (
	ErrCacheUnavailable = New(KindUnavailable, CodeCacheUnavailable, "cache is unavailable")

	ErrPoolTimeout = New(KindUnavailable, CodePoolTimeout, "timed out waiting for a free connection")

	ErrPoolClosed = New(KindUnavailable, CodePoolClosed, "connection pool is shut down")
)

// Helper functions

func SessionNotFound(id string) *Error {
	return New(KindNotFound, CodeSessionNotFound, fmt.Sprintf("session %s not found", id))
}

func SessionNotFoundByCode(code string) *Error {
	return New(KindNotFound, CodeSessionNotFound, fmt.Sprintf("no session with code %s", code))
}
