package engine

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnauthenticated          Code = "unauthenticated"
	CodeNotFound                 Code = "not_found"
	CodeInvalidInput             Code = "invalid_input"
	CodeForbidden                Code = "forbidden"
	CodeFull                     Code = "full"
	CodeTerminal                 Code = "terminal"
	CodeNotReady                 Code = "not_ready"
	CodeInsufficientParticipants Code = "insufficient_participants"
	CodeUnready                  Code = "unready"
	CodeConflict                 Code = "conflict"
	CodeAlreadyClaimed           Code = "already_claimed"
)

// Error is a client-facing failure. Message is a short label, Hint tells the
// caller what to do about it.
type Error struct {
	Code    Code
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Hint)
}

func newError(code Code, msg, hint string) *Error {
	return &Error{Code: code, Message: msg, Hint: hint}
}

func invalidf(msg, hintFormat string, args ...any) *Error {
	return newError(CodeInvalidInput, msg, fmt.Sprintf(hintFormat, args...))
}

// CodeOf extracts the failure code, or "" for internal errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var (
	errUnauthenticated = newError(CodeUnauthenticated, "invalid API key", "include Authorization: Bearer <api_key> from registration")
	errIdeaNotFound    = newError(CodeNotFound, "idea not found", "check the idea id")
	errAgentNotFound   = newError(CodeNotFound, "agent not found", "check the agent id")
	errClaimNotFound   = newError(CodeNotFound, "claim token not found", "check the claim link")
)
