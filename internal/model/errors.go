package model

import "errors"

// Error taxonomy surfaced to clients. Validation errors never mutate session
// state; they are reported to the originating client only.
var (
	ErrNotFound             = errors.New("session not found")
	ErrSessionFull          = errors.New("session already full")
	ErrAlreadyInvited       = errors.New("name already present in session")
	ErrInvalidState         = errors.New("invalid state for this action")
	ErrInvalidTransition    = errors.New("invalid phase transition")
	ErrNotYourTurn          = errors.New("not your turn")
	ErrRefreshLimitExceeded = errors.New("topic refresh limit exceeded")
	ErrEmptyArgument        = errors.New("argument cannot be empty")
	ErrArgumentTooLong      = errors.New("argument too long")
	ErrInvalidTopic         = errors.New("invalid topic selection")
)
