package service

import (
	"errors"
	"fmt"
)

// Common service errors
var (
	ErrValidation = errors.New("validation failed")
	ErrState      = errors.New("invalid state")
	ErrNotFound   = errors.New("resource not found")
)

// Match session errors
var (
	ErrInvalidChoice      = fmt.Errorf("%w: number out of range or already claimed", ErrValidation)
	ErrInvalidSide        = fmt.Errorf("%w: unknown side", ErrValidation)
	ErrEmptyMessage       = fmt.Errorf("%w: empty message", ErrValidation)
	ErrSamePlayer         = fmt.Errorf("%w: cannot match player against itself", ErrValidation)
	ErrAlreadyStarted     = fmt.Errorf("%w: match already started", ErrState)
	ErrNotYourTurn        = fmt.Errorf("%w: not your turn", ErrState)
	ErrSessionNotActive   = fmt.Errorf("%w: match is not in progress", ErrState)
	ErrSessionNotFinished = fmt.Errorf("%w: match is not finished", ErrState)
)

// Registry / lookup errors
var (
	ErrMatchNotFound    = fmt.Errorf("%w: match not found", ErrNotFound)
	ErrPlayerNotInMatch = fmt.Errorf("%w: player is not in this match", ErrNotFound)
	ErrNoActiveMatch    = fmt.Errorf("%w: player has no active match", ErrNotFound)
	ErrPlayerNotInQueue = fmt.Errorf("%w: player is not in queue", ErrNotFound)
)

// Matchmaking errors
var (
	ErrPlayerBanned   = errors.New("player is banned")
	ErrAlreadyInMatch = fmt.Errorf("%w: player already has an active match", ErrState)
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// Account errors
var (
	ErrInvalidInput       = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrUserAlreadyExists  = fmt.Errorf("%w: username already taken", ErrState)
	ErrPlayerNotFound     = fmt.Errorf("%w: player not found", ErrNotFound)
	ErrInvalidCredentials = errors.New("invalid credentials")
)
