package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific failures wrap one of these so callers can classify
// with errors.Is without caring about the exact message.
var (
	// ErrUnauthenticated indicates a missing or invalid admin token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates a valid identity lacking ownership of the quiz.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates an unknown session, player, question or quiz id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an action that is illegal in the current
	// session state, or a resource in the wrong lifecycle phase.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

var (
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
	ErrPlayerNotFound  = fmt.Errorf("%w: player", ErrNotFound)
	ErrQuizNotFound    = fmt.Errorf("%w: quiz", ErrNotFound)
)
