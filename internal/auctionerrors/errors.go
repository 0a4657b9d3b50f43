package auctionerrors

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Callers classify with errors.Is against these.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
	ErrQuorumNotMet  = errors.New("quorum not met")
)

// Lookup errors
var (
	ErrAuctionNotFound     = fmt.Errorf("auction %w", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
)

// State conflicts: the expected outcome of races, not failures
var (
	ErrStaleRound          = fmt.Errorf("stale round: %w", ErrStateConflict)
	ErrAlreadyEliminated   = fmt.Errorf("participant already eliminated: %w", ErrStateConflict)
	ErrAlreadyConfirmed    = fmt.Errorf("participant already confirmed: %w", ErrStateConflict)
	ErrInvalidTransition   = fmt.Errorf("transition not permitted from current status: %w", ErrStateConflict)
	ErrConfirmationClosed  = fmt.Errorf("confirmation window closed: %w", ErrStateConflict)
	ErrConcurrentUpdate    = fmt.Errorf("auction modified concurrently: %w", ErrStateConflict)
	ErrConfirmationPending = fmt.Errorf("confirmation window still open: %w", ErrStateConflict)
)

// IsConflict reports whether err is a state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrStateConflict)
}
