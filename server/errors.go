package server

import (
	"github.com/pkg/errors"
)

// Error classes used across the coordinator. Validation and conflict
// failures are reported back to the originating connection only and
// never mutate state; insufficient funds can only surface before
// escrow; a ledger failure during settlement keeps the session in
// pending_settlement until retried.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserNotFound      = errors.New("user not found")

	ErrSessionUnknown = errors.New("unknown match session")
	ErrSessionNotLive = errors.New("match is not accepting moves")
	ErrWrongRound     = errors.New("move is not for the current round")
	ErrInvalidChoice  = errors.New("invalid choice")
	ErrNotParticipant = errors.New("connection does not belong to this match")
	ErrDuplicateMove  = errors.New("choice already submitted for this round")

	ErrChallengeUnknown  = errors.New("challenge no longer exists")
	ErrTargetUnavailable = errors.New("target player is not available")
	ErrWagerMismatch     = errors.New("wager does not match the challenge")
	ErrInvalidWager      = errors.New("wager must be positive")
	ErrSelfChallenge     = errors.New("cannot challenge yourself")
)

// isConflict reports whether err should be surfaced with the conflict
// error code rather than plain bad request.
func isConflict(err error) bool {
	switch errors.Cause(err) {
	case ErrDuplicateMove, ErrWrongRound, ErrChallengeUnknown, ErrTargetUnavailable, ErrWagerMismatch, ErrSessionNotLive:
		return true
	}
	return false
}
