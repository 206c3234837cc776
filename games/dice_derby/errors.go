package dice_derby

import (
	"errors"
	"fmt"
	"time"
)

// Reasons an entry can be refused
var (
	ErrInsufficientTokens = errors.New("not enough tokens")
	ErrCooldownActive     = errors.New("race cooldown active")
	ErrAlreadyRacing      = errors.New("already in an active race")
	ErrLobbyFull          = errors.New("lobby is full")
	ErrColourTaken        = errors.New("colour already taken")
	ErrUnknownTier        = errors.New("unknown tier")
	ErrUnknownColour      = errors.New("unknown competitor")
	ErrLobbyClosed        = errors.New("lobby is no longer open")
	ErrPartyNotFound      = errors.New("party not found")
	ErrNotEnoughEntrants  = errors.New("not enough entrants")
	ErrDailyNotReady      = errors.New("daily tokens already claimed")
)

var (
	// ErrSimulationFault marks a race abandoned because a tick failed
	ErrSimulationFault = errors.New("simulation fault")
	// ErrEngineClosed is returned once shutdown has started
	ErrEngineClosed = errors.New("race engine is shutting down")
)

// EntryRejected is returned before any state is touched. Reason is one of the
// sentinels above, so callers can use errors.Is.
type EntryRejected struct {
	Reason     error
	Detail     string
	RetryAfter time.Duration
}

func (e *EntryRejected) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("entry rejected: %v", e.Reason)
	}
	return fmt.Sprintf("entry rejected: %v: %s", e.Reason, e.Detail)
}

func (e *EntryRejected) Unwrap() error {
	return e.Reason
}

func reject(reason error, detail string) error {
	return &EntryRejected{Reason: reason, Detail: detail}
}

func rejectRetry(reason error, after time.Duration) error {
	return &EntryRejected{Reason: reason, RetryAfter: after}
}

// IsEntryRejected reports whether err is a user-facing entry refusal
func IsEntryRejected(err error) bool {
	var rej *EntryRejected
	return errors.As(err, &rej)
}
