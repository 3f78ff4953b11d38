package session

import (
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/types"
)

// validTransitions maps each status to the statuses it may enter.
// StatusArchived has no outbound transitions.
var validTransitions = map[types.SessionStatus][]types.SessionStatus{
	types.StatusCreated:    {types.StatusConnecting, types.StatusTerminated},
	types.StatusConnecting: {types.StatusActive, types.StatusFailed},
	types.StatusActive: {
		types.StatusWaiting, types.StatusProcessing, types.StatusPaused,
		types.StatusCompleted, types.StatusFailed, types.StatusTerminated,
	},
	types.StatusWaiting:    {types.StatusActive, types.StatusProcessing, types.StatusTerminated},
	types.StatusProcessing: {types.StatusActive, types.StatusCompleted, types.StatusFailed},
	types.StatusPaused:     {types.StatusActive, types.StatusTerminated},
	types.StatusCompleted:  {types.StatusArchived},
	types.StatusFailed:     {types.StatusArchived},
	types.StatusTerminated: {types.StatusArchived},
	types.StatusArchived:   {},
}

// InvalidTransitionError reports a status change outside the transition table.
type InvalidTransitionError struct {
	From types.SessionStatus
	To   types.SessionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition: %s -> %s", e.From, e.To)
}

// CanTransition reports whether from may enter to.
func CanTransition(from, to types.SessionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// applyTransition mutates the session for a status change. Entering ACTIVE
// for the first time stamps Started; entering a terminal status stamps
// Completed and computes the duration (0 if the session never started).
func applyTransition(sess *types.Session, to types.SessionStatus) error {
	if !CanTransition(sess.Status, to) {
		return &InvalidTransitionError{From: sess.Status, To: to}
	}

	now := time.Now().UnixMilli()
	sess.Status = to
	sess.Time.Updated = now

	if to == types.StatusActive && sess.Time.Started == nil {
		started := now
		sess.Time.Started = &started
	}

	if to.Terminal() {
		completed := now
		sess.Time.Completed = &completed
		if sess.Time.Started != nil {
			sess.Time.DurationMS = completed - *sess.Time.Started
		}
	}

	return nil
}
