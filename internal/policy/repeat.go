package policy

import (
	"context"
	"fmt"
	"sync"
)

// DefaultRepeatThreshold is the number of consecutive identical calls that
// triggers the repeat guard.
const DefaultRepeatThreshold = 3

// historyDepth bounds the per-session call history.
const historyDepth = 10

// RepeatGuardPolicy denies the Nth consecutive identical tool invocation
// within a session, breaking agent loops that retry the same failing call
// forever. A different call resets the streak.
type RepeatGuardPolicy struct {
	threshold int

	mu      sync.Mutex
	history map[string][]string
}

// NewRepeatGuardPolicy creates the policy. A threshold below 2 falls back
// to DefaultRepeatThreshold.
func NewRepeatGuardPolicy(threshold int) *RepeatGuardPolicy {
	if threshold < 2 {
		threshold = DefaultRepeatThreshold
	}
	return &RepeatGuardPolicy{
		threshold: threshold,
		history:   make(map[string][]string),
	}
}

func (p *RepeatGuardPolicy) Name() string { return "repeat_guard" }

func (p *RepeatGuardPolicy) Priority() int { return 40 }

func (p *RepeatGuardPolicy) AppliesTo(tool string) bool { return true }

func (p *RepeatGuardPolicy) Evaluate(ctx context.Context, req *Request) (*Verdict, error) {
	hash := StableHash(req.Tool, req.Input)

	p.mu.Lock()
	defer p.mu.Unlock()

	history := p.history[req.SessionID]

	looping := false
	if len(history) >= p.threshold-1 {
		looping = true
		for _, h := range history[len(history)-(p.threshold-1):] {
			if h != hash {
				looping = false
				break
			}
		}
	}

	history = append(history, hash)
	if len(history) > historyDepth {
		history = history[len(history)-historyDepth:]
	}
	p.history[req.SessionID] = history

	if looping {
		return Deny(fmt.Sprintf("identical %s call repeated %d times", req.Tool, p.threshold)), nil
	}
	return Allow("no repeat loop detected"), nil
}

// Clear drops the call history for a session.
func (p *RepeatGuardPolicy) Clear(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.history, sessionID)
}
