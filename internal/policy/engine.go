package policy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// Engine evaluates registered policies in ascending priority order. The
// first deny short-circuits; a policy error discards that policy's vote;
// with no denying policy the verdict is allow. Every evaluation appends a
// PolicyDecision record, best-effort.
type Engine struct {
	store store.Store
	log   zerolog.Logger

	mu       sync.RWMutex
	policies []Policy

	cacheEnabled bool
	cacheMu      sync.RWMutex
	cache        map[string]map[string]*Verdict
}

// NewEngine creates an engine. When cacheDecisions is set, identical
// (tool, input) checks within a session replay the first verdict.
func NewEngine(st store.Store, cacheDecisions bool) *Engine {
	return &Engine{
		store:        st,
		log:          logging.Component("policy"),
		cacheEnabled: cacheDecisions,
		cache:        make(map[string]map[string]*Verdict),
	}
}

// Register adds a policy. The policy list is rebuilt as a priority-sorted
// slice; ties keep registration order. Registration happens at startup,
// evaluation many times, so the list is optimized for reads.
func (e *Engine) Register(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()

	policies := make([]Policy, len(e.policies), len(e.policies)+1)
	copy(policies, e.policies)
	policies = append(policies, p)
	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].Priority() < policies[j].Priority()
	})
	e.policies = policies
}

// Policies returns the registered policies in evaluation order.
func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policies
}

// Evaluate returns the verdict for a tool invocation. It never returns an
// error: policy failures are contained and the engine fails open.
func (e *Engine) Evaluate(ctx context.Context, req *Request) *Verdict {
	start := time.Now()

	if e.cacheEnabled {
		if v, ok := e.cachedVerdict(req); ok {
			e.record(ctx, req, v, "cache", time.Since(start))
			return v
		}
	}

	verdict := Allow("no policy denied")
	decidedBy := "none"

	e.mu.RLock()
	policies := e.policies
	e.mu.RUnlock()

	for _, p := range policies {
		if !p.AppliesTo(req.Tool) {
			continue
		}

		v, err := p.Evaluate(ctx, req)
		if err != nil {
			// Fail open: the erroring policy did not vote.
			e.log.Warn().Err(err).
				Str("policy", p.Name()).
				Str("tool", req.Tool).
				Str("sessionID", req.SessionID).
				Msg("policy evaluation failed, vote discarded")
			continue
		}
		if v == nil {
			continue
		}

		if !v.Allow {
			verdict = v
			decidedBy = p.Name()
			break
		}
	}

	e.record(ctx, req, verdict, decidedBy, time.Since(start))

	if e.cacheEnabled {
		e.storeVerdict(req, verdict)
	}

	return verdict
}

// ClearCache drops all cached verdicts for a session.
func (e *Engine) ClearCache(sessionID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	delete(e.cache, sessionID)
}

func (e *Engine) cachedVerdict(req *Request) (*Verdict, bool) {
	key := StableHash(req.Tool, req.Input)

	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	if byHash, ok := e.cache[req.SessionID]; ok {
		if v, ok := byHash[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *Engine) storeVerdict(req *Request, v *Verdict) {
	key := StableHash(req.Tool, req.Input)

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.cache[req.SessionID] == nil {
		e.cache[req.SessionID] = make(map[string]*Verdict)
	}
	e.cache[req.SessionID][key] = v
}

// record appends the PolicyDecision for one evaluation. A persistence
// failure is logged and never changes the verdict.
func (e *Engine) record(ctx context.Context, req *Request, v *Verdict, decidedBy string, took time.Duration) {
	decision := types.DecisionAllow
	if !v.Allow {
		decision = types.DecisionDeny
	}

	rec := &types.PolicyDecision{
		SessionID:  req.SessionID,
		Tool:       req.Tool,
		Input:      req.Input,
		Decision:   decision,
		Reason:     v.Reason,
		DecidedBy:  decidedBy,
		DurationMS: took.Milliseconds(),
	}

	if e.store != nil {
		if err := e.store.AppendPolicyDecision(ctx, rec); err != nil {
			e.log.Warn().Err(err).
				Str("tool", req.Tool).
				Str("sessionID", req.SessionID).
				Msg("failed to append policy decision")
		}
	}

	event.Publish(event.Event{
		Type:      event.PolicyDecided,
		SessionID: req.SessionID,
		Data:      event.PolicyDecidedData{Info: rec},
	})
}
