// Package types provides the core data types for the Warden engine.
package types

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusCreated    SessionStatus = "created"
	StatusConnecting SessionStatus = "connecting"
	StatusActive     SessionStatus = "active"
	StatusWaiting    SessionStatus = "waiting"
	StatusProcessing SessionStatus = "processing"
	StatusPaused     SessionStatus = "paused"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusTerminated SessionStatus = "terminated"
	StatusArchived   SessionStatus = "archived"
)

// Terminal reports whether the status is an end state that can only be archived.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	}
	return false
}

// SessionMode describes how a session was started.
type SessionMode string

const (
	ModeInteractive    SessionMode = "interactive"
	ModeNonInteractive SessionMode = "noninteractive"
	ModeForked         SessionMode = "forked"
)

// Session represents one logical conversation against the external agent runtime.
type Session struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userID"`
	Mode      SessionMode   `json:"mode"`
	Status    SessionStatus `json:"status"`
	Directory string        `json:"directory"`
	ParentID  *string       `json:"parentID,omitempty"`
	Title     string        `json:"title,omitempty"`

	// Runtime configuration handed to the pooled connection on create.
	Config RuntimeConfig `json:"config"`

	Metrics SessionMetrics `json:"metrics"`
	Time    SessionTime    `json:"time"`

	// Result carries the terminal result text for completed sessions,
	// Error the captured failure for failed ones.
	Result *string `json:"result,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// SessionMetrics accumulates usage counters over the session lifetime.
type SessionMetrics struct {
	MessageCount  int     `json:"messageCount"`
	ToolCallCount int     `json:"toolCallCount"`
	TurnCount     int     `json:"turnCount"`
	InputTokens   int64   `json:"inputTokens"`
	OutputTokens  int64   `json:"outputTokens"`
	CostUSD       float64 `json:"costUSD"`
	ErrorCount    int     `json:"errorCount"`
	RetryCount    int     `json:"retryCount"`
}

// SessionTime contains timestamps for a session, in unix milliseconds.
type SessionTime struct {
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Started    *int64 `json:"started,omitempty"`
	Completed  *int64 `json:"completed,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
}
