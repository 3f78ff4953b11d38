package types

// Decision is a policy verdict.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// PolicyDecision is the append-only record of one tool-permission check.
// DecidedBy is the name of the deciding policy, "none" when no applicable
// policy denied, or "cache" when a cached verdict was replayed.
type PolicyDecision struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionID"`
	Tool       string         `json:"tool"`
	Input      map[string]any `json:"input,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Decision   Decision       `json:"decision"`
	Reason     string         `json:"reason"`
	DecidedBy  string         `json:"decidedBy"`
	Created    int64          `json:"created"`
	DurationMS int64          `json:"durationMs"`
}

// HookExecutionRecord is the append-only record of one hook invocation,
// success or failure. Error is set when the hook returned an error; the
// pipeline swallows the error itself.
type HookExecutionRecord struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionID"`
	Event      string         `json:"event"`
	HookName   string         `json:"hookName"`
	ToolUseID  *string        `json:"toolUseID,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Created    int64          `json:"created"`
	DurationMS int64          `json:"durationMs"`
}

// AuditEvent is one fire-and-forget audit trail entry.
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SessionID *string        `json:"sessionID,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Created   int64          `json:"created"`
}

// ArchiveStatus reports the outcome of a working-directory archival.
type ArchiveStatus string

const (
	ArchiveOK     ArchiveStatus = "archived"
	ArchiveFailed ArchiveStatus = "failed"
)

// ArchiveMetadata describes one archived working directory. Failures are
// reported in Status/Reason rather than as errors where feasible.
type ArchiveMetadata struct {
	SessionID string        `json:"sessionID"`
	Path      string        `json:"path,omitempty"`
	SizeBytes int64         `json:"sizeBytes,omitempty"`
	FileCount int           `json:"fileCount,omitempty"`
	Checksum  string        `json:"checksum,omitempty"`
	Status    ArchiveStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Created   int64         `json:"created"`
}
