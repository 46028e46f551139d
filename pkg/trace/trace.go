// Package trace defines the value types for logged conversation turns.
//
// A Trace is one turn: role, content, and an open metadata mapping. Traces
// are owned by the storage layer; callers only ever hold copies.
package trace

import (
	"time"
)

// Roles conventionally used by the orchestrator. Role is an open string so
// future roles (tool, critic, ...) need no schema change.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Reserved metadata keys. Anything else is caller-defined.
const (
	MetaDurationMS     = "duration_ms"
	MetaSuccess        = "success"
	MetaTokensUsed     = "tokens_used"
	MetaToolsCalled    = "tools_called"
	MetaError          = "error"
	MetaRecalledTraces = "recalled_traces"
)

// Metadata is an open key-value mapping attached to a trace. Only the
// reserved keys above carry meaning to the engine itself.
type Metadata map[string]interface{}

// Trace represents a single logged conversation turn
type Trace struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Embedding is reserved for future semantic search. Always nil today.
	Embedding *string `json:"embedding,omitempty"`
}

// IsSuccess reports whether this trace is considered successful. A missing
// or non-boolean success field counts as success.
func (t *Trace) IsSuccess() bool {
	if t.Metadata == nil {
		return true
	}
	return IsTruthy(t.Metadata[MetaSuccess])
}

// GetMetadata returns a metadata value by key
func (t *Trace) GetMetadata(key string) (interface{}, bool) {
	if t.Metadata == nil {
		return nil, false
	}
	v, ok := t.Metadata[key]
	return v, ok
}

// IsTruthy interprets an open metadata value as a boolean. Absent values are
// truthy so that traces logged without a success marker are not filtered out.
func IsTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return val
	case string:
		return val != "false" && val != "0" && val != ""
	case float64:
		// JSON numbers decode as float64
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return true
	}
}
