// Agent module - turn state threaded through one controller run
package agent

import (
	"fmt"

	"github.com/scrivenlab/scriven/pkg/llm"
)

// TurnPhase is the controller state-machine phase
type TurnPhase string

const (
	PhaseThinking           TurnPhase = "thinking"
	PhaseAwaitingToolResult TurnPhase = "awaiting_tool_result"
	PhaseChaining           TurnPhase = "chaining"
	PhaseFinalizing         TurnPhase = "finalizing"
	PhaseFinished           TurnPhase = "finished"
	PhaseFailed             TurnPhase = "failed"
)

// Terminal reports whether the phase ends a run
func (p TurnPhase) Terminal() bool {
	return p == PhaseFinished || p == PhaseFailed
}

// LogEntry is one conversation-log record. Entries are append-only and
// immutable once appended.
type LogEntry struct {
	Role     string `json:"role"` // user, assistant, tool
	Content  string `json:"content"`
	ToolName string `json:"tool_name,omitempty"`

	// wire-protocol bookkeeping, not part of the public record
	toolCallID string
	toolCalls  []llm.ToolCall
}

// PendingToolCall is a tool invocation requested by the model and not yet
// dispatched
type PendingToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// State is the mutable record for one run. Owned exclusively by the
// controller until the run terminates; callers receive a Snapshot.
type State struct {
	SessionID string
	UserID    string
	UserText  string

	Phase            TurnPhase
	Log              []LogEntry
	ToolCallCount    int
	Pending          *PendingToolCall
	LastErr          *TurnError
	ChainingGuidance string

	// per-run accumulation for the memory commit
	profileDelta map[string]string
	directAnswer string
	lastToolName string
	lastStatus   string
}

// newState creates the state for a fresh run
func newState(sessionID, userID, userText string) *State {
	return &State{
		SessionID: sessionID,
		UserID:    userID,
		UserText:  userText,
		Phase:     PhaseThinking,
		Log:       []LogEntry{{Role: "user", Content: userText}},
	}
}

func (s *State) append(e LogEntry) {
	s.Log = append(s.Log, e)
}

// Snapshot returns an immutable copy handed to the caller on completion
func (s *State) Snapshot() State {
	cp := *s
	cp.Log = make([]LogEntry, len(s.Log))
	copy(cp.Log, s.Log)
	cp.Pending = nil
	if s.LastErr != nil {
		e := *s.LastErr
		cp.LastErr = &e
	}
	if s.profileDelta != nil {
		cp.profileDelta = make(map[string]string, len(s.profileDelta))
		for k, v := range s.profileDelta {
			cp.profileDelta[k] = v
		}
	}
	return cp
}

func (s *State) addProfileDelta(field, value string) {
	if s.profileDelta == nil {
		s.profileDelta = make(map[string]string)
	}
	s.profileDelta[field] = value
}

// ErrorKind classifies turn errors
type ErrorKind string

const (
	ErrKindInvalidArguments      ErrorKind = "invalid_arguments"
	ErrKindUnknownTool           ErrorKind = "unknown_tool"
	ErrKindToolExecutionFailed   ErrorKind = "tool_execution_failed"
	ErrKindCompletionUnavailable ErrorKind = "completion_unavailable"
	ErrKindInternal              ErrorKind = "internal"
)

// TurnError is the structured error carried on failure paths
type TurnError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
