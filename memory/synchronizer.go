// Memory synchronizer - one commit per completed turn across three stores
package memory

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// HistoryStore is the primary chat-history contract
type HistoryStore interface {
	AddMessage(sessionKey, role, content, toolName string) error
	RecordTurn(sessionKey, userID, summary string, failed bool) error
}

// SemanticIndex is the vector-index contract
type SemanticIndex interface {
	Insert(ctx context.Context, sessionKey, text, category string) (string, error)
}

// ProfileStore is the user-profile contract
type ProfileStore interface {
	ApplyDelta(userID string, fields map[string]string) error
}

// Summarizer refreshes the rolling session summary. Optional.
type Summarizer interface {
	Summarize(ctx context.Context, prior, userText, assistantText string) (string, error)
}

// ToolInvocation records one tool dispatch within a turn
type ToolInvocation struct {
	Name   string `json:"name"`
	Args   string `json:"args"`
	Status string `json:"status"` // ok or failed
	Result string `json:"result"`
}

// WriteRecord is the unit of one turn's memory commit. Built once per
// completed run, never mutated afterwards.
type WriteRecord struct {
	SessionKey    string
	UserID        string
	TurnIndex     int
	UserText      string
	AssistantText string
	PriorSummary  string
	Tools         []ToolInvocation
	ProfileDelta  map[string]string
	Failed        bool
}

// CommitStatus is the outcome of a commit
type CommitStatus int

const (
	CommitOK CommitStatus = iota
	CommitDegraded
	CommitFailed
)

func (c CommitStatus) String() string {
	switch c {
	case CommitOK:
		return "ok"
	case CommitDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// Synchronizer persists completed turns across history, index and profile
type Synchronizer struct {
	history    HistoryStore
	index      SemanticIndex
	profiles   ProfileStore
	summarizer Summarizer
}

// NewSynchronizer wires the three stores. index, profiles and summarizer may
// be nil; absent collaborators are skipped rather than branched on per call.
func NewSynchronizer(history HistoryStore, index SemanticIndex, profiles ProfileStore, summarizer Summarizer) *Synchronizer {
	return &Synchronizer{history: history, index: index, profiles: profiles, summarizer: summarizer}
}

// Commit writes the record. The history append is primary: its failure fails
// the commit. Index and profile writes run after it and degrade on failure
// without rolling history back - chat continuity outranks index completeness.
func (s *Synchronizer) Commit(ctx context.Context, rec *WriteRecord) (CommitStatus, error) {
	if s.history == nil {
		return CommitFailed, fmt.Errorf("memory commit: no history store")
	}

	summary := s.refreshSummary(ctx, rec)

	// Step 1: primary history write
	if err := s.appendHistory(rec, summary); err != nil {
		return CommitFailed, fmt.Errorf("memory commit: %w", err)
	}

	// Steps 2 and 3 are independently retryable; run them concurrently
	var degraded atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	if s.index != nil && rec.AssistantText != "" && !rec.Failed {
		g.Go(func() error {
			pair := fmt.Sprintf("user: %s, assistant: %s", rec.UserText, rec.AssistantText)
			if _, err := s.index.Insert(gctx, rec.SessionKey, pair, "turn"); err != nil {
				log.Printf("[WARN] semantic index write failed: %v", err)
				degraded.Store(true)
			}
			return nil
		})
	}

	if s.profiles != nil && len(rec.ProfileDelta) > 0 {
		g.Go(func() error {
			if err := s.profiles.ApplyDelta(rec.UserID, rec.ProfileDelta); err != nil {
				log.Printf("[WARN] profile write failed: %v", err)
				degraded.Store(true)
			}
			return nil
		})
	}

	_ = g.Wait() // goroutines report via degraded, never error

	if degraded.Load() {
		return CommitDegraded, nil
	}
	return CommitOK, nil
}

func (s *Synchronizer) appendHistory(rec *WriteRecord, summary string) error {
	if rec.UserText != "" {
		if err := s.history.AddMessage(rec.SessionKey, "user", rec.UserText, ""); err != nil {
			return err
		}
	}
	for _, inv := range rec.Tools {
		content := inv.Result
		if inv.Status != "ok" {
			content = fmt.Sprintf("(%s) %s", inv.Status, inv.Result)
		}
		if err := s.history.AddMessage(rec.SessionKey, "tool", content, inv.Name); err != nil {
			return err
		}
	}
	if rec.AssistantText != "" {
		if err := s.history.AddMessage(rec.SessionKey, "assistant", rec.AssistantText, ""); err != nil {
			return err
		}
	}
	return s.history.RecordTurn(rec.SessionKey, rec.UserID, summary, rec.Failed)
}

// refreshSummary asks the summarizer for an updated rolling summary. A
// failure keeps the previous summary; it never blocks the commit.
func (s *Synchronizer) refreshSummary(ctx context.Context, rec *WriteRecord) string {
	if s.summarizer == nil || rec.Failed || rec.AssistantText == "" {
		return ""
	}
	summary, err := s.summarizer.Summarize(ctx, rec.PriorSummary, rec.UserText, rec.AssistantText)
	if err != nil {
		log.Printf("[WARN] summary refresh failed: %v", err)
		return ""
	}
	return summary
}
