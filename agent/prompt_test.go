package agent

import (
	"strings"
	"testing"

	"github.com/scrivenlab/scriven/storage"
)

func TestBuildSystemPrompt(t *testing.T) {
	pc := &promptContext{
		profileFields: map[string]string{"name": "Ada", "timezone": "UTC"},
		priorSummary:  "The user is drafting a report.",
		recalled:      []string{"user asked about deadlines last week"},
	}

	prompt := buildSystemPrompt(pc, "")

	for _, want := range []string{"name: Ada", "timezone: UTC", "drafting a report", "deadlines"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("System prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Follow-up required") {
		t.Error("No guidance section without guidance")
	}

	// Profile fields render in stable order
	if strings.Index(prompt, "name:") > strings.Index(prompt, "timezone:") {
		t.Error("Profile fields should be sorted by key")
	}
}

func TestBuildSystemPromptGuidance(t *testing.T) {
	prompt := buildSystemPrompt(&promptContext{}, "perform the pending change now")
	if !strings.Contains(prompt, "Follow-up required") {
		t.Error("Guidance section missing")
	}
	if !strings.Contains(prompt, "perform the pending change now") {
		t.Error("Guidance text missing")
	}
}

func TestBuildSystemPromptEmptyContext(t *testing.T) {
	prompt := buildSystemPrompt(&promptContext{}, "")
	if !strings.Contains(prompt, "Scriven") {
		t.Error("Base persona missing")
	}
	if strings.Contains(prompt, "## What you know") {
		t.Error("Empty profile should not render a section")
	}
}

func TestBuildMessagesShape(t *testing.T) {
	st := newState("s1", "u1", "new question")
	pc := &promptContext{
		history: []storage.Message{
			{Role: "user", Content: "old question"},
			{Role: "tool", ToolName: "search_pages", Content: "three results"},
			{Role: "assistant", Content: "old answer"},
		},
	}

	msgs := buildMessages(st, pc, 8192, false)

	if msgs[0].Role != "system" {
		t.Fatalf("First message must be system, got %s", msgs[0].Role)
	}
	// Replayed tool output is flattened into plain assistant context
	found := false
	for _, m := range msgs {
		if strings.Contains(m.Content, "[search_pages result]") {
			found = true
			if m.Role != "assistant" {
				t.Errorf("Replayed tool output should be an assistant message, got %s", m.Role)
			}
		}
		if m.Role == "tool" {
			t.Error("Persisted history must not replay raw tool protocol messages")
		}
	}
	if !found {
		t.Error("Tool history missing from replay")
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "new question" {
		t.Errorf("Live exchange must come last, got %s %q", last.Role, last.Content)
	}
}

func TestBuildMessagesFinalizeNudge(t *testing.T) {
	st := newState("s1", "u1", "hello")
	msgs := buildMessages(st, &promptContext{}, 8192, true)
	last := msgs[len(msgs)-1]
	if last.Role != "system" || !strings.Contains(last.Content, "final answer") {
		t.Errorf("Finalizing call must end with the nudge, got %s %q", last.Role, last.Content)
	}
}

func TestPruneHistory(t *testing.T) {
	long := strings.Repeat("word ", 400)
	history := []storage.Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: "short"},
	}

	pruned := pruneHistory(history, estimateText(long)+estimateText("short")+10)
	if len(pruned) != 2 {
		t.Fatalf("Expected oldest message dropped, got %d remaining", len(pruned))
	}
	if pruned[len(pruned)-1].Content != "short" {
		t.Error("Newest message must survive pruning")
	}

	if got := pruneHistory(history, 0); got != nil {
		t.Errorf("Zero budget should prune everything, got %d", len(got))
	}

	all := pruneHistory(history, 1<<20)
	if len(all) != 3 {
		t.Errorf("Large budget should keep everything, got %d", len(all))
	}
}

func TestEstimateText(t *testing.T) {
	if estimateText("") != 0 {
		t.Error("Empty string should estimate to 0 tokens")
	}
	short := estimateText("hello world")
	long := estimateText(strings.Repeat("hello world ", 50))
	if long <= short {
		t.Error("Longer text must estimate to more tokens")
	}
}

func TestStateSnapshotIsolation(t *testing.T) {
	st := newState("s1", "u1", "hi")
	st.append(LogEntry{Role: "assistant", Content: "hello"})
	st.addProfileDelta("name", "Ada")

	snap := st.Snapshot()
	st.append(LogEntry{Role: "assistant", Content: "more"})
	st.addProfileDelta("city", "Paris")

	if len(snap.Log) != 2 {
		t.Errorf("Snapshot log must not grow with the original, got %d", len(snap.Log))
	}
	if _, ok := snap.profileDelta["city"]; ok {
		t.Error("Snapshot delta must not share the original map")
	}
	if snap.Pending != nil {
		t.Error("Snapshot must not expose the pending call")
	}
}
