// Prompt assembly - system context, history pruning, token estimation
package agent

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/scrivenlab/scriven/pkg/llm"
	"github.com/scrivenlab/scriven/storage"
)

const basePersona = `You are Scriven, a personal workspace assistant. You help the user search,
read and edit their workspace pages, and you remember facts they tell you.
Answer directly when no tool is needed. When you use tools, finish by telling
the user what you did.`

// promptContext is the durable context gathered before a run
type promptContext struct {
	profileFields map[string]string
	priorSummary  string
	turnCount     int
	recalled      []string
	history       []storage.Message
}

// buildSystemPrompt renders the system message for the next completion call
func buildSystemPrompt(pc *promptContext, guidance string) string {
	var b strings.Builder
	b.WriteString(basePersona)

	if len(pc.profileFields) > 0 {
		b.WriteString("\n\n## What you know about the user\n")
		keys := make([]string, 0, len(pc.profileFields))
		for k := range pc.profileFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, pc.profileFields[k])
		}
	}

	if pc.priorSummary != "" {
		b.WriteString("\n## Conversation so far (summary)\n")
		b.WriteString(pc.priorSummary)
		b.WriteString("\n")
	}

	if len(pc.recalled) > 0 {
		b.WriteString("\n## Relevant past conversations\n")
		for _, m := range pc.recalled {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	if guidance != "" {
		b.WriteString("\n## Follow-up required\n")
		b.WriteString(guidance)
		b.WriteString("\n")
	}

	return b.String()
}

const finalizeNudge = `All tool work for this request is done. Write the final answer for the
user: summarize what was found and what was changed. Do not request any more
tools.`

// buildMessages assembles the wire messages for a completion call
func buildMessages(st *State, pc *promptContext, tokenBudget int, finalizing bool) []llm.Message {
	system := buildSystemPrompt(pc, st.ChainingGuidance)

	msgs := []llm.Message{{Role: "system", Content: system}}

	// Persisted history first, pruned oldest-first to fit the budget
	history := pruneHistory(pc.history, tokenBudget-estimateText(system))
	for _, m := range history {
		role := m.Role
		if role == "tool" {
			// Replayed tool output reads as plain context, not protocol messages
			msgs = append(msgs, llm.Message{Role: "assistant", Content: fmt.Sprintf("[%s result] %s", m.ToolName, m.Content)})
			continue
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}

	// Then this run's own exchange, including live tool-call protocol
	for _, e := range st.Log {
		switch e.Role {
		case "assistant":
			msgs = append(msgs, llm.Message{Role: "assistant", Content: e.Content, ToolCalls: e.toolCalls})
		case "tool":
			msgs = append(msgs, llm.Message{Role: "tool", Content: e.Content, ToolCallID: e.toolCallID, Name: e.ToolName})
		default:
			msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Content})
		}
	}

	if finalizing {
		msgs = append(msgs, llm.Message{Role: "system", Content: finalizeNudge})
	}

	return msgs
}

// pruneHistory drops the oldest entries until the remainder fits budget
func pruneHistory(history []storage.Message, budget int) []storage.Message {
	if budget <= 0 {
		return nil
	}
	total := 0
	for _, m := range history {
		total += estimateText(m.Content)
	}
	start := 0
	for total > budget && start < len(history) {
		total -= estimateText(history[start].Content)
		start++
	}
	if start > 0 {
		log.Printf("[Agent] pruned %d history messages to fit token budget", start)
	}
	return history[start:]
}

var (
	tokenCounter     *tiktoken.Tiktoken
	tokenCounterOnce sync.Once
)

func initTokenCounter() {
	tokenCounterOnce.Do(func() {
		tk, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("[WARN] token estimation will use fallback method: %v", err)
			return
		}
		tokenCounter = tk
	})
}

// estimateText counts tokens with tiktoken, falling back to chars/4
func estimateText(s string) int {
	initTokenCounter()
	if tokenCounter != nil {
		return len(tokenCounter.Encode(s, nil, nil))
	}
	return len(s) / 4
}
