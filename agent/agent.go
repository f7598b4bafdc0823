// Agent module - the conversation controller state machine
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrivenlab/scriven/memory"
	"github.com/scrivenlab/scriven/pkg/config"
	"github.com/scrivenlab/scriven/pkg/llm"
	"github.com/scrivenlab/scriven/storage"
	"github.com/scrivenlab/scriven/tools"
)

// HistoryReader is the slice of the history store the controller reads
type HistoryReader interface {
	GetRecentMessages(sessionKey string, n int) ([]storage.Message, error)
	GetSessionMeta(sessionKey string) (storage.SessionMeta, error)
}

// ProfileReader supplies known user facts for the system prompt
type ProfileReader interface {
	Read(userID string) (map[string]string, error)
}

// Recaller searches the semantic index for prompt injection
type Recaller interface {
	Search(ctx context.Context, query string, k int, minScore float32) ([]memory.Result, error)
}

// Committer persists one completed turn
type Committer interface {
	Commit(ctx context.Context, rec *memory.WriteRecord) (memory.CommitStatus, error)
}

// Logger interface for dependency injection
type Logger interface {
	Printf(format string, v ...interface{})
}

type defaultLogger struct{}

func (defaultLogger) Printf(format string, v ...interface{}) { log.Printf(format, v...) }

// Config wraps config.AgentConfig with injected collaborators
type Config struct {
	config.AgentConfig
	Provider llm.Provider
	Registry *tools.Registry
	Policy   ChainingPolicy
	Memory   Committer
	History  HistoryReader
	Recall   Recaller
	Profiles ProfileReader
	Logger   Logger
}

// Controller drives one user turn to completion
type Controller struct {
	cfg      config.AgentConfig
	provider llm.Provider
	registry *tools.Registry
	policy   ChainingPolicy
	memory   Committer
	history  HistoryReader
	recall   Recaller
	profiles ProfileReader
	logger   Logger

	catalog []llm.Tool // resolved once at construction

	// per-session advisory locks: single writer per session
	sessionMu sync.Mutex
	sessions  map[string]*sync.Mutex
}

// New creates a controller. The tool catalog is built once here from the
// registered tools; absent collaborators simply leave their tools out.
func New(cfg Config) *Controller {
	c := &Controller{
		cfg:      cfg.AgentConfig,
		provider: cfg.Provider,
		registry: cfg.Registry,
		policy:   cfg.Policy,
		memory:   cfg.Memory,
		history:  cfg.History,
		recall:   cfg.Recall,
		profiles: cfg.Profiles,
		logger:   cfg.Logger,
		sessions: make(map[string]*sync.Mutex),
	}
	if c.registry == nil {
		c.registry = tools.NewRegistry()
	}
	if c.policy == nil {
		c.policy = NewKeywordChainingPolicy()
	}
	if c.logger == nil {
		c.logger = defaultLogger{}
	}
	if c.cfg.MaxToolCalls == 0 {
		c.cfg.MaxToolCalls = 5
	}
	if c.cfg.Temperature == 0 {
		c.cfg.Temperature = 0.7
	}
	if c.cfg.MaxTokens == 0 {
		c.cfg.MaxTokens = 1000
	}
	if c.cfg.HistoryPairs == 0 {
		c.cfg.HistoryPairs = 8
	}
	if c.cfg.ContextTokens == 0 {
		c.cfg.ContextTokens = 8192
	}
	if c.cfg.RecallLimit == 0 {
		c.cfg.RecallLimit = 3
	}
	if c.cfg.CallTimeout == 0 {
		c.cfg.CallTimeout = 60 * time.Second
	}

	c.catalog = buildCatalog(c.registry.GetToolSpecs())
	c.logger.Printf("[Agent] controller ready: %d tools, budget %d calls", len(c.catalog), c.cfg.MaxToolCalls)
	return c
}

// TurnResult is the caller-facing outcome of one run
type TurnResult struct {
	Text      string
	Phase     TurnPhase
	ToolCalls int
	State     State
	Err       *TurnError
	Commit    memory.CommitStatus
}

const fallbackApology = "I'm sorry, something went wrong while handling your request. Please try again."

// RunTurn drives one user utterance to a terminal phase. It always returns a
// result with text and phase; the error return is reserved for caller misuse.
func (c *Controller) RunTurn(ctx context.Context, userText, sessionID, userID string) (*TurnResult, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, fmt.Errorf("user text must be non-empty")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := c.lockSession(sessionID)
	defer unlock()

	st := newState(sessionID, userID, userText)
	pc := c.gatherContext(ctx, st)

	var (
		finalText   string
		invocations []memory.ToolInvocation
		committed   bool
		commitState memory.CommitStatus
	)

	commit := func(failed bool) {
		if committed || c.memory == nil {
			return
		}
		committed = true
		rec := &memory.WriteRecord{
			SessionKey:    st.SessionID,
			UserID:        st.UserID,
			TurnIndex:     nextTurnIndex(pc),
			UserText:      st.UserText,
			AssistantText: finalText,
			PriorSummary:  pc.priorSummary,
			Tools:         invocations,
			ProfileDelta:  st.profileDelta,
			Failed:        failed,
		}
		// Cancelled runs still get a best-effort commit for continuity
		cctx := ctx
		if cctx.Err() != nil {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
		}
		status, err := c.memory.Commit(cctx, rec)
		commitState = status
		if err != nil {
			c.logger.Printf("[WARN] memory commit failed: %v", err)
		} else if status == memory.CommitDegraded {
			c.logger.Printf("[WARN] memory commit degraded for session %s", st.SessionID)
		}
	}

	for !st.Phase.Terminal() {
		switch st.Phase {
		case PhaseThinking:
			st.LastErr = nil
			resp, err := c.callCompletion(ctx, st, pc, false)
			if err != nil {
				st.LastErr = classify(err)
				st.Phase = PhaseFailed
				continue
			}
			if calls := resp.FirstToolCalls(); len(calls) > 0 {
				call := calls[0]
				if len(calls) > 1 {
					c.logger.Printf("[WARN] model requested %d tools, dispatching first (%s)", len(calls), call.Function.Name)
				}
				st.append(LogEntry{
					Role:      "assistant",
					Content:   resp.FirstText(),
					toolCalls: []llm.ToolCall{call},
				})
				st.Pending = &PendingToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}
				st.Phase = PhaseAwaitingToolResult
				continue
			}
			st.directAnswer = resp.FirstText()
			st.Phase = PhaseFinalizing

		case PhaseAwaitingToolResult:
			call := st.Pending
			st.Pending = nil
			inv := c.dispatchTool(ctx, st, call)
			invocations = append(invocations, inv)
			st.Phase = PhaseChaining

		case PhaseChaining:
			if ctx.Err() != nil {
				st.LastErr = &TurnError{Kind: ErrKindCompletionUnavailable, Message: ctx.Err().Error()}
				st.Phase = PhaseFailed
				continue
			}
			if st.ToolCallCount >= c.cfg.MaxToolCalls {
				c.logger.Printf("[Agent] tool budget reached (%d), finalizing", st.ToolCallCount)
				st.Phase = PhaseFinalizing
				continue
			}
			if st.lastStatus != tools.StatusOK {
				// Dispatch failures go back to the model so it can correct
				// itself; the retry loop stays bounded by the tool budget
				st.Phase = PhaseThinking
				continue
			}
			cont, guidance := c.policy.ShouldContinue(st.lastToolName, st.lastStatus, st.UserText)
			if cont {
				st.ChainingGuidance = guidance
				st.Phase = PhaseThinking
				continue
			}
			st.Phase = PhaseFinalizing

		case PhaseFinalizing:
			if st.ToolCallCount == 0 {
				// Direct answer from the first model call, verbatim
				finalText = st.directAnswer
			} else {
				resp, err := c.callCompletion(ctx, st, pc, true)
				if err != nil {
					st.LastErr = classify(err)
					st.Phase = PhaseFailed
					continue
				}
				finalText = resp.FirstText()
			}
			if finalText == "" {
				finalText = "I could not produce a response for that. Please try rephrasing."
			}
			// A run that reaches here recovered from any dispatch failure
			st.LastErr = nil
			st.append(LogEntry{Role: "assistant", Content: finalText})
			commit(false)
			st.Phase = PhaseFinished
		}
	}

	if st.Phase == PhaseFailed {
		finalText = fallbackApology
		commit(true)
	}

	return &TurnResult{
		Text:      finalText,
		Phase:     st.Phase,
		ToolCalls: st.ToolCallCount,
		State:     st.Snapshot(),
		Err:       st.LastErr,
		Commit:    commitState,
	}, nil
}

// callCompletion performs one model call at a well-defined suspension point
func (c *Controller) callCompletion(ctx context.Context, st *State, pc *promptContext, finalizing bool) (*llm.ChatResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req := &llm.ChatRequest{
		Model:       c.cfg.Model,
		Messages:    buildMessages(st, pc, c.cfg.ContextTokens, finalizing),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if !finalizing {
		req.Tools = c.catalog
	}
	st.ChainingGuidance = "" // consumed by buildMessages

	resp, err := c.provider.Chat(cctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, llm.Unavailable(fmt.Errorf("empty response"))
	}
	return resp, nil
}

// dispatchTool runs one pending tool call. Failures are recoverable: they are
// appended to the log as tool results the model can react to.
func (c *Controller) dispatchTool(ctx context.Context, st *State, call *PendingToolCall) memory.ToolInvocation {
	st.ToolCallCount++

	dctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	var res tools.Result
	args, perr := tools.ParseArgs(call.Arguments)
	if perr != nil {
		res = tools.Result{Status: tools.StatusFailed, Text: fmt.Sprintf("invalid arguments: %v", perr)}
		st.LastErr = &TurnError{Kind: ErrKindInvalidArguments, Message: perr.Error()}
	} else {
		var derr error
		res, derr = c.registry.Dispatch(dctx, call.Name, args)
		if derr != nil {
			st.LastErr = classify(derr)
		}
	}

	if res.Status == tools.StatusOK && call.Name == "profile_save" {
		st.addProfileDelta(tools.GetString(args, "field"), tools.GetString(args, "value"))
	}

	content := res.Text
	if res.Status != tools.StatusOK {
		content = fmt.Sprintf("Tool %s failed: %s. You may retry with corrected input or answer from what you already know.", call.Name, res.Text)
	}
	st.append(LogEntry{
		Role:       "tool",
		Content:    content,
		ToolName:   call.Name,
		toolCallID: call.ID,
	})
	st.lastToolName = call.Name
	st.lastStatus = res.Status

	return memory.ToolInvocation{
		Name:   call.Name,
		Args:   call.Arguments,
		Status: res.Status,
		Result: tools.Truncate(res.Text, 2000),
	}
}

// gatherContext loads durable context before the loop starts. Every read is
// best-effort: a cold store degrades the prompt, not the run.
func (c *Controller) gatherContext(ctx context.Context, st *State) *promptContext {
	pc := &promptContext{}

	if c.history != nil {
		meta, err := c.history.GetSessionMeta(st.SessionID)
		if err != nil {
			c.logger.Printf("[WARN] session meta read failed: %v", err)
		} else {
			pc.priorSummary = meta.LastSummary
			pc.turnCount = meta.TurnCount
		}
		msgs, err := c.history.GetRecentMessages(st.SessionID, c.cfg.HistoryPairs*2)
		if err != nil {
			c.logger.Printf("[WARN] history read failed: %v", err)
		} else {
			pc.history = msgs
		}
	}

	if c.profiles != nil && st.UserID != "" {
		fields, err := c.profiles.Read(st.UserID)
		if err != nil {
			c.logger.Printf("[WARN] profile read failed: %v", err)
		} else {
			pc.profileFields = fields
		}
	}

	if c.recall != nil {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		results, err := c.recall.Search(rctx, st.UserText, c.cfg.RecallLimit, c.cfg.RecallScore)
		cancel()
		if err != nil {
			c.logger.Printf("[WARN] recall failed: %v", err)
		} else {
			for _, r := range results {
				pc.recalled = append(pc.recalled, r.Entry.Text)
			}
		}
	}

	return pc
}

func nextTurnIndex(pc *promptContext) int {
	return pc.turnCount + 1
}

func (c *Controller) lockSession(sessionID string) func() {
	c.sessionMu.Lock()
	mu, ok := c.sessions[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		c.sessions[sessionID] = mu
	}
	c.sessionMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// classify maps collaborator errors onto the turn error taxonomy
func classify(err error) *TurnError {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return &TurnError{Kind: ErrKindUnknownTool, Message: err.Error()}
	case errors.Is(err, tools.ErrInvalidArguments):
		return &TurnError{Kind: ErrKindInvalidArguments, Message: err.Error()}
	case errors.Is(err, tools.ErrExecutionFailed):
		return &TurnError{Kind: ErrKindToolExecutionFailed, Message: err.Error()}
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &TurnError{Kind: ErrKindCompletionUnavailable, Message: err.Error()}
	default:
		return &TurnError{Kind: ErrKindInternal, Message: err.Error()}
	}
}

// buildCatalog converts registry specs into the provider tool format
func buildCatalog(specs []map[string]interface{}) []llm.Tool {
	catalog := make([]llm.Tool, 0, len(specs))
	for _, s := range specs {
		fn, ok := s["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		catalog = append(catalog, llm.Tool{
			Type: "function",
			Function: &llm.ToolDef{
				Name:        name,
				Description: desc,
				Parameters:  fn["parameters"],
			},
		})
	}
	return catalog
}
