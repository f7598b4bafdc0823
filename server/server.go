// HTTP front end - JSON chat endpoint plus a WebSocket channel
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scrivenlab/scriven/agent"
	"github.com/scrivenlab/scriven/pkg/config"
)

// Runner is the controller surface the server needs
type Runner interface {
	RunTurn(ctx context.Context, userText, sessionID, userID string) (*agent.TurnResult, error)
}

// StatsProvider reports store counters for the health endpoint
type StatsProvider interface {
	Stats() (map[string]int, error)
}

// Server exposes the agent over HTTP
type Server struct {
	cfg    config.ServerConfig
	runner Runner
	stats  StatsProvider
	srv    *http.Server

	upgrader websocket.Upgrader
	wsConns  int32
}

const maxWSConns = 64

// New builds the server around a turn runner. stats may be nil.
func New(cfg config.ServerConfig, runner Runner, stats StatsProvider) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		stats:  stats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser origin checks are the reverse proxy's job here
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/ws", s.handleWS)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe blocks until the server stops
func (s *Server) ListenAndServe() error {
	log.Printf("[Server] listening on %s", s.cfg.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.stats != nil {
		if st, err := s.stats.Stats(); err == nil {
			body["storage"] = st
		} else {
			log.Printf("[WARN] stats read failed: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// ChatRequest is the /api/chat request body
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ChatResponse is the /api/chat response body
type ChatResponse struct {
	Text      string           `json:"text"`
	Phase     string           `json:"phase"`
	SessionID string           `json:"session_id"`
	ToolCalls int              `json:"tool_calls"`
	Error     *agent.TurnError `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message must be non-empty"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result, err := s.runner.RunTurn(r.Context(), req.Message, req.SessionID, req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Text:      result.Text,
		Phase:     string(result.Phase),
		SessionID: req.SessionID,
		ToolCalls: result.ToolCalls,
		Error:     result.Err,
	})
}

// WSMessage is the WebSocket envelope, both directions
type WSMessage struct {
	Type      string `json:"type"` // chat, reply, error, ping, pong
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if atomic.AddInt32(&s.wsConns, 1) > maxWSConns {
		atomic.AddInt32(&s.wsConns, -1)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.wsConns, -1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// One session per connection unless the client sends its own
	sessionID := uuid.NewString()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Server] websocket read: %v", err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			if err := conn.WriteJSON(WSMessage{Type: "pong"}); err != nil {
				return
			}
		case "chat":
			if msg.SessionID != "" {
				sessionID = msg.SessionID
			}
			result, err := s.runner.RunTurn(r.Context(), msg.Message, sessionID, msg.UserID)
			if err != nil {
				if werr := conn.WriteJSON(WSMessage{Type: "error", Error: err.Error()}); werr != nil {
					return
				}
				continue
			}
			reply := WSMessage{
				Type:      "reply",
				Message:   result.Text,
				SessionID: sessionID,
				Phase:     string(result.Phase),
			}
			if result.Err != nil {
				reply.Error = result.Err.Error()
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		default:
			if err := conn.WriteJSON(WSMessage{Type: "error", Error: "unknown message type"}); err != nil {
				return
			}
		}
	}
}
