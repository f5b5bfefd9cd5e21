package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChatService is the conversation surface behind the chat endpoints.
type ChatService interface {
	Start(ctx context.Context, message, sessionID string) session.Reply
	Resume(ctx context.Context, message, sessionID string) session.Reply
}

// SessionReader loads persisted sessions for inspection.
type SessionReader interface {
	Load(ctx context.Context, sessionID string) (*capability.Checkpoint, bool, error)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	Completed bool   `json:"completed"`
	SessionID string `json:"session_id"`
}

type chatOp int

const (
	opStart chatOp = iota
	opResume
)

// Handler serves the support API.
type Handler struct {
	chat     ChatService
	sessions SessionReader
	locks    *sessionLocks
	logger   zerolog.Logger
	newID    func() string
}

type HandlerOption func(*Handler)

func WithLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithSessionIDGenerator replaces the uuid generator used when /api/chat
// arrives without a session id.
func WithSessionIDGenerator(f func() string) HandlerOption {
	return func(h *Handler) {
		if f != nil {
			h.newID = f
		}
	}
}

func NewHandler(chat ChatService, sessions SessionReader, opts ...HandlerOption) *Handler {
	h := &Handler{
		chat:     chat,
		sessions: sessions,
		locks:    newSessionLocks(),
		logger:   zerolog.Nop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// APIHandler mounts the endpoints on a fresh mux wrapped in CORS headers.
func (h *Handler) APIHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", h.chatHandler(opStart))
	mux.HandleFunc("/api/chat_resume", h.chatHandler(opResume))
	mux.HandleFunc("/api/health", h.health)
	mux.HandleFunc("/api/sessions/", h.sessionHandler)
	return withCORS(mux)
}

func (h *Handler) chatHandler(op chatOp) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.chat == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body chatRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		sessionID := strings.TrimSpace(body.SessionID)
		if sessionID == "" && op == opStart {
			sessionID = h.newID()
		}

		unlock := h.locks.Lock(sessionID)
		var r session.Reply
		if op == opStart {
			r = h.chat.Start(req.Context(), body.Message, sessionID)
		} else {
			r = h.chat.Resume(req.Context(), body.Message, sessionID)
		}
		unlock()

		h.logger.Debug().
			Str("session_id", sessionID).
			Bool("resume", op == opResume).
			Bool("completed", r.Completed).
			Str("error_kind", errorKind(r.Err)).
			Msg("chat request served")
		writeJSON(w, h.logger, http.StatusOK, chatResponse{Reply: r.Reply, Completed: r.Completed, SessionID: sessionID})
	}
}

func (h *Handler) health(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) sessionHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.sessions == nil {
		http.Error(w, "session store not enabled", http.StatusNotFound)
		return
	}
	id := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/sessions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	cp, ok, err := h.sessions.Load(req.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("session load failed")
		http.Error(w, "session load failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, cp)
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("response write failed")
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	return string(capability.KindOf(err))
}
