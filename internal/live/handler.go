package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/rolesim/internal/api"
	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/identity"
)

const writeTimeout = 5 * time.Second

// Frame types.
const (
	FrameTurn    = "turn"
	FrameSkip    = "skip"
	FrameClose   = "close"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameReply   = "reply"
	FrameSession = "session"
	FrameClosed  = "closed"
	FrameError   = "error"
)

// ClientFrame is a message sent by the browser.
type ClientFrame struct {
	Type    string        `json:"type"`
	Message string        `json:"message,omitempty"`
	Phase   *domain.Phase `json:"phase,omitempty"`
}

// ServerFrame is a message sent to the browser.
type ServerFrame struct {
	Type      string                 `json:"type"`
	Reply     *domain.ScoredResponse `json:"reply,omitempty"`
	Session   *domain.Session        `json:"session,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
}

// ConnTracker observes channel open and close, e.g. for metrics.
type ConnTracker interface {
	LiveConnected()
	LiveDisconnected()
}

// Allower rate limits turn frames per key.
type Allower interface {
	Allow(key string) bool
}

// Handler upgrades GET /ws/sessions/{id} and runs the conversation loop.
type Handler struct {
	sessions      api.SessionService
	registry      *Registry
	tracker       ConnTracker
	limiter       Allower
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a Handler. tracker and limiter may be nil.
func NewHandler(sessions api.SessionService, registry *Registry, tracker ConnTracker, limiter Allower, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		sessions:      sessions,
		registry:      registry,
		tracker:       tracker,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traineeID := identity.TraineeIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "id")
	slog.Info("WebSocket connection request", "trainee_id", traineeID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sess, err := h.sessions.Get(r.Context(), traineeID, sessionID)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "trainee_id", traineeID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "trainee_id", traineeID)
		}
	}()

	h.registry.Register(traineeID, sessionID, ws)
	defer h.registry.Unregister(traineeID, sessionID, ws)
	if h.tracker != nil {
		h.tracker.LiveConnected()
		defer h.tracker.LiveDisconnected()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := writeFrame(ctx, ws, ServerFrame{Type: FrameSession, Session: sess}); err != nil {
		slog.Debug("Failed to send session frame", "error", err)
		return
	}
	h.readLoop(ctx, ws, traineeID, sessionID)
	slog.Info("Live channel ended", "trainee_id", traineeID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, traineeID, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "trainee_id", traineeID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "trainee_id", traineeID)
			}
			return
		}

		var msg ClientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := writeFrame(ctx, ws, ServerFrame{Type: FrameError, Error: "malformed frame"}); err != nil {
				return
			}
			continue
		}

		out, done := h.dispatch(ctx, ws, traineeID, sessionID, msg)
		if err := writeFrame(ctx, ws, out); err != nil {
			slog.Debug("Failed to write frame", "error", err, "trainee_id", traineeID)
			return
		}
		if done {
			return
		}
	}
}

// dispatch handles one client frame. done reports that the loop should end.
func (h *Handler) dispatch(ctx context.Context, conn Conn, traineeID, sessionID string, msg ClientFrame) (out ServerFrame, done bool) {
	switch msg.Type {
	case FrameTurn:
		if h.limiter != nil && !h.limiter.Allow(traineeID) {
			return ServerFrame{Type: FrameError, Error: "rate limit exceeded", Retryable: true}, false
		}
		resp, err := h.sessions.Submit(ctx, traineeID, sessionID, msg.Message)
		if err != nil {
			return errorFrame(err), false
		}
		return ServerFrame{Type: FrameReply, Reply: &resp}, false
	case FrameSkip:
		if msg.Phase == nil {
			return ServerFrame{Type: FrameError, Error: "phase is required"}, false
		}
		sess, err := h.sessions.Skip(ctx, traineeID, sessionID, *msg.Phase)
		if err != nil {
			return errorFrame(err), false
		}
		return ServerFrame{Type: FrameSession, Session: sess}, false
	case FrameClose:
		// Leave the registry first so the close hook does not drop this
		// connection before the closed frame is written.
		h.registry.Unregister(traineeID, sessionID, conn)
		sess, err := h.sessions.Close(ctx, traineeID, sessionID)
		if err != nil {
			// The channel stays open, so later closes must still reach it.
			h.registry.Restore(traineeID, sessionID, conn)
			return errorFrame(err), false
		}
		return ServerFrame{Type: FrameClosed, Session: sess}, true
	case FramePing:
		return ServerFrame{Type: FramePong}, false
	default:
		return ServerFrame{Type: FrameError, Error: "unknown frame type " + msg.Type}, false
	}
}

func errorFrame(err error) ServerFrame {
	status, retryable := api.StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("Live turn failed", "status", status, "error", err)
		msg = http.StatusText(status)
	}
	return ServerFrame{Type: FrameError, Error: msg, Retryable: retryable}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f ServerFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
