package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/rolesim/internal/api"
	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/identity"
	"github.com/ashureev/rolesim/internal/learning"
	"github.com/ashureev/rolesim/internal/session"
	"github.com/ashureev/rolesim/internal/store"
)

const testTrainee = "anon_0123456789abcdef0123456789abcdef"

type firstRandom struct{}

func (firstRandom) IntN(int) int { return 0 }

type countingTracker struct{ open atomic.Int32 }

func (c *countingTracker) LiveConnected()    { c.open.Add(1) }
func (c *countingTracker) LiveDisconnected() { c.open.Add(-1) }

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type liveServer struct {
	url      string
	svc      *session.Service
	registry *Registry
	tracker  *countingTracker
}

func newLiveServer(t *testing.T, limiter Allower, allowedOrigin string) *liveServer {
	t.Helper()
	repo, err := store.NewSQLite(t.TempDir() + "/live.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	catalog, err := dialogue.DefaultCatalog()
	require.NoError(t, err)
	engine, err := dialogue.NewEngine(dialogue.EngineConfig{
		Catalog:  catalog,
		Learner:  learning.NewStore(learning.NewMemoryBackend()),
		Selector: dialogue.SelectorConfig{Random: firstRandom{}},
	})
	require.NoError(t, err)

	registry := NewRegistry()
	svc, err := session.NewService(session.Config{
		Repo:    repo,
		Engine:  engine,
		OnClose: registry.CloseSession,
	})
	require.NoError(t, err)

	tracker := &countingTracker{}
	h := NewHandler(svc, registry, tracker, limiter, allowedOrigin, false)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithTrainee(req.Context(), testTrainee)))
		})
	})
	r.Get("/ws/sessions/{id}", h.ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &liveServer{url: srv.URL, svc: svc, registry: registry, tracker: tracker}
}

func (s *liveServer) dial(t *testing.T, ctx context.Context, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws/sessions/" + sessionID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func recv(t *testing.T, ctx context.Context, conn *websocket.Conn) ServerFrame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var f ServerFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestLiveConversation(t *testing.T) {
	s := newLiveServer(t, nil, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := s.svc.Start(ctx, testTrainee)
	require.NoError(t, err)
	conn := s.dial(t, ctx, sess.ID)

	hello := recv(t, ctx, conn)
	require.Equal(t, FrameSession, hello.Type)
	require.NotNil(t, hello.Session)
	assert.Equal(t, sess.ID, hello.Session.ID)
	assert.Equal(t, domain.Greeting, hello.Session.Phase)

	send(t, ctx, conn, map[string]string{"type": FramePing})
	assert.Equal(t, FramePong, recv(t, ctx, conn).Type)

	send(t, ctx, conn, map[string]string{"type": FrameTurn, "message": "Здравствуйте, чем могу помочь?"})
	reply := recv(t, ctx, conn)
	require.Equal(t, FrameReply, reply.Type, "error: %s", reply.Error)
	require.NotNil(t, reply.Reply)
	assert.NotEmpty(t, reply.Reply.CounterpartReply)
	assert.Equal(t, domain.Greeting, reply.Reply.Phase)
	assert.Equal(t, 0, reply.Reply.TurnIndex)

	send(t, ctx, conn, map[string]string{"type": FrameSkip, "phase": "objections"})
	skipped := recv(t, ctx, conn)
	require.Equal(t, FrameSession, skipped.Type, "error: %s", skipped.Error)
	assert.Equal(t, domain.Objections, skipped.Session.Phase)

	send(t, ctx, conn, map[string]string{"type": FrameSkip, "phase": "greeting"})
	regress := recv(t, ctx, conn)
	require.Equal(t, FrameSession, regress.Type)
	assert.Equal(t, domain.Objections, regress.Session.Phase, "skip never moves backwards")

	send(t, ctx, conn, map[string]string{"type": FrameTurn, "message": "   "})
	blank := recv(t, ctx, conn)
	assert.Equal(t, FrameError, blank.Type)
	assert.False(t, blank.Retryable)

	send(t, ctx, conn, map[string]string{"type": "dance"})
	unknown := recv(t, ctx, conn)
	assert.Equal(t, FrameError, unknown.Type)
	assert.Contains(t, unknown.Error, "dance")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, "malformed frame", recv(t, ctx, conn).Error)

	send(t, ctx, conn, map[string]string{"type": FrameClose})
	closed := recv(t, ctx, conn)
	require.Equal(t, FrameClosed, closed.Type, "error: %s", closed.Error)
	assert.True(t, closed.Session.Closed)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	assert.Eventually(t, func() bool {
		return s.registry.Count() == 0 && s.tracker.open.Load() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLiveUnknownSessionIsRejected(t *testing.T) {
	s := newLiveServer(t, nil, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws/sessions/missing"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLiveOriginRejected(t *testing.T) {
	s := newLiveServer(t, nil, "https://trainer.example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := s.svc.Start(ctx, testTrainee)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws/sessions/" + sess.ID
	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLiveTurnRateLimited(t *testing.T) {
	s := newLiveServer(t, denyAll{}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := s.svc.Start(ctx, testTrainee)
	require.NoError(t, err)
	conn := s.dial(t, ctx, sess.ID)
	recv(t, ctx, conn)

	send(t, ctx, conn, map[string]string{"type": FrameTurn, "message": "Здравствуйте!"})
	f := recv(t, ctx, conn)
	assert.Equal(t, FrameError, f.Type)
	assert.True(t, f.Retryable)
}

func TestClosingFromAPIDropsLiveChannel(t *testing.T) {
	s := newLiveServer(t, nil, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := s.svc.Start(ctx, testTrainee)
	require.NoError(t, err)
	conn := s.dial(t, ctx, sess.ID)
	recv(t, ctx, conn)

	_, err = s.svc.Close(ctx, testTrainee, sess.ID)
	require.NoError(t, err)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

type closeFailingSessions struct {
	api.SessionService
	err error
}

func (c closeFailingSessions) Close(context.Context, string, string) (*domain.Session, error) {
	return nil, c.err
}

func TestFailedCloseKeepsChannelRegistered(t *testing.T) {
	registry := NewRegistry()
	h := NewHandler(closeFailingSessions{err: fmt.Errorf("%w: close session: disk I/O error", session.ErrStorage)}, registry, nil, nil, "", true)
	conn := &fakeConn{}
	registry.Register(testTrainee, "sess-1", conn)

	out, done := h.dispatch(context.Background(), conn, testTrainee, "sess-1", ClientFrame{Type: FrameClose})
	assert.False(t, done)
	assert.Equal(t, FrameError, out.Type)
	assert.True(t, out.Retryable)
	require.Same(t, conn, registry.Get(testTrainee, "sess-1"))

	registry.CloseSession(testTrainee, "sess-1")
	assert.True(t, conn.closed, "a later close must still reach the channel")
}
