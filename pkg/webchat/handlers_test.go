package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op, message, sessionID string
}

type fakeChat struct {
	mu    sync.Mutex
	calls []call
	reply session.Reply
}

func (f *fakeChat) record(op, message, sessionID string) session.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op, message, sessionID})
	r := f.reply
	r.SessionID = sessionID
	return r
}

func (f *fakeChat) Start(_ context.Context, message, sessionID string) session.Reply {
	return f.record("start", message, sessionID)
}

func (f *fakeChat) Resume(_ context.Context, message, sessionID string) session.Reply {
	return f.record("resume", message, sessionID)
}

type fakeSessions map[string]*capability.Checkpoint

func (f fakeSessions) Load(_ context.Context, id string) (*capability.Checkpoint, bool, error) {
	if id == "broken" {
		return nil, false, errors.New("db closed")
	}
	cp, ok := f[id]
	return cp, ok, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) chatResponse {
	t.Helper()
	var out chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChat_StartAssignsSessionID(t *testing.T) {
	chat := &fakeChat{reply: session.Reply{Reply: "Which bank?"}}
	h := NewHandler(chat, nil, WithSessionIDGenerator(func() string { return "gen-1" })).APIHandler()

	rec := do(t, h, http.MethodPost, "/api/chat", `{"message":"withdrawal stuck"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, chatResponse{Reply: "Which bank?", SessionID: "gen-1"}, decode(t, rec))
	assert.Equal(t, []call{{"start", "withdrawal stuck", "gen-1"}}, chat.calls)
}

func TestChat_ResumeKeepsSessionID(t *testing.T) {
	chat := &fakeChat{reply: session.Reply{Reply: "Done.", Completed: true}}
	h := NewHandler(chat, nil).APIHandler()

	rec := do(t, h, http.MethodPost, "/api/chat_resume", `{"message":"HDFC","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chatResponse{Reply: "Done.", Completed: true, SessionID: "s1"}, decode(t, rec))
	assert.Equal(t, []call{{"resume", "HDFC", "s1"}}, chat.calls)
}

func TestChat_ErrorRepliesAreStill200(t *testing.T) {
	chat := &fakeChat{reply: session.Reply{
		Reply: session.ErrorReplyPrefix + "no pending session",
		Err:   capability.ErrNoPendingSession,
	}}
	h := NewHandler(chat, nil).APIHandler()

	rec := do(t, h, http.MethodPost, "/api/chat_resume", `{"message":"hi","session_id":"ghost"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode(t, rec).Completed)
	assert.True(t, strings.HasPrefix(decode(t, rec).Reply, session.ErrorReplyPrefix))
}

func TestChat_RejectsWrongMethodAndBadJSON(t *testing.T) {
	chat := &fakeChat{}
	h := NewHandler(chat, nil).APIHandler()

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/chat", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPut, "/api/chat_resume", "{}").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/chat", "{nope").Code)
	assert.Empty(t, chat.calls)
}

func TestChat_Preflight(t *testing.T) {
	h := NewHandler(&fakeChat{}, nil).APIHandler()
	rec := do(t, h, http.MethodOptions, "/api/chat", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealth(t *testing.T) {
	h := NewHandler(&fakeChat{}, nil).APIHandler()
	rec := do(t, h, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestSessions(t *testing.T) {
	store := fakeSessions{"s1": {SessionID: "s1", Status: capability.StatusSuspended, Position: "receive_human_reply"}}
	h := NewHandler(&fakeChat{}, store).APIHandler()

	rec := do(t, h, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cp capability.Checkpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cp))
	assert.Equal(t, capability.StatusSuspended, cp.Status)
	assert.Equal(t, "receive_human_reply", cp.Position)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/sessions/unknown", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/sessions/broken", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/sessions/", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/api/sessions/s1", "").Code)

	noStore := NewHandler(&fakeChat{}, nil).APIHandler()
	assert.Equal(t, http.StatusNotFound, do(t, noStore, http.MethodGet, "/api/sessions/s1", "").Code)
}

// slowChat tracks how many calls run at once per session.
type slowChat struct {
	active  sync.Map
	overlap atomic.Bool
}

func (s *slowChat) run(sessionID string) session.Reply {
	n, _ := s.active.LoadOrStore(sessionID, new(atomic.Int32))
	counter := n.(*atomic.Int32)
	if counter.Add(1) > 1 {
		s.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	counter.Add(-1)
	return session.Reply{Reply: "ok"}
}

func (s *slowChat) Start(_ context.Context, _, sessionID string) session.Reply {
	return s.run(sessionID)
}

func (s *slowChat) Resume(_ context.Context, _, sessionID string) session.Reply {
	return s.run(sessionID)
}

func TestChat_SerialisesPerSession(t *testing.T) {
	chat := &slowChat{}
	handler := NewHandler(chat, nil)
	h := handler.APIHandler()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "/api/chat"
			if i%2 == 1 {
				path = "/api/chat_resume"
			}
			rec := do(t, h, http.MethodPost, path, `{"message":"m","session_id":"same"}`)
			assert.Equal(t, http.StatusOK, rec.Code)
		}(i)
	}
	wg.Wait()
	assert.False(t, chat.overlap.Load())
	assert.Equal(t, 0, handler.locks.size())
}

func TestSessionLocks_IndependentKeys(t *testing.T) {
	l := newSessionLocks()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	assert.Equal(t, 1, l.size())
	unlockA()
	assert.Equal(t, 0, l.size())
}

type closeRecorder struct{ closed atomic.Bool }

func (c *closeRecorder) Close() error {
	c.closed.Store(true)
	return nil
}

func TestServer_StopsOnContextCancel(t *testing.T) {
	c := &closeRecorder{}
	srv, err := NewServer("127.0.0.1:0", NewHandler(&fakeChat{}, nil).APIHandler(), nil, c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, c.closed.Load())
}

func TestNewServer_RequiresHandler(t *testing.T) {
	_, err := NewServer(":0", nil, nil)
	require.Error(t, err)
}
