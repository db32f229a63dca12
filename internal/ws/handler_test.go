package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/skate-battle-backend/internal/battle"
	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/hub"
	"github.com/DoyleJ11/skate-battle-backend/internal/notify"
	"github.com/DoyleJ11/skate-battle-backend/internal/ratelimit"
	"github.com/DoyleJ11/skate-battle-backend/internal/store/memory"
	"github.com/DoyleJ11/skate-battle-backend/internal/types"
)

type harness struct {
	srv *httptest.Server
	svc *battle.Service
	hub *hub.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	var svc *battle.Service
	h := hub.NewHub(context.Background(), func(ctx context.Context, id, p string, online bool) error {
		return svc.SetPresence(ctx, id, p, online)
	}, log)
	svc = battle.NewService(memory.NewSessions(), h, notify.NewLogNotifier(log), log, battle.Options{Rules: engine.DefaultRules()})

	srv := httptest.NewServer(Handler(h, svc, Options{Limits: ratelimit.DefaultConfig()}, log))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return &harness{srv: srv, svc: svc, hub: h}
}

func (h *harness) dial(t *testing.T, sessionID, participant string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "?session=" + sessionID + "&participant=" + participant
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, m types.ClientMessage) {
	t.Helper()
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func recv(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// recvUntil reads until a message matches, failing if none does in time.
func recvUntil(t *testing.T, conn *websocket.Conn, match func(types.ServerMessage) bool) types.ServerMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		if m := recv(t, conn); match(m) {
			return m
		}
	}
	t.Fatalf("no matching message")
	return types.ServerMessage{}
}

// waitConnected blocks until the room's presence signals reached the battle.
func (h *harness) waitConnected(t *testing.T, sessionID string, participants ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := h.svc.Get(context.Background(), sessionID)
		if err != nil {
			return false
		}
		for _, p := range participants {
			if !s.Connected[p] {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}

func isDelta(typ engine.EventType) func(types.ServerMessage) bool {
	return func(m types.ServerMessage) bool {
		return m.Type == types.MsgDelta && m.Event != nil && m.Event.Type == typ
	}
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	b, err := h.svc.Create(context.Background(), "A", "B", "")
	require.NoError(t, err)

	for path, want := range map[string]int{
		"?session=" + b.ID:                    http.StatusBadRequest,
		"?session=nope&participant=A":         http.StatusNotFound,
		"?session=" + b.ID + "&participant=Z": http.StatusForbidden,
	} {
		resp, err := http.Get(h.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestHandler_LiveRound(t *testing.T) {
	h := newHarness(t)
	b, err := h.svc.Create(context.Background(), "A", "B", "")
	require.NoError(t, err)

	a := h.dial(t, b.ID, "A")
	snap := recv(t, a)
	require.Equal(t, types.MsgSnapshot, snap.Type)
	require.NotNil(t, snap.Session)
	assert.Equal(t, engine.StatusWaiting, snap.Session.Status)

	bConn := h.dial(t, b.ID, "B")
	require.Equal(t, types.MsgSnapshot, recv(t, bConn).Type)
	h.waitConnected(t, b.ID, "A", "B")

	send(t, a, types.ClientMessage{Type: types.MsgSubmitSet, Clip: &types.Clip{URL: "kickflip.mp4", DurationSeconds: 3}})
	ack := recvUntil(t, a, func(m types.ServerMessage) bool { return m.Type == types.MsgAck })
	assert.Positive(t, ack.Version)

	d := recvUntil(t, bConn, isDelta(engine.EvtMoveSubmitted))
	assert.Equal(t, "A", d.Event.Participant)

	// Matching your own set is refused with a typed error.
	send(t, a, types.ClientMessage{Type: types.MsgSubmitMatch, Clip: &types.Clip{URL: "again.mp4"}})
	e := recvUntil(t, a, func(m types.ServerMessage) bool { return m.Type == types.MsgError })
	assert.Equal(t, "illegal_move", e.Code)

	send(t, bConn, types.ClientMessage{Type: types.MsgSubmitMatch, Clip: &types.Clip{URL: "attempt.mp4"}})
	recvUntil(t, a, func(m types.ServerMessage) bool {
		return isDelta(engine.EvtMoveSubmitted)(m) && m.Event.Participant == "B"
	})

	send(t, a, types.ClientMessage{Type: types.MsgCastVote, Vote: "bailed"})
	send(t, bConn, types.ClientMessage{Type: types.MsgCastVote, Vote: "landed"})

	resolved := recvUntil(t, a, isDelta(engine.EvtRoundResolved))
	assert.Equal(t, []engine.Letter{"S"}, resolved.Event.Letters)
}

func TestHandler_StaleBaseVersion(t *testing.T) {
	h := newHarness(t)
	b, err := h.svc.Create(context.Background(), "A", "B", "")
	require.NoError(t, err)

	a := h.dial(t, b.ID, "A")
	snap := recv(t, a)

	send(t, a, types.ClientMessage{Type: types.MsgConcede, BaseVersion: snap.Version + 5})
	e := recvUntil(t, a, func(m types.ServerMessage) bool { return m.Type == types.MsgError })
	assert.Equal(t, "stale_session", e.Code)
}

func TestHandler_ConcedeEndsTheRoom(t *testing.T) {
	h := newHarness(t)
	b, err := h.svc.Create(context.Background(), "A", "B", "")
	require.NoError(t, err)

	a := h.dial(t, b.ID, "A")
	recv(t, a)
	bConn := h.dial(t, b.ID, "B")
	recv(t, bConn)

	send(t, bConn, types.ClientMessage{Type: types.MsgConcede})
	done := recvUntil(t, a, isDelta(engine.EvtCompleted))
	assert.Equal(t, "A", done.Event.WinnerID)

	// The room retires after the terminal delta and the server closes the socket.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		if _, _, err := a.Read(ctx); err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			return
		}
	}
}

func TestHandler_FinishedBattleSendsSnapshotOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	b, err := h.svc.Create(ctx, "A", "B", "")
	require.NoError(t, err)
	_, err = h.svc.Concede(ctx, b.ID, "B", 0)
	require.NoError(t, err)

	a := h.dial(t, b.ID, "A")
	snap := recv(t, a)
	require.Equal(t, types.MsgSnapshot, snap.Type)
	require.NotNil(t, snap.Session)
	assert.Equal(t, engine.StatusCompleted, snap.Session.Status)
	assert.Equal(t, "A", snap.Session.WinnerID)

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, _, err = a.Read(rctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	assert.Nil(t, h.hub.Room(b.ID, false), "no room is kept for a finished battle")
	after, err := h.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Connected, "presence is untouched")
}
