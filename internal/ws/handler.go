package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/ratelimit"
	"github.com/DoyleJ11/skate-battle-backend/internal/room"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
	"github.com/DoyleJ11/skate-battle-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 30 * time.Second
)

// Rooms hands out the live room for a battle.
type Rooms interface {
	Room(sessionID string, ensure bool) *room.Room
}

type Options struct {
	Limits         ratelimit.Config
	OriginPatterns []string
}

// Handler serves /ws?session=<id>&participant=<id>. The connection joins
// the battle's room before the snapshot is read, so no delta between the
// two is lost; deltas at or below the snapshot version are skipped.
func Handler(rooms Rooms, battles Battles, opts Options, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		participant := r.URL.Query().Get("participant")
		if sessionID == "" || participant == "" {
			http.Error(w, "missing session or participant", http.StatusBadRequest)
			return
		}

		s, err := battles.Get(r.Context(), sessionID)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "battle not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to load battle", http.StatusInternalServerError)
			return
		}
		if !s.IsParticipant(participant) {
			http.Error(w, "not a participant", http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// A finished battle has nothing left to broadcast. Its room would
		// never see the terminal delta that retires it.
		if s.Status.Terminal() {
			if err := writeJSON(r.Context(), conn, types.ServerMessage{Type: types.MsgSnapshot, Version: s.Version, Session: &s}); err != nil {
				return
			}
			conn.Close(websocket.StatusNormalClosure, "battle over")
			return
		}

		rm := rooms.Room(sessionID, true)
		if rm == nil {
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}

		out := make(chan engine.Delta, 16)
		connID := uuid.NewString()
		if !rm.Send(room.Join{ConnID: connID, Participant: participant, Outbox: out}) {
			conn.Close(websocket.StatusNormalClosure, "battle over")
			return
		}
		defer rm.Send(room.Leave{ConnID: connID})

		clog := log.With(zap.String("session", sessionID), zap.String("participant", participant), zap.String("conn", connID))

		snap, err := battles.Get(r.Context(), sessionID)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "failed to load battle")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		replies := make(chan types.ServerMessage, 8)
		writerDone := make(chan struct{})

		// Writer goroutine: the only place that writes to conn.
		go func() {
			defer close(writerDone)
			defer cancel()

			if err := writeJSON(ctx, conn, types.ServerMessage{Type: types.MsgSnapshot, Version: snap.Version, Session: &snap}); err != nil {
				return
			}

			ping := time.NewTicker(pingInterval)
			defer ping.Stop()

			for {
				select {
				case <-ctx.Done():
					return

				case d, ok := <-out:
					if !ok {
						// Room retired this connection: battle over or we fell behind.
						conn.Close(websocket.StatusNormalClosure, "room closed")
						return
					}
					if d.Version <= snap.Version {
						continue
					}
					ev := d.Event
					if err := writeJSON(ctx, conn, types.ServerMessage{Type: types.MsgDelta, Version: d.Version, Event: &ev}); err != nil {
						return
					}

				case msg := <-replies:
					if err := writeJSON(ctx, conn, msg); err != nil {
						return
					}

				case <-ping.C:
					pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
					err := conn.Ping(pctx)
					pcancel()
					if err != nil {
						clog.Debug("ping failed", zap.Error(err))
						return
					}
				}
			}
		}()

		limiter := ratelimit.New(opts.Limits, nil)
		reply := func(m types.ServerMessage) bool {
			select {
			case replies <- m:
				return true
			case <-writerDone:
				return false
			}
		}

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				if !reply(types.ServerMessage{Type: types.MsgError, Code: "bad_request", Error: "bad json"}) {
					return
				}
				continue
			}

			version, err := Dispatch(ctx, battles, limiter, sessionID, participant, cm)
			msg := types.ServerMessage{Type: types.MsgAck, Version: version}
			if err != nil {
				code := ErrorCode(err)
				text := err.Error()
				if code == "internal" {
					clog.Error("command failed", zap.String("type", cm.Type), zap.Error(err))
					text = "internal error"
				}
				msg = types.ServerMessage{Type: types.MsgError, Code: code, Error: text}
			}
			if !reply(msg) {
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
