// Package hub keeps one room per live battle and routes persisted deltas to
// it. It also carries the rooms' presence signals back to the battle.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	SessionID string
	Reply     chan *room.Room
}

type EnsureRoom struct {
	SessionID string
	Reply     chan *room.Room
}

// RemoveRoom forgets Room if it is still the one registered for SessionID.
type RemoveRoom struct {
	SessionID string
	Room      *room.Room
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// PresenceFunc applies a presence change to the battle it belongs to.
type PresenceFunc func(ctx context.Context, sessionID, participant string, online bool) error

type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	presence chan room.Presence
	onPres   PresenceFunc
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, onPresence PresenceFunc, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		presence: make(chan room.Presence, 256),
		onPres:   onPresence,
		log:      log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	go h.pumpPresence()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			clear(h.rooms)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				rm := h.rooms[msg.SessionID]
				if rm != nil && stopped(rm) {
					delete(h.rooms, msg.SessionID)
					rm = nil
				}
				msg.Reply <- rm // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.SessionID]; rm != nil && !stopped(rm) {
					msg.Reply <- rm
					break
				}
				rm := room.NewRoom(h.ctx, msg.SessionID, h.presence, h.log)
				h.rooms[msg.SessionID] = rm
				msg.Reply <- rm

			case RemoveRoom:
				if h.rooms[msg.SessionID] == msg.Room {
					delete(h.rooms, msg.SessionID)
				}

			case ShutdownHub:
				// Rooms share h.ctx, so cancelling stops them too.
				h.cancel()
				clear(h.rooms)
				return
			}
		}
	}
}

// Room returns the live room for a battle, creating it when ensure is set.
// It returns nil when the hub has stopped or no room exists.
func (h *Hub) Room(sessionID string, ensure bool) *room.Room {
	reply := make(chan *room.Room, 1)
	var msg HubMsg = GetRoom{SessionID: sessionID, Reply: reply}
	if ensure {
		msg = EnsureRoom{SessionID: sessionID, Reply: reply}
	}
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case rm := <-reply:
		return rm
	case <-h.ctx.Done():
		return nil
	}
}

// Publish delivers d to the battle's room, if anyone is watching. A
// terminal delta retires the room.
func (h *Hub) Publish(d engine.Delta) {
	rm := h.Room(d.SessionID, false)
	if rm == nil {
		return
	}
	rm.Send(room.Publish{Delta: d})

	if d.Event.Type == engine.EvtCompleted || d.Event.Type == engine.EvtAbandoned {
		select {
		case h.inbox <- RemoveRoom{SessionID: d.SessionID, Room: rm}:
		case <-h.ctx.Done():
		}
	}
}

func (h *Hub) pumpPresence() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case p := <-h.presence:
			if h.onPres == nil {
				continue
			}
			if err := h.onPres(h.ctx, p.SessionID, p.Participant, p.Online); err != nil {
				h.log.Warn("presence update failed",
					zap.String("session", p.SessionID),
					zap.String("participant", p.Participant),
					zap.Bool("online", p.Online),
					zap.Error(err))
			}
		}
	}
}

// Shutdown stops every room and the hub itself.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}

func stopped(rm *room.Room) bool {
	select {
	case <-rm.Done():
		return true
	default:
		return false
	}
}
