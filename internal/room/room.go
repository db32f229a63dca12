package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	ConnID      string
	Participant string
	Outbox      chan engine.Delta // where this connection wants to receive deltas
}

func (Join) isRoomMsg() {}

type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

type Publish struct{ Delta engine.Delta }

func (Publish) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// Presence is the room's side channel to the battle: a participant's first
// connection came up, or their last one went away.
type Presence struct {
	SessionID   string
	Participant string
	Online      bool
}

type View struct {
	SessionID   string
	NumClients  int
	Online      map[string]int
	LastVersion int64
}

type client struct {
	participant string
	outbox      chan engine.Delta
}

// Room fans one battle's deltas out to its live connections. All state is
// owned by the loop goroutine.
type Room struct {
	id          string
	inbox       chan Msg
	clients     map[string]client
	online      map[string]int
	lastVersion int64
	presence    chan<- Presence
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewRoom(parent context.Context, id string, presence chan<- Presence, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:       id,
		inbox:    make(chan Msg, 64),
		clients:  make(map[string]client),
		online:   make(map[string]int),
		presence: presence,
		log:      log.With(zap.String("session", id)),
		ctx:      ctx,
		cancel:   cancel,
	}

	go r.loop()
	return r
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ConnID] = client{participant: msg.Participant, outbox: msg.Outbox}
				r.online[msg.Participant]++
				if r.online[msg.Participant] == 1 {
					r.signal(msg.Participant, true)
				}

			case Leave:
				r.remove(msg.ConnID, false)

			case Publish:
				if msg.Delta.Version > r.lastVersion {
					r.lastVersion = msg.Delta.Version
				}
				r.broadcast(msg.Delta)
				if t := msg.Delta.Event.Type; t == engine.EvtCompleted || t == engine.EvtAbandoned {
					r.shutdown()
					return
				}

			case GetState:
				msg.Reply <- View{
					SessionID:   r.id,
					NumClients:  len(r.clients),
					Online:      copyCounts(r.online),
					LastVersion: r.lastVersion,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) remove(connID string, closeOutbox bool) {
	c, ok := r.clients[connID]
	if !ok {
		return
	}
	delete(r.clients, connID)
	if closeOutbox {
		close(c.outbox)
	}
	r.online[c.participant]--
	if r.online[c.participant] <= 0 {
		delete(r.online, c.participant)
		r.signal(c.participant, false)
	}
}

func (r *Room) signal(participant string, online bool) {
	if r.presence == nil {
		return
	}
	select {
	case r.presence <- Presence{SessionID: r.id, Participant: participant, Online: online}:
	case <-r.ctx.Done():
	}
}

func (r *Room) shutdown() {
	r.cancel()
	for id, c := range r.clients {
		close(c.outbox) // no more deltas for this connection
		delete(r.clients, id)
	}
	// Joins that raced the shutdown still hold an open outbox.
	for {
		select {
		case m := <-r.inbox:
			if j, ok := m.(Join); ok {
				close(j.Outbox)
			}
		default:
			return
		}
	}
}

func (r *Room) broadcast(d engine.Delta) {
	for id, c := range r.clients {
		select {
		case c.outbox <- d:
			//ok
		default:
			// Connection is slow/full - drop it.
			r.log.Warn("dropping slow connection", zap.String("conn", id), zap.String("participant", c.participant))
			r.remove(id, true)
		}
	}
}

// Send queues m for the room. It returns false once the room has shut down.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// Done is closed when the room stops.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
