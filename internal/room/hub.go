// Package room runs the realtime side of the service: one Runtime per
// room coordinating WebSocket clients, chat and hand mutations.
package room

import (
	"context"
	"errors"
	rand "math/rand/v2"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/greenfelt/cardroom/internal/deck"
	"github.com/greenfelt/cardroom/internal/store"
)

// Hub owns the set of live room runtimes. Runtimes are created lazily
// on first use and dropped once their last connection leaves.
type Hub struct {
	store    store.Store
	logger   *log.Logger
	clock    quartz.Clock
	rng      *rand.Rand
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*Runtime
}

// NewHub creates a hub. allowedOrigin restricts WebSocket upgrades;
// empty allows any origin. rng may be nil, in which case each hub gets
// a crypto-seeded generator.
func NewHub(st store.Store, logger *log.Logger, clock quartz.Clock, allowedOrigin string, rng *rand.Rand) *Hub {
	if rng == nil {
		rng = deck.NewRand()
	}
	return &Hub{
		store:  st,
		logger: logger.WithPrefix("hub"),
		clock:  clock,
		rng:    rng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		rooms: make(map[string]*Runtime),
	}
}

// room returns the runtime for roomID, creating it if needed
func (h *Hub) room(roomID string) *Runtime {
	h.mu.Lock()
	defer h.mu.Unlock()
	rt, ok := h.rooms[roomID]
	if !ok {
		rt = newRuntime(roomID, h, h.store, h.logger, h.clock, h.rng)
		h.rooms[roomID] = rt
	}
	return rt
}

// existing returns the runtime for roomID without creating one
func (h *Hub) existing(roomID string) (*Runtime, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rt, ok := h.rooms[roomID]
	return rt, ok
}

func (h *Hub) remove(roomID string) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

// HandleWS upgrades an incoming WebSocket request and attaches it to
// its room. The connection is accepted first so policy failures can be
// reported with a proper close code.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", "error", err)
		return
	}

	q := r.URL.Query()
	roomID, userID, username := q.Get("roomId"), q.Get("userId"), q.Get("username")
	if roomID == "" || userID == "" || username == "" {
		h.policyClose(conn, "missing roomId, userId or username")
		return
	}

	rt := h.room(roomID)
	c := newClient(conn, userID, username, rt, h.logger)
	if err := rt.connect(r.Context(), c); err != nil {
		h.logger.Warn("connection rejected", "room", roomID, "user", userID, "error", err)
		if errors.Is(err, store.ErrNotFound) {
			h.policyClose(conn, "not a member of this room")
		} else {
			// A store failure is not a rejection; 1011 tells the client
			// it may retry.
			h.closeConn(conn, websocket.CloseInternalServerErr, "room temporarily unavailable")
		}
		rt.mu.Lock()
		empty := len(rt.conns) == 0
		rt.mu.Unlock()
		if empty {
			h.remove(roomID)
		}
	}
}

func (h *Hub) policyClose(conn *websocket.Conn, reason string) {
	h.closeConn(conn, websocket.ClosePolicyViolation, reason)
}

func (h *Hub) closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		h.clock.Now().Add(writeWait))
	_ = conn.Close()
}

// StartHand starts a hand in roomID on behalf of the command surface
func (h *Hub) StartHand(ctx context.Context, roomID string) error {
	return h.room(roomID).startHand(ctx)
}

// RoomStateChanged pushes a fresh member table to a room's connections
// after the command surface mutates membership
func (h *Hub) RoomStateChanged(ctx context.Context, roomID string) {
	if rt, ok := h.existing(roomID); ok {
		rt.broadcastRoomState(ctx)
	}
}

// RoomClosed notifies and disconnects every client of a closed room
func (h *Hub) RoomClosed(roomID string) {
	if rt, ok := h.existing(roomID); ok {
		rt.broadcastRoomClosed()
	}
}

// UserKicked notifies and disconnects a single kicked client
func (h *Hub) UserKicked(roomID, userID, reason string) {
	if rt, ok := h.existing(roomID); ok {
		rt.broadcastUserKicked(userID, reason)
	}
}

// Shutdown closes every connection across all rooms
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := make([]*Runtime, 0, len(h.rooms))
	for _, rt := range h.rooms {
		rooms = append(rooms, rt)
	}
	h.rooms = make(map[string]*Runtime)
	h.mu.Unlock()

	for _, rt := range rooms {
		rt.mu.Lock()
		conns := make([]*client, 0, len(rt.conns))
		for _, c := range rt.conns {
			conns = append(conns, c)
		}
		rt.conns = make(map[string]*client)
		if rt.handTimer != nil {
			rt.handTimer.Stop()
		}
		rt.mu.Unlock()
		for _, c := range conns {
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
		}
	}
}
