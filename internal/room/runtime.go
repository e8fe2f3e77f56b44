package room

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/greenfelt/cardroom/internal/game"
	"github.com/greenfelt/cardroom/internal/protocol"
	"github.com/greenfelt/cardroom/internal/store"
)

// ErrHandInProgress is returned when a hand start races an active hand
var ErrHandInProgress = errors.New("hand already in progress")

// ErrNotEnoughPlayers is returned when fewer than two members are ready
var ErrNotEnoughPlayers = errors.New("need at least 2 ready players")

// chatInterval is the minimum spacing between chat messages per client
const chatInterval = 2 * time.Second

// Runtime coordinates a single room: the connection set, chat, and the
// dispatch of game mutations. Game state itself is never cached here;
// every mutation loads from the store so a restarted process resumes
// mid-hand.
type Runtime struct {
	roomID string
	hub    *Hub
	store  store.Store
	logger *log.Logger
	clock  quartz.Clock
	rng    *rand.Rand

	mu        sync.Mutex
	conns     map[string]*client
	lastChat  map[string]time.Time
	handTimer *quartz.Timer
}

func newRuntime(roomID string, hub *Hub, st store.Store, logger *log.Logger, clock quartz.Clock, rng *rand.Rand) *Runtime {
	return &Runtime{
		roomID:   roomID,
		hub:      hub,
		store:    st,
		logger:   logger.WithPrefix("room").With("room", roomID),
		clock:    clock,
		rng:      rng,
		conns:    make(map[string]*client),
		lastChat: make(map[string]time.Time),
	}
}

// connect registers a freshly upgraded socket for userID. A second
// connection for the same user supersedes the first, which is closed
// with code 1011. The new client receives the room_state, game_state
// and chat history snapshots before any patch.
func (rt *Runtime) connect(ctx context.Context, c *client) error {
	if _, err := rt.store.Member(ctx, rt.roomID, c.userID); err != nil {
		return fmt.Errorf("member lookup: %w", err)
	}

	if err := rt.store.UpdateMemberFields(ctx, rt.roomID, c.userID,
		map[string]any{store.FieldIsActive: true}); err != nil {
		rt.logger.Error("mark member active", "user", c.userID, "error", err)
	}

	// Registration and the baseline snapshots share one critical section
	// so a concurrent broadcast cannot queue a patch or chat frame ahead
	// of the client's first full state.
	rt.mu.Lock()
	if prev, ok := rt.conns[c.userID]; ok {
		prev.closeWith(1011, "superseded by a newer connection")
	}
	rt.conns[c.userID] = c
	rt.sendSnapshots(ctx, c)
	rt.mu.Unlock()

	c.start()
	rt.broadcastRoomState(ctx)
	rt.logger.Info("client connected", "user", c.userID)
	return nil
}

func (rt *Runtime) sendSnapshots(ctx context.Context, c *client) {
	members, err := rt.store.Members(ctx, rt.roomID)
	if err != nil {
		rt.logger.Error("load members for snapshot", "error", err)
	} else {
		c.enqueue(protocol.NewRoomState(sortMembers(members)))
	}

	state, err := rt.store.GameState(ctx, rt.roomID)
	switch {
	case err == nil:
		c.enqueue(protocol.NewGameState(state, c.userID))
	case !errors.Is(err, store.ErrNotFound):
		rt.logger.Error("load game state for snapshot", "error", err)
	}

	history, err := rt.store.ChatHistory(ctx, rt.roomID)
	if err != nil {
		rt.logger.Error("load chat history", "error", err)
		return
	}
	c.enqueue(protocol.NewHistory(history))
}

// disconnect drops c from the connection set. It is a no-op when the
// user has already been superseded by a newer socket.
func (rt *Runtime) disconnect(c *client) {
	rt.mu.Lock()
	cur, ok := rt.conns[c.userID]
	if !ok || cur != c {
		rt.mu.Unlock()
		return
	}
	delete(rt.conns, c.userID)
	delete(rt.lastChat, c.userID)
	empty := len(rt.conns) == 0
	rt.mu.Unlock()

	ctx := context.Background()
	if err := rt.store.UpdateMemberFields(ctx, rt.roomID, c.userID,
		map[string]any{store.FieldIsActive: false}); err != nil && !errors.Is(err, store.ErrNotFound) {
		rt.logger.Error("mark member inactive", "user", c.userID, "error", err)
	}
	rt.broadcastRoomState(ctx)
	rt.logger.Info("client disconnected", "user", c.userID)

	if empty {
		rt.hub.remove(rt.roomID)
	}
}

// handleAction applies one player action: load, mutate, persist, diff,
// fan out. Rule violations go back to the actor only; a failed persist
// never broadcasts the unpersisted state.
func (rt *Runtime) handleAction(c *client, action game.Action) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	ctx := context.Background()
	state, err := rt.store.GameState(ctx, rt.roomID)
	if errors.Is(err, store.ErrNotFound) {
		c.sendError(game.ErrHandNotRunning.Error())
		return
	}
	if err != nil {
		rt.logger.Error("load game state", "error", err)
		c.sendError("room state unavailable, try again")
		return
	}

	before := state.Stripped()
	if err := state.Apply(c.userID, action); err != nil {
		if game.IsInvalidAction(err) {
			c.sendError(err.Error())
			return
		}
		// Invariant violation: the hand was aborted and chips refunded
		// in place, so the aborted state still has to be persisted and
		// broadcast below.
		rt.logger.Error("hand aborted", "user", c.userID, "error", err)
	}

	if err := rt.store.SetGameState(ctx, rt.roomID, state); err != nil {
		rt.logger.Error("persist game state", "error", err)
		c.sendError("room state unavailable, try again")
		return
	}

	rt.broadcastDiff(before, state)
	if state.Phase == game.PhaseEndHand {
		rt.finishHandLocked(ctx, state)
	}
}

func (rt *Runtime) broadcastDiff(before, after *game.State) {
	patch, err := protocol.Diff(before, after)
	if err != nil {
		rt.logger.Error("diff game state", "error", err)
		return
	}
	if len(patch) == 0 {
		return
	}
	for uid, c := range rt.conns {
		c.enqueue(protocol.NewGameStatePatch(protocol.FilterForRecipient(patch, uid)))
	}
}

// startHand begins a new hand from the durable membership table. Called
// by the command surface (owner startGame) and by the hand-delay timer.
func (rt *Runtime) startHand(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.startHandLocked(ctx)
}

func (rt *Runtime) startHandLocked(ctx context.Context) error {
	room, err := rt.store.Room(ctx, rt.roomID)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}

	prev, err := rt.store.GameState(ctx, rt.roomID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load game state: %w", err)
	}
	if prev != nil && prev.InProgress() {
		return ErrHandInProgress
	}

	members, err := rt.store.Members(ctx, rt.roomID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}

	var participants []game.Participant
	for _, m := range members {
		if !m.IsActive || !m.WantsToPlayNextHand {
			continue
		}
		participants = append(participants, game.Participant{
			UserID:   m.UserID,
			Username: m.Username,
			Seat:     m.SeatNumber,
			Stack:    m.CurrentStack,
		})
	}
	if len(participants) < 2 {
		return ErrNotEnoughPlayers
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].Seat < participants[j].Seat
	})

	state, err := game.StartHand(room.Config.GameConfig(), participants, prev, rt.rng, rt.logger)
	if err != nil {
		return fmt.Errorf("start hand: %w", err)
	}

	if err := rt.store.SetGameState(ctx, rt.roomID, state); err != nil {
		return fmt.Errorf("persist game state: %w", err)
	}

	// Opt-in is per hand; participants must flag themselves again for
	// the one after this.
	for _, p := range participants {
		if err := rt.store.UpdateMemberFields(ctx, rt.roomID, p.UserID,
			map[string]any{store.FieldWantsToPlay: false}); err != nil {
			rt.logger.Error("reset play flag", "user", p.UserID, "error", err)
		}
	}

	// A new hand re-baselines every client with a full snapshot
	for uid, c := range rt.conns {
		c.enqueue(protocol.NewGameState(state, uid))
	}
	rt.logger.Info("hand started", "players", len(participants), "dealer", state.DealerSeat)

	if state.Phase == game.PhaseEndHand {
		rt.finishHandLocked(ctx, state)
	}
	return nil
}

// finishHandLocked writes final stacks back to the membership table,
// broadcasts the refreshed room_state, and schedules the next hand when
// the room is configured for one.
func (rt *Runtime) finishHandLocked(ctx context.Context, state *game.State) {
	for uid, stack := range state.EndHandStacks() {
		if err := rt.store.UpdateMemberFields(ctx, rt.roomID, uid,
			map[string]any{store.FieldCurrentStack: stack}); err != nil {
			rt.logger.Error("write back stack", "user", uid, "error", err)
		}
	}
	rt.broadcastRoomStateLocked(ctx)

	room, err := rt.store.Room(ctx, rt.roomID)
	if err != nil {
		rt.logger.Error("load room after hand", "error", err)
		return
	}
	if room.Config.HandDelaySeconds <= 0 {
		return
	}
	if rt.handTimer != nil {
		rt.handTimer.Stop()
	}
	delay := time.Duration(room.Config.HandDelaySeconds) * time.Second
	rt.handTimer = rt.clock.AfterFunc(delay, func() {
		if err := rt.startHand(context.Background()); err != nil {
			if !errors.Is(err, ErrNotEnoughPlayers) && !errors.Is(err, ErrHandInProgress) {
				rt.logger.Error("auto-start next hand", "error", err)
			}
		}
	})
}

// broadcastRoomState reloads the membership table and pushes it to
// every connection
func (rt *Runtime) broadcastRoomState(ctx context.Context) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.broadcastRoomStateLocked(ctx)
}

func (rt *Runtime) broadcastRoomStateLocked(ctx context.Context) {
	members, err := rt.store.Members(ctx, rt.roomID)
	if err != nil {
		rt.logger.Error("load members for broadcast", "error", err)
		return
	}
	msg := protocol.NewRoomState(sortMembers(members))
	for _, c := range rt.conns {
		c.enqueue(msg)
	}
}

// broadcastRoomClosed sends the room_closed terminator to everyone and
// closes their sockets with code 1000
func (rt *Runtime) broadcastRoomClosed() {
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

	msg := protocol.NewRoomClosed()
	for _, c := range conns {
		c.enqueue(msg)
		c.closeWith(1000, "Room closed by owner")
	}
	rt.hub.remove(rt.roomID)
}

// broadcastUserKicked sends the user_kicked terminator to the target
// only and closes their socket
func (rt *Runtime) broadcastUserKicked(userID, reason string) {
	rt.mu.Lock()
	c, ok := rt.conns[userID]
	if ok {
		delete(rt.conns, userID)
		delete(rt.lastChat, userID)
	}
	rt.mu.Unlock()
	if !ok {
		return
	}
	c.enqueue(protocol.NewUserKicked(reason))
	c.closeWith(1000, reason)
}

func sortMembers(members map[string]store.MemberInfo) []store.MemberInfo {
	out := make([]store.MemberInfo, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out
}
