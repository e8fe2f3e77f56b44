package room

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenfelt/cardroom/internal/deck"
	"github.com/greenfelt/cardroom/internal/game"
	"github.com/greenfelt/cardroom/internal/store"
)

type testEnv struct {
	store  *store.SQLiteStore
	hub    *Hub
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(":memory:", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := log.New(io.Discard)
	hub := NewHub(st, logger, quartz.NewReal(), "", deck.NewSeededRand(42))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)

	return &testEnv{store: st, hub: hub, server: srv}
}

func (e *testEnv) createRoom(t *testing.T, roomID string, members ...store.MemberInfo) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.CreateRoom(ctx, store.Room{
		ID:       roomID,
		OwnerID:  "u1",
		JoinCode: "code" + roomID,
		Config: store.RoomConfig{
			MaxPlayers:    6,
			StartingStack: 1000,
			SmallBlind:    10,
			BigBlind:      20,
		},
	}))
	for _, m := range members {
		require.NoError(t, e.store.PutMember(ctx, roomID, m))
	}
}

func (e *testEnv) dial(t *testing.T, roomID, userID, username string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") +
		"/?roomId=" + roomID + "&userId=" + userID + "&username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one with the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %q frame", msgType)
		if frame["type"] == msgType {
			return frame
		}
	}
}

func member(userID string, seat, stack int) store.MemberInfo {
	return store.MemberInfo{
		UserID:              userID,
		Username:            "name-" + userID,
		SeatNumber:          seat,
		CurrentStack:        stack,
		IsActive:            false,
		WantsToPlayNextHand: true,
	}
}

func TestConnectMissingParams(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/?roomId=r1&userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation),
		"expected close 1008, got %v", err)
}

func TestConnectNonMemberRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000))

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") +
		"/?roomId=r1&userId=stranger&username=eve"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestConnectSendsSnapshots(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000), member("u2", 2, 1000))

	conn := env.dial(t, "r1", "u1", "alice")

	state := readUntil(t, conn, "room_state")
	members, ok := state["members"].([]any)
	require.True(t, ok)
	assert.Len(t, members, 2)

	history := readUntil(t, conn, "history")
	assert.NotNil(t, history["messages"])

	// Connecting marked the member active in the store
	m, err := env.store.Member(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.True(t, m.IsActive)
}

func TestConnectBaselinePrecedesPatches(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000), member("u2", 2, 1000))

	alice := env.dial(t, "r1", "u1", "alice")
	readUntil(t, alice, "history")

	require.NoError(t, env.hub.StartHand(context.Background(), "r1"))
	readUntil(t, alice, "game_state")

	// Hammer the room with patch broadcasts while bob connects; his
	// first game frame must still be the full snapshot, never a patch
	// he has no baseline for.
	rt, ok := env.hub.existing("r1")
	require.True(t, ok)
	before := &game.State{Phase: game.PhasePreflop, Pot: 30}
	after := &game.State{Phase: game.PhasePreflop, Pot: 60}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			rt.mu.Lock()
			rt.broadcastDiff(before, after)
			rt.mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	bob := env.dial(t, "r1", "u2", "bob")
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, bob.ReadJSON(&frame))
		if frame["type"] == "game_state" {
			return
		}
		require.NotEqual(t, "game_state_patch", frame["type"],
			"patch arrived before the baseline snapshot")
	}
}

// memberFailStore makes every member lookup fail like a broken backend
type memberFailStore struct {
	store.Store
	err error
}

func (s memberFailStore) Member(ctx context.Context, roomID, userID string) (store.MemberInfo, error) {
	return store.MemberInfo{}, s.err
}

func TestConnectStoreFailureClosesInternal(t *testing.T) {
	t.Parallel()
	st, err := store.NewSQLite(":memory:", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	failing := memberFailStore{Store: st, err: errors.New("disk I/O error")}
	hub := NewHub(failing, log.New(io.Discard), quartz.NewReal(), "", deck.NewSeededRand(42))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/?roomId=r1&userId=u1&username=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// A backend failure is not a membership rejection
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr),
		"expected close 1011, got %v", err)
}

func TestSupersededConnection(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000))

	first := env.dial(t, "r1", "u1", "alice")
	readUntil(t, first, "history")

	_ = env.dial(t, "r1", "u1", "alice")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = first.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr),
		"expected close 1011, got %v", err)
}

func TestChatFanOutAndRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000), member("u2", 2, 1000))

	alice := env.dial(t, "r1", "u1", "alice")
	bob := env.dial(t, "r1", "u2", "bob")
	readUntil(t, alice, "history")
	readUntil(t, bob, "history")

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "chat", "message": "  hello bob  "}))

	got := readUntil(t, bob, "chat")
	assert.Equal(t, "hello bob", got["message"], "message is trimmed")
	assert.Equal(t, "u1", got["userId"])
	readUntil(t, alice, "chat")

	// A second message inside the rate window bounces back to the
	// sender only
	require.NoError(t, alice.WriteJSON(map[string]any{"type": "chat", "message": "again"}))
	errFrame := readUntil(t, alice, "error")
	assert.Contains(t, errFrame["message"], "too quickly")
}

func TestChatTooLongRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000))

	alice := env.dial(t, "r1", "u1", "alice")
	readUntil(t, alice, "history")

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type": "chat", "message": strings.Repeat("x", 65),
	}))
	errFrame := readUntil(t, alice, "error")
	assert.Contains(t, errFrame["message"], "too long")
}

func TestChatLengthCountsRunes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000))

	alice := env.dial(t, "r1", "u1", "alice")
	readUntil(t, alice, "history")

	// 64 characters but 128 bytes; the limit is per character
	msg := strings.Repeat("é", 64)
	require.NoError(t, alice.WriteJSON(map[string]any{"type": "chat", "message": msg}))
	got := readUntil(t, alice, "chat")
	assert.Equal(t, msg, got["message"])
}

func TestHandLifecycleOverWebSocket(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000), member("u2", 2, 1000))

	alice := env.dial(t, "r1", "u1", "alice")
	bob := env.dial(t, "r1", "u2", "bob")
	readUntil(t, alice, "history")
	readUntil(t, bob, "history")

	require.NoError(t, env.hub.StartHand(context.Background(), "r1"))

	// Both get a full snapshot with only their own hole cards
	aliceState := readUntil(t, alice, "game_state")
	gs := aliceState["gameState"].(map[string]any)
	assert.Nil(t, gs["deck"], "deck never leaves the server")
	players := gs["playerStates"].(map[string]any)
	assert.Len(t, players["u1"].(map[string]any)["hand"], 2)
	assert.Empty(t, players["u2"].(map[string]any)["hand"])

	bobState := readUntil(t, bob, "game_state")
	bobPlayers := bobState["gameState"].(map[string]any)["playerStates"].(map[string]any)
	assert.Empty(t, bobPlayers["u1"].(map[string]any)["hand"])
	assert.Len(t, bobPlayers["u2"].(map[string]any)["hand"], 2)

	// Heads-up: the dealer (lowest seat, u1) posts SB and acts first.
	// Folding ends the hand uncontested.
	require.NoError(t, alice.WriteJSON(map[string]any{"type": "action", "action": "fold"}))

	patchFrame := readUntil(t, bob, "game_state_patch")
	raw, err := json.Marshal(patchFrame["patches"])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "/deck")
	assert.NotContains(t, string(raw), "/playerStates/u1/hand/")

	// end_hand writes stacks back and refreshes room_state
	readUntil(t, bob, "room_state")
	m, err := env.store.Member(context.Background(), "r1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 1010, m.CurrentStack, "BB collects the folded small blind")
}

func TestActionErrorGoesToActorOnly(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createRoom(t, "r1", member("u1", 1, 1000), member("u2", 2, 1000))

	alice := env.dial(t, "r1", "u1", "alice")
	bob := env.dial(t, "r1", "u2", "bob")
	readUntil(t, alice, "history")
	readUntil(t, bob, "history")

	require.NoError(t, env.hub.StartHand(context.Background(), "r1"))
	readUntil(t, alice, "game_state")
	readUntil(t, bob, "game_state")

	// Heads-up preflop it is u1's turn, not u2's
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "action", "action": "check"}))
	errFrame := readUntil(t, bob, "error")
	assert.Contains(t, errFrame["message"], "turn")
}

func TestStartHandRequiresReadyPlayers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	solo := member("u1", 1, 1000)
	env.createRoom(t, "r1", solo)

	conn := env.dial(t, "r1", "u1", "alice")
	readUntil(t, conn, "history")

	err := env.hub.StartHand(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
}
