// Package store persists room membership, game state and chat. Rooms
// expire after a TTL that refreshes on every write; deleting a room
// removes every namespace that belongs to it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/greenfelt/cardroom/internal/game"
)

// DefaultTTL is how long an untouched room survives
const DefaultTTL = 24 * time.Hour

// ChatCap is the hard cap on retained chat messages per room
const ChatCap = 100

// ErrNotFound is returned when a room, member or game record is missing
var ErrNotFound = errors.New("not found")

// RoomConfig is the durable configuration of a room. Immutable after
// creation except MaxPlayers (grow only) and FilterProfanity.
type RoomConfig struct {
	MaxPlayers       int  `json:"maxPlayers"`
	StartingStack    int  `json:"startingStack"`
	SmallBlind       int  `json:"smallBlind"`
	BigBlind         int  `json:"bigBlind"`
	Ante             int  `json:"ante"`
	HandDelaySeconds int  `json:"handDelaySeconds"`
	FilterProfanity  bool `json:"filterProfanity"`
	Public           bool `json:"public"`
}

// GameConfig returns the slice of the config the hand engine consumes
func (c RoomConfig) GameConfig() game.Config {
	return game.Config{SmallBlind: c.SmallBlind, BigBlind: c.BigBlind, Ante: c.Ante}
}

// Room is the durable room record
type Room struct {
	ID       string     `json:"id"`
	OwnerID  string     `json:"ownerId"`
	JoinCode string     `json:"joinCode"`
	Config   RoomConfig `json:"config"`
}

// MemberInfo is the durable per-room membership record
type MemberInfo struct {
	UserID              string `json:"userId"`
	Username            string `json:"username"`
	SeatNumber          int    `json:"seatNumber"`
	CurrentStack        int    `json:"currentStack"`
	IsActive            bool   `json:"isActive"`
	WantsToPlayNextHand bool   `json:"wantsToPlayNextHand"`
}

// ChatMessage is one retained chat entry
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Member field names accepted by UpdateMemberFields
const (
	FieldSeatNumber   = "seatNumber"
	FieldCurrentStack = "currentStack"
	FieldIsActive     = "isActive"
	FieldWantsToPlay  = "wantsToPlayNextHand"
)

// Store is the durable source of truth for rooms across process
// restarts. Implementations must make reads observe the latest
// successful write and make multi-field updates atomic.
type Store interface {
	CreateRoom(ctx context.Context, room Room) error
	Room(ctx context.Context, roomID string) (Room, error)
	RoomByJoinCode(ctx context.Context, code string) (Room, error)
	RoomByMember(ctx context.Context, userID string) (Room, error)
	UpdateRoomConfig(ctx context.Context, roomID string, cfg RoomConfig) error
	DeleteRoom(ctx context.Context, roomID string) error

	Members(ctx context.Context, roomID string) (map[string]MemberInfo, error)
	Member(ctx context.Context, roomID, userID string) (MemberInfo, error)
	PutMember(ctx context.Context, roomID string, member MemberInfo) error
	UpdateMemberFields(ctx context.Context, roomID, userID string, fields map[string]any) error
	RemoveMember(ctx context.Context, roomID, userID string) error

	GameState(ctx context.Context, roomID string) (*game.State, error)
	SetGameState(ctx context.Context, roomID string, state *game.State) error
	DeleteGameState(ctx context.Context, roomID string) error

	AppendChat(ctx context.Context, msg ChatMessage) error
	ChatHistory(ctx context.Context, roomID string) ([]ChatMessage, error)

	PurgeExpired(ctx context.Context) (int, error)
	Close() error
}
