// Package protocol defines the JSON frames exchanged with clients and
// the filtered JSON-patch diff channel for game state.
package protocol

import (
	"github.com/wI2L/jsondiff"

	"github.com/greenfelt/cardroom/internal/game"
	"github.com/greenfelt/cardroom/internal/store"
)

// MessageType discriminates frames in both directions
type MessageType string

const (
	// Client to server
	TypeChat   MessageType = "chat"
	TypeAction MessageType = "action"

	// Server to client
	TypeHistory        MessageType = "history"
	TypeRoomState      MessageType = "room_state"
	TypeRoomClosed     MessageType = "room_closed"
	TypeGameState      MessageType = "game_state"
	TypeGameStatePatch MessageType = "game_state_patch"
	TypeUserKicked     MessageType = "user_kicked"
	TypeError          MessageType = "error"
)

// MaxChatLength is the longest accepted chat message after trimming
const MaxChatLength = 64

// ClientMessage is the single incoming frame shape, discriminated by
// Type
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Message string          `json:"message,omitempty"`
	Action  game.ActionType `json:"action,omitempty"`
	Amount  int             `json:"amount,omitempty"`
}

// ChatMessage is an outgoing chat frame
type ChatMessage struct {
	Type MessageType `json:"type"`
	store.ChatMessage
}

// History carries the retained chat log, oldest first
type History struct {
	Type     MessageType         `json:"type"`
	Messages []store.ChatMessage `json:"messages"`
}

// RoomState carries the current member table
type RoomState struct {
	Type    MessageType        `json:"type"`
	Members []store.MemberInfo `json:"members"`
}

// RoomClosed is the terminator sent before the server closes every
// socket in a room
type RoomClosed struct {
	Type MessageType `json:"type"`
}

// GameState is a full, per-recipient masked snapshot
type GameState struct {
	Type      MessageType `json:"type"`
	GameState *game.State `json:"gameState"`
}

// GameStatePatch is a per-recipient filtered RFC 6902 diff
type GameStatePatch struct {
	Type    MessageType    `json:"type"`
	Patches jsondiff.Patch `json:"patches"`
}

// UserKicked is the terminator sent to a kicked user only
type UserKicked struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

// ErrorMessage reports a rejected action or request to one client
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewChat(msg store.ChatMessage) ChatMessage {
	return ChatMessage{Type: TypeChat, ChatMessage: msg}
}

func NewHistory(msgs []store.ChatMessage) History {
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	return History{Type: TypeHistory, Messages: msgs}
}

func NewRoomState(members []store.MemberInfo) RoomState {
	return RoomState{Type: TypeRoomState, Members: members}
}

func NewRoomClosed() RoomClosed {
	return RoomClosed{Type: TypeRoomClosed}
}

// NewGameState wraps a snapshot masked for forUser
func NewGameState(state *game.State, forUser string) GameState {
	return GameState{Type: TypeGameState, GameState: state.Sanitized(forUser)}
}

func NewGameStatePatch(patch jsondiff.Patch) GameStatePatch {
	return GameStatePatch{Type: TypeGameStatePatch, Patches: patch}
}

func NewUserKicked(reason string) UserKicked {
	return UserKicked{Type: TypeUserKicked, Reason: reason}
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}
