package room

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/greenfelt/cardroom/internal/joincode"
	"github.com/greenfelt/cardroom/internal/protocol"
	"github.com/greenfelt/cardroom/internal/store"
)

// handleChat validates, persists and fans out one chat message. Empty
// messages are dropped silently; oversized and rate-limited ones are
// rejected back to the sender.
func (rt *Runtime) handleChat(c *client, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	// The limit counts characters, not bytes
	if utf8.RuneCountInString(message) > protocol.MaxChatLength {
		c.sendError("message too long")
		return
	}

	rt.mu.Lock()
	now := rt.clock.Now()
	if last, ok := rt.lastChat[c.userID]; ok && now.Sub(last) < chatInterval {
		rt.mu.Unlock()
		c.sendError("you are sending messages too quickly")
		return
	}
	rt.lastChat[c.userID] = now
	rt.mu.Unlock()

	ctx := context.Background()
	room, err := rt.store.Room(ctx, rt.roomID)
	if err != nil {
		rt.logger.Error("load room for chat", "error", err)
		c.sendError("room state unavailable, try again")
		return
	}
	if room.Config.FilterProfanity {
		message = maskProfanity(message)
	}

	msg := store.ChatMessage{
		ID:        joincode.NewID(),
		RoomID:    rt.roomID,
		UserID:    c.userID,
		Username:  c.username,
		Message:   message,
		Timestamp: now,
	}
	if err := rt.store.AppendChat(ctx, msg); err != nil {
		rt.logger.Error("append chat", "error", err)
		c.sendError("room state unavailable, try again")
		return
	}

	out := protocol.NewChat(msg)
	rt.mu.Lock()
	for _, conn := range rt.conns {
		conn.enqueue(out)
	}
	rt.mu.Unlock()
}

// Small built-in wordlist, matched case-insensitively on whole words
var profaneWords = map[string]bool{
	"ass": true, "asshole": true, "bastard": true, "bitch": true,
	"crap": true, "damn": true, "dick": true, "fuck": true,
	"piss": true, "prick": true, "shit": true, "slut": true,
}

// maskProfanity replaces listed words with asterisks, leaving the rest
// of the message and its spacing untouched
func maskProfanity(message string) string {
	fields := strings.Split(message, " ")
	for i, word := range fields {
		trimmed := strings.ToLower(strings.Trim(word, ".,!?;:'\""))
		if profaneWords[trimmed] {
			fields[i] = strings.Replace(word, strings.Trim(word, ".,!?;:'\""),
				strings.Repeat("*", len(trimmed)), 1)
		}
	}
	return strings.Join(fields, " ")
}
