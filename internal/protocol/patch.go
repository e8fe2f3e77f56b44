package protocol

import (
	"fmt"
	"strings"

	"github.com/wI2L/jsondiff"

	"github.com/greenfelt/cardroom/internal/game"
)

// Diff computes the RFC 6902 patch between two hand states. Both sides
// are stripped of the deck first, so no patch ever references it; hole
// cards stay in and are filtered per recipient afterwards.
func Diff(prev, next *game.State) (jsondiff.Patch, error) {
	patch, err := jsondiff.Compare(prev.Stripped(), next.Stripped())
	if err != nil {
		return nil, fmt.Errorf("diff game state: %w", err)
	}
	return patch, nil
}

// FilterForRecipient narrows a patch to what recipientUID may see:
// operations on another player's hole cards are dropped, and whole
// player-state values carry their cards only when they belong to the
// recipient. The result is safe to share; ops with values are rewritten
// on deep copies.
func FilterForRecipient(patch jsondiff.Patch, recipientUID string) jsondiff.Patch {
	out := make(jsondiff.Patch, 0, len(patch))
	for _, op := range patch {
		uid, rest, ok := playerStatePath(op.Path)
		switch {
		case ok && rest == "/hand" || ok && strings.HasPrefix(rest, "/hand/"):
			if uid == recipientUID {
				out = append(out, op)
			}
		case ok && rest == "" && (op.Type == jsondiff.OperationAdd || op.Type == jsondiff.OperationReplace):
			if uid == recipientUID {
				out = append(out, op)
				continue
			}
			op.Value = maskHandValue(op.Value)
			out = append(out, op)
		case op.Path == "/playerStates" && (op.Type == jsondiff.OperationAdd || op.Type == jsondiff.OperationReplace):
			op.Value = maskAllHands(op.Value, recipientUID)
			out = append(out, op)
		default:
			out = append(out, op)
		}
	}
	return out
}

// playerStatePath splits a pointer of the form
// /playerStates/{uid}[/rest] into its user id and remainder
func playerStatePath(path string) (uid, rest string, ok bool) {
	const prefix = "/playerStates/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	tail := path[len(prefix):]
	if i := strings.IndexByte(tail, '/'); i >= 0 {
		return unescapePointer(tail[:i]), tail[i:], true
	}
	return unescapePointer(tail), "", true
}

// unescapePointer reverses RFC 6901 token escaping
func unescapePointer(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

// maskHandValue returns a copy of a player-state value with the hand
// emptied. Values produced by jsondiff are plain decoded JSON, so a
// shallow copy of the top map plus a fresh hand slice is enough.
func maskHandValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	cp := make(map[string]any, len(m))
	for k, val := range m {
		cp[k] = val
	}
	cp["hand"] = []any{}
	return cp
}

// maskAllHands masks every player's hand in a whole playerStates map
// except the recipient's
func maskAllHands(v any, recipientUID string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	cp := make(map[string]any, len(m))
	for uid, val := range m {
		if uid == recipientUID {
			cp[uid] = val
			continue
		}
		cp[uid] = maskHandValue(val)
	}
	return cp
}
