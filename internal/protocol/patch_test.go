package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wI2L/jsondiff"

	"github.com/greenfelt/cardroom/internal/deck"
	"github.com/greenfelt/cardroom/internal/game"
)

func statePair(t *testing.T) (*game.State, *game.State) {
	t.Helper()
	seat := 2
	prev := &game.State{
		Phase:             game.PhasePreflop,
		Deck:              []deck.Card{deck.MustParse("2C"), deck.MustParse("3C")},
		CommunityCards:    []deck.Card{},
		Pot:               30,
		CurrentBet:        20,
		MinRaiseAmount:    20,
		DealerSeat:        1,
		SmallBlindSeat:    1,
		BigBlindSeat:      2,
		CurrentPlayerSeat: &seat,
		PlayerStates: map[string]*game.PlayerState{
			"u1": {UserID: "u1", Username: "alice", SeatNumber: 1, Stack: 990, CurrentBet: 10, TotalBet: 10,
				Hand: []deck.Card{deck.MustParse("AH"), deck.MustParse("KH")}},
			"u2": {UserID: "u2", Username: "bob", SeatNumber: 2, Stack: 980, CurrentBet: 20, TotalBet: 20,
				Hand: []deck.Card{deck.MustParse("7D"), deck.MustParse("2S")}},
		},
		HandHistory: []string{"hand started, dealer seat 1"},
	}

	next := prev.Stripped()
	next.Deck = []deck.Card{deck.MustParse("2C")}
	next.Phase = game.PhaseFlop
	next.CommunityCards = []deck.Card{deck.MustParse("QH"), deck.MustParse("JH"), deck.MustParse("TH")}
	next.Pot = 40
	next.CurrentBet = 0
	p1 := next.PlayerStates["u1"]
	p1.Stack = 980
	p1.CurrentBet = 0
	p1.TotalBet = 20
	next.PlayerStates["u2"].CurrentBet = 0
	return prev, next
}

func TestDiffRoundTrip(t *testing.T) {
	t.Parallel()
	prev, next := statePair(t)

	patch, err := Diff(prev, next)
	require.NoError(t, err)
	require.NotEmpty(t, patch)

	raw, err := json.Marshal(patch)
	require.NoError(t, err)
	decoded, err := jsonpatch.DecodePatch(raw)
	require.NoError(t, err)

	before, err := json.Marshal(prev.Stripped())
	require.NoError(t, err)
	after, err := decoded.Apply(before)
	require.NoError(t, err)

	want, err := json.Marshal(next.Stripped())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(after))
}

func TestDiffNeverMentionsDeck(t *testing.T) {
	t.Parallel()
	prev, next := statePair(t)

	patch, err := Diff(prev, next)
	require.NoError(t, err)
	for _, op := range patch {
		assert.False(t, strings.HasPrefix(op.Path, "/deck"), "op %s leaks the deck", op.Path)
	}
}

func TestFilterDropsOtherHands(t *testing.T) {
	t.Parallel()
	prev, _ := statePair(t)

	// Deal u2 a replacement card so the diff touches both hands
	next := prev.Stripped()
	next.PlayerStates["u1"].Hand = []deck.Card{deck.MustParse("AH"), deck.MustParse("QS")}
	next.PlayerStates["u2"].Hand = []deck.Card{deck.MustParse("7D"), deck.MustParse("9C")}

	patch, err := Diff(prev, next)
	require.NoError(t, err)

	filtered := FilterForRecipient(patch, "u1")
	var sawOwn bool
	for _, op := range filtered {
		assert.False(t, strings.HasPrefix(op.Path, "/playerStates/u2/hand"), "op %s leaks u2's cards", op.Path)
		if strings.HasPrefix(op.Path, "/playerStates/u1/hand") {
			sawOwn = true
		}
	}
	assert.True(t, sawOwn, "recipient keeps ops on their own hand")
}

func TestFilterMasksWholePlayerValues(t *testing.T) {
	t.Parallel()
	prev, _ := statePair(t)

	// A player joining mid-diff arrives as a whole-object add
	next := prev.Stripped()
	next.PlayerStates["u3"] = &game.PlayerState{
		UserID: "u3", Username: "carol", SeatNumber: 3, Stack: 1000,
		Hand: []deck.Card{deck.MustParse("5H"), deck.MustParse("5S")},
	}

	patch, err := Diff(prev, next)
	require.NoError(t, err)

	filtered := FilterForRecipient(patch, "u1")
	var found bool
	for _, op := range filtered {
		if op.Path != "/playerStates/u3" {
			continue
		}
		found = true
		require.Equal(t, jsondiff.OperationAdd, op.Type)
		m, ok := op.Value.(map[string]any)
		require.True(t, ok)
		assert.Empty(t, m["hand"], "added player's cards are masked")
		assert.Equal(t, "carol", m["username"], "other fields survive the mask")
	}
	assert.True(t, found)

	// The owner of the new state sees their own cards
	own := FilterForRecipient(patch, "u3")
	for _, op := range own {
		if op.Path != "/playerStates/u3" {
			continue
		}
		m, ok := op.Value.(map[string]any)
		require.True(t, ok)
		assert.Len(t, m["hand"], 2)
	}
}

func TestFilterDoesNotMutateSource(t *testing.T) {
	t.Parallel()
	prev, _ := statePair(t)
	next := prev.Stripped()
	next.PlayerStates["u3"] = &game.PlayerState{
		UserID: "u3", Username: "carol", SeatNumber: 3, Stack: 1000,
		Hand: []deck.Card{deck.MustParse("5H"), deck.MustParse("5S")},
	}

	patch, err := Diff(prev, next)
	require.NoError(t, err)

	_ = FilterForRecipient(patch, "u1")
	own := FilterForRecipient(patch, "u3")
	for _, op := range own {
		if op.Path == "/playerStates/u3" {
			m := op.Value.(map[string]any)
			assert.Len(t, m["hand"], 2, "filtering for one recipient must not mask the shared patch")
		}
	}
}
