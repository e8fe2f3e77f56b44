package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPotsSingleLevel(t *testing.T) {
	t.Parallel()

	players := map[string]*PlayerState{
		"a": {UserID: "a", SeatNumber: 1, TotalBet: 50},
		"b": {UserID: "b", SeatNumber: 2, TotalBet: 50},
		"c": {UserID: "c", SeatNumber: 3, TotalBet: 50},
	}

	pots := BuildPots(players)
	require.Len(t, pots, 1)
	assert.Equal(t, 150, pots[0].Amount)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, pots[0].EligiblePlayers)
}

func TestBuildPotsSidePotLayers(t *testing.T) {
	t.Parallel()

	// A all-in for 100, B and C all-in for 300
	players := map[string]*PlayerState{
		"a": {UserID: "a", SeatNumber: 1, TotalBet: 100, IsAllIn: true},
		"b": {UserID: "b", SeatNumber: 2, TotalBet: 300, IsAllIn: true},
		"c": {UserID: "c", SeatNumber: 3, TotalBet: 300, IsAllIn: true},
	}

	pots := BuildPots(players)
	require.Len(t, pots, 2)

	assert.Equal(t, 300, pots[0].Amount, "main pot is 100 x 3")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, pots[0].EligiblePlayers)

	assert.Equal(t, 400, pots[1].Amount, "side pot is 200 x 2")
	assert.ElementsMatch(t, []string{"b", "c"}, pots[1].EligiblePlayers)
}

func TestBuildPotsFoldedChipsStayButCannotWin(t *testing.T) {
	t.Parallel()

	players := map[string]*PlayerState{
		"a": {UserID: "a", SeatNumber: 1, TotalBet: 40, IsFolded: true},
		"b": {UserID: "b", SeatNumber: 2, TotalBet: 100},
		"c": {UserID: "c", SeatNumber: 3, TotalBet: 100},
	}

	pots := BuildPots(players)
	assert.Equal(t, 240, PotTotal(pots), "folded chips remain in play")
	for _, pot := range pots {
		assert.NotContains(t, pot.EligiblePlayers, "a")
	}
}

func TestBuildPotsConservesChips(t *testing.T) {
	t.Parallel()

	players := map[string]*PlayerState{
		"a": {UserID: "a", SeatNumber: 1, TotalBet: 15, IsAllIn: true},
		"b": {UserID: "b", SeatNumber: 2, TotalBet: 80, IsFolded: true},
		"c": {UserID: "c", SeatNumber: 3, TotalBet: 120},
		"d": {UserID: "d", SeatNumber: 5, TotalBet: 120},
		"e": {UserID: "e", SeatNumber: 7, TotalBet: 0, IsFolded: true},
	}

	total := 0
	for _, p := range players {
		total += p.TotalBet
	}
	assert.Equal(t, total, PotTotal(BuildPots(players)))
}

func TestBuildPotsEmpty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, BuildPots(map[string]*PlayerState{
		"a": {UserID: "a", TotalBet: 0},
	}))
}
