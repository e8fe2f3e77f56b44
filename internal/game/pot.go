package game

import "sort"

// Pot represents a layered chip pool. The first pot returned by
// BuildPots is the main pot; later entries are side pots in order of
// increasing all-in depth.
type Pot struct {
	Amount          int      `json:"amount"`
	EligiblePlayers []string `json:"eligiblePlayers"`
}

// BuildPots constructs main and side pots from per-player hand totals.
// Distinct positive totalBet values form ascending bet levels; the
// increment between consecutive levels times the number of players at
// or above the level is that layer's amount. Folded and sitting-out
// players contribute chips but are never eligible to win.
func BuildPots(players map[string]*PlayerState) []Pot {
	levelSet := make(map[int]bool)
	for _, p := range players {
		if p.TotalBet > 0 {
			levelSet[p.TotalBet] = true
		}
	}
	if len(levelSet) == 0 {
		return nil
	}

	levels := make([]int, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	var pots []Pot
	prev := 0
	for _, level := range levels {
		pot := Pot{}
		for _, p := range players {
			if p.TotalBet >= level {
				pot.Amount += level - prev
				if p.InHand() {
					pot.EligiblePlayers = append(pot.EligiblePlayers, p.UserID)
				}
			}
		}
		sort.Strings(pot.EligiblePlayers)

		// A layer everyone folded out of cannot be won; its chips roll
		// into the adjacent pot rather than vanishing.
		if len(pot.EligiblePlayers) == 0 && len(pots) > 0 {
			pots[len(pots)-1].Amount += pot.Amount
		} else if len(pot.EligiblePlayers) == 0 && len(pots) == 0 {
			// Defer to the next layer's eligibility
			prev = level
			pots = append(pots, pot)
			continue
		} else {
			pots = append(pots, pot)
		}
		prev = level
	}

	// Merge a leading zero-eligibility layer forward if one was deferred
	if len(pots) > 1 && len(pots[0].EligiblePlayers) == 0 {
		pots[1].Amount += pots[0].Amount
		pots = pots[1:]
	}

	return pots
}

// PotTotal returns the chip sum across all pots
func PotTotal(pots []Pot) int {
	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

// splitAmount divides amount equally among n winners; the first r
// winners in clockwise order receive one extra chip so every chip is
// awarded
func splitAmount(amount, n int) (share, remainder int) {
	return amount / n, amount % n
}
