// Package evaluator ranks poker hands by exhaustive five-card
// enumeration. It favors an explicit, auditable comparison over lookup
// tables because showdown results must be explainable to clients
// (rank name, best five, kickers).
package evaluator

import (
	"sort"

	"github.com/greenfelt/cardroom/internal/deck"
)

// Rank values, weakest to strongest
const (
	HighCard      = 1
	Pair          = 2
	TwoPair       = 3
	ThreeOfAKind  = 4
	Straight      = 5
	Flush         = 6
	FullHouse     = 7
	FourOfAKind   = 8
	StraightFlush = 9
	RoyalFlush    = 10
)

var rankNames = map[int]string{
	HighCard:      "high card",
	Pair:          "pair",
	TwoPair:       "two pair",
	ThreeOfAKind:  "three of a kind",
	Straight:      "straight",
	Flush:         "flush",
	FullHouse:     "full house",
	FourOfAKind:   "four of a kind",
	StraightFlush: "straight flush",
	RoyalFlush:    "royal flush",
}

// Result represents a complete evaluation of a hand. Kickers lead with
// the primary category rank (pair rank, straight high, etc.) followed
// by the remaining kickers in descending value, so two Results of the
// same RankValue compare element by element.
type Result struct {
	RankValue int         `json:"rankValue"`
	RankName  string      `json:"rankName"`
	BestFive  []deck.Card `json:"bestFive"`
	Kickers   []int       `json:"kickers"`
}

// Compare returns >0 if r beats other, <0 if other beats r, 0 on a tie
func (r Result) Compare(other Result) int {
	if r.RankValue != other.RankValue {
		return r.RankValue - other.RankValue
	}
	for i := 0; i < len(r.Kickers) && i < len(other.Kickers); i++ {
		if r.Kickers[i] != other.Kickers[i] {
			return r.Kickers[i] - other.Kickers[i]
		}
	}
	return len(r.Kickers) - len(other.Kickers)
}

// Evaluate returns the best five-card hand makeable from up to seven
// cards. With fewer than five cards it returns a preview result with
// RankValue 0; showdown never reaches that path.
func Evaluate(cards []deck.Card) Result {
	if len(cards) < 5 {
		sorted := make([]deck.Card, len(cards))
		copy(sorted, cards)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value() > sorted[j].Value() })
		return Result{RankValue: 0, RankName: "not enough cards", BestFive: sorted}
	}

	var best Result
	first := true
	combinations(len(cards), func(idx [5]int) {
		five := [5]deck.Card{cards[idx[0]], cards[idx[1]], cards[idx[2]], cards[idx[3]], cards[idx[4]]}
		r := evaluateFive(five)
		if first || r.Compare(best) > 0 {
			best = r
			first = false
		}
	})
	return best
}

// EvaluateFive evaluates exactly five cards
func EvaluateFive(cards [5]deck.Card) Result {
	return evaluateFive(cards)
}

// combinations invokes fn for every 5-element subset of [0,n)
func combinations(n int, fn func([5]int)) {
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						fn([5]int{a, b, c, d, e})
					}
				}
			}
		}
	}
}

func evaluateFive(five [5]deck.Card) Result {
	cards := five[:]
	sorted := make([]deck.Card, 5)
	copy(sorted, cards)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value() > sorted[j].Value() })

	flush := true
	for i := 1; i < 5; i++ {
		if sorted[i].Suit != sorted[0].Suit {
			flush = false
			break
		}
	}

	straightHigh, straight := straightHighOf(sorted)

	// Rank multiplicity, e.g. quads/trips/pairs
	counts := make(map[int]int, 5)
	for _, c := range sorted {
		counts[c.Value()]++
	}

	// Group values by count, each group descending
	byCount := make(map[int][]int)
	for v, n := range counts {
		byCount[n] = append(byCount[n], v)
	}
	for _, vs := range byCount {
		sort.Sort(sort.Reverse(sort.IntSlice(vs)))
	}

	bestFive := orderedBestFive(sorted, straight, straightHigh)

	switch {
	case flush && straight && straightHigh == int(deck.Ace):
		return Result{RankValue: RoyalFlush, RankName: rankNames[RoyalFlush], BestFive: bestFive, Kickers: []int{straightHigh}}
	case flush && straight:
		return Result{RankValue: StraightFlush, RankName: rankNames[StraightFlush], BestFive: bestFive, Kickers: []int{straightHigh}}
	case len(byCount[4]) == 1:
		quad := byCount[4][0]
		return Result{RankValue: FourOfAKind, RankName: rankNames[FourOfAKind], BestFive: bestFive, Kickers: append([]int{quad}, byCount[1]...)}
	case len(byCount[3]) == 1 && len(byCount[2]) == 1:
		return Result{RankValue: FullHouse, RankName: rankNames[FullHouse], BestFive: bestFive, Kickers: []int{byCount[3][0], byCount[2][0]}}
	case flush:
		return Result{RankValue: Flush, RankName: rankNames[Flush], BestFive: bestFive, Kickers: valuesOf(sorted)}
	case straight:
		return Result{RankValue: Straight, RankName: rankNames[Straight], BestFive: bestFive, Kickers: []int{straightHigh}}
	case len(byCount[3]) == 1:
		return Result{RankValue: ThreeOfAKind, RankName: rankNames[ThreeOfAKind], BestFive: bestFive, Kickers: append([]int{byCount[3][0]}, byCount[1]...)}
	case len(byCount[2]) == 2:
		return Result{RankValue: TwoPair, RankName: rankNames[TwoPair], BestFive: bestFive, Kickers: []int{byCount[2][0], byCount[2][1], byCount[1][0]}}
	case len(byCount[2]) == 1:
		return Result{RankValue: Pair, RankName: rankNames[Pair], BestFive: bestFive, Kickers: append([]int{byCount[2][0]}, byCount[1]...)}
	default:
		return Result{RankValue: HighCard, RankName: rankNames[HighCard], BestFive: bestFive, Kickers: valuesOf(sorted)}
	}
}

// straightHighOf detects five consecutive unique ranks in a hand sorted
// descending. The ace-low wheel A-2-3-4-5 counts with a high of 5.
func straightHighOf(sorted []deck.Card) (int, bool) {
	consecutive := true
	for i := 1; i < 5; i++ {
		if sorted[i].Value() != sorted[i-1].Value()-1 {
			consecutive = false
			break
		}
	}
	if consecutive {
		return sorted[0].Value(), true
	}

	// Wheel: A,5,4,3,2 sorted descending
	if sorted[0].Value() == int(deck.Ace) &&
		sorted[1].Value() == 5 && sorted[2].Value() == 4 &&
		sorted[3].Value() == 3 && sorted[4].Value() == 2 {
		return 5, true
	}
	return 0, false
}

// orderedBestFive returns the five cards in display order: wheels show
// 5-4-3-2-A, other hands descending by value.
func orderedBestFive(sorted []deck.Card, straight bool, straightHigh int) []deck.Card {
	out := make([]deck.Card, 5)
	copy(out, sorted)
	if straight && straightHigh == 5 && out[0].Value() == int(deck.Ace) {
		ace := out[0]
		copy(out, out[1:])
		out[4] = ace
	}
	return out
}

func valuesOf(cards []deck.Card) []int {
	vals := make([]int, len(cards))
	for i, c := range cards {
		vals[i] = c.Value()
	}
	return vals
}
