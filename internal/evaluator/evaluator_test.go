package evaluator

import (
	"testing"

	chehsunliu "github.com/chehsunliu/poker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenfelt/cardroom/internal/deck"
)

func cards(ss ...string) []deck.Card {
	out := make([]deck.Card, len(ss))
	for i, s := range ss {
		out[i] = deck.MustParse(s)
	}
	return out
}

func TestCategoryDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cards    []string
		rank     int
		kickers  []int
	}{
		{"royal flush", []string{"AH", "KH", "QH", "JH", "TH"}, RoyalFlush, []int{14}},
		{"straight flush", []string{"9C", "8C", "7C", "6C", "5C"}, StraightFlush, []int{9}},
		{"steel wheel is not royal", []string{"AS", "2S", "3S", "4S", "5S"}, StraightFlush, []int{5}},
		{"quads", []string{"7C", "7D", "7H", "7S", "KD"}, FourOfAKind, []int{7, 13}},
		{"full house", []string{"TC", "TD", "TH", "4S", "4D"}, FullHouse, []int{10, 4}},
		{"flush", []string{"AD", "JD", "9D", "6D", "3D"}, Flush, []int{14, 11, 9, 6, 3}},
		{"broadway straight", []string{"AC", "KD", "QH", "JS", "TC"}, Straight, []int{14}},
		{"wheel straight", []string{"AH", "2C", "3D", "4S", "5H"}, Straight, []int{5}},
		{"trips", []string{"8C", "8D", "8H", "AC", "2D"}, ThreeOfAKind, []int{8, 14, 2}},
		{"two pair", []string{"QC", "QD", "5H", "5S", "9C"}, TwoPair, []int{12, 5, 9}},
		{"pair", []string{"6C", "6D", "AH", "JS", "2C"}, Pair, []int{6, 14, 11, 2}},
		{"high card", []string{"AC", "JD", "8H", "5S", "2C"}, HighCard, []int{14, 11, 8, 5, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Evaluate(cards(tt.cards...))
			assert.Equal(t, tt.rank, r.RankValue, "rank value")
			assert.Equal(t, tt.kickers, r.Kickers, "kickers")
			assert.Len(t, r.BestFive, 5)
		})
	}
}

func TestEvaluateIsPermutationInvariant(t *testing.T) {
	t.Parallel()

	base := cards("AH", "5D", "2C", "3D", "4S", "9H", "KC")
	want := Evaluate(base)

	perms := [][]int{
		{6, 5, 4, 3, 2, 1, 0},
		{3, 0, 6, 2, 5, 1, 4},
		{1, 2, 0, 4, 3, 6, 5},
	}
	for _, p := range perms {
		shuffled := make([]deck.Card, len(base))
		for i, j := range p {
			shuffled[i] = base[j]
		}
		got := Evaluate(shuffled)
		assert.Equal(t, 0, got.Compare(want), "permuted hand evaluated differently")
		assert.Equal(t, want.RankValue, got.RankValue)
	}
}

func TestSevenCardSelection(t *testing.T) {
	t.Parallel()

	// Wheel with A5 on a 2-3-4-9-K board beats trip kings
	wheel := Evaluate(cards("AH", "5D", "2C", "3D", "4S", "9H", "KC"))
	trips := Evaluate(cards("KD", "KS", "2C", "3D", "4S", "9H", "KC"))

	require.Equal(t, Straight, wheel.RankValue)
	assert.Equal(t, []int{5}, wheel.Kickers)
	require.Equal(t, ThreeOfAKind, trips.RankValue)
	assert.Positive(t, wheel.Compare(trips), "wheel should beat trips")
}

func TestKickerBreaksTies(t *testing.T) {
	t.Parallel()

	aceKick := Evaluate(cards("8C", "8D", "AH", "JS", "2C"))
	kingKick := Evaluate(cards("8H", "8S", "KH", "JD", "2D"))
	assert.Positive(t, aceKick.Compare(kingKick))
	assert.Negative(t, kingKick.Compare(aceKick))
}

func TestNotEnoughCards(t *testing.T) {
	t.Parallel()

	r := Evaluate(cards("AH", "KD"))
	assert.Equal(t, 0, r.RankValue)
	assert.Equal(t, "not enough cards", r.RankName)
	require.Len(t, r.BestFive, 2)
	assert.Equal(t, deck.MustParse("AH"), r.BestFive[0])
}

// Cross-check our ordering against the chehsunliu/poker evaluator,
// where a lower score is a stronger hand.
func TestOrderingAgainstOracle(t *testing.T) {
	t.Parallel()

	hands := [][]string{
		{"AH", "KH", "QH", "JH", "TH", "2C", "3D"},
		{"9C", "8C", "7C", "6C", "5C", "AD", "AH"},
		{"7C", "7D", "7H", "7S", "KD", "2C", "3D"},
		{"TC", "TD", "TH", "4S", "4D", "9C", "2H"},
		{"AD", "JD", "9D", "6D", "3D", "KS", "KC"},
		{"AC", "KD", "QH", "JS", "TC", "2C", "2D"},
		{"AH", "2C", "3D", "4S", "5H", "9C", "KD"},
		{"8C", "8D", "8H", "AC", "2D", "3C", "4D"},
		{"QC", "QD", "5H", "5S", "9C", "2D", "3H"},
		{"6C", "6D", "AH", "JS", "2C", "3D", "9H"},
		{"AC", "JD", "8H", "5S", "2C", "3D", "9H"},
	}

	toOracle := func(ss []string) []chehsunliu.Card {
		out := make([]chehsunliu.Card, len(ss))
		for i, s := range ss {
			// Oracle wants lowercase suits
			out[i] = chehsunliu.NewCard(string(s[0]) + string(s[1]+('a'-'A')))
		}
		return out
	}

	for i := 0; i < len(hands); i++ {
		for j := i + 1; j < len(hands); j++ {
			ours := Evaluate(cards(hands[i]...)).Compare(Evaluate(cards(hands[j]...)))
			oracle := int(chehsunliu.Evaluate(toOracle(hands[j]))) - int(chehsunliu.Evaluate(toOracle(hands[i])))

			switch {
			case ours > 0:
				assert.Positive(t, oracle, "hand %d vs %d: we say win, oracle disagrees", i, j)
			case ours < 0:
				assert.Negative(t, oracle, "hand %d vs %d: we say lose, oracle disagrees", i, j)
			default:
				assert.Zero(t, oracle, "hand %d vs %d: we say tie, oracle disagrees", i, j)
			}
		}
	}
}
