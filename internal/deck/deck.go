package deck

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	rand "math/rand/v2"
)

// Deck represents an ordered deck of playing cards. The top of the deck
// is the end of the slice so that popping is O(1).
type Deck struct {
	cards []Card
}

// New creates a new standard 52-card deck in canonical order
func New() *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := Clubs; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	return d
}

// FromCards creates a deck from an explicit card order, top of deck last.
// Used to restore a persisted deck and to rig decks in tests.
func FromCards(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// NewRand returns a PCG-backed *rand.Rand seeded from crypto/rand.
// Shuffle fairness is a core guarantee, so production decks must never
// be seeded from a predictable source.
func NewRand() *rand.Rand {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("deck: failed to read crypto seed: " + err.Error())
	}
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

// NewSeededRand returns a deterministic *rand.Rand for tests
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Shuffle permutes the deck in place with a uniform Fisher-Yates pass
func (d *Deck) Shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Pop removes and returns the top card of the deck
func (d *Deck) Pop() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card, true
}

// PopN pops n cards from the top of the deck. Returns false if the deck
// holds fewer than n cards; a short deal is never acceptable mid-hand.
func (d *Deck) PopN(n int) ([]Card, bool) {
	if n > len(d.cards) {
		return nil, false
	}
	cards := make([]Card, n)
	for i := 0; i < n; i++ {
		cards[i], _ = d.Pop()
	}
	return cards, true
}

// Burn discards the top card before a community street
func (d *Deck) Burn() bool {
	_, ok := d.Pop()
	return ok
}

// Remaining returns the number of cards left in the deck
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Cards returns a copy of the deck's card order, top of deck last
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
