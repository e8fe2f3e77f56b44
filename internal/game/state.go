// Package game implements the authoritative Texas Hold'em hand state
// machine: blinds and antes, action validation, betting-round closure,
// street progression, pot layering and showdown.
package game

import (
	"sort"
	"time"

	"github.com/greenfelt/cardroom/internal/deck"
)

// Phase represents the stage of a hand
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePreflop  Phase = "preflop"
	PhaseFlop     Phase = "flop"
	PhaseTurn     Phase = "turn"
	PhaseRiver    Phase = "river"
	PhaseShowdown Phase = "showdown"
	PhaseEndHand  Phase = "end_hand"
)

// Config is the slice of the room configuration the hand engine needs
type Config struct {
	SmallBlind int `json:"smallBlind"`
	BigBlind   int `json:"bigBlind"`
	Ante       int `json:"ante"`
}

// PlayerState represents a single participant within a hand
type PlayerState struct {
	UserID       string      `json:"userId"`
	Username     string      `json:"username"`
	SeatNumber   int         `json:"seatNumber"`
	Stack        int         `json:"stack"`
	Hand         []deck.Card `json:"hand"`
	CurrentBet   int         `json:"currentBet"`
	TotalBet     int         `json:"totalBet"`
	HasActed     bool        `json:"hasActed"`
	IsFolded     bool        `json:"isFolded"`
	IsAllIn      bool        `json:"isAllIn"`
	IsSittingOut bool        `json:"isSittingOut"`
}

// InHand returns true while the player can still win the pot
func (p *PlayerState) InHand() bool {
	return !p.IsFolded && !p.IsSittingOut
}

// CanAct returns true if the player may take a betting action
func (p *PlayerState) CanAct() bool {
	return !p.IsFolded && !p.IsAllIn && !p.IsSittingOut
}

// State represents a room's hand snapshot. It is the unit persisted to
// the room store and diffed for clients; Deck is stripped before any
// state leaves the server.
type State struct {
	Phase                Phase                   `json:"phase"`
	Deck                 []deck.Card             `json:"deck,omitempty"`
	CommunityCards       []deck.Card             `json:"communityCards"`
	Pot                  int                     `json:"pot"`
	CurrentBet           int                     `json:"currentBet"`
	MinRaiseAmount       int                     `json:"minRaiseAmount"`
	DealerSeat           int                     `json:"dealerSeat"`
	SmallBlindSeat       int                     `json:"smallBlindSeat"`
	BigBlindSeat         int                     `json:"bigBlindSeat"`
	CurrentPlayerSeat    *int                    `json:"currentPlayerSeat"`
	LastActionPlayerSeat *int                    `json:"lastActionPlayerSeat"`
	PlayerStates         map[string]*PlayerState `json:"playerStates"`
	HandHistory          []string                `json:"handHistory"`
	LastUpdateTime       time.Time               `json:"lastUpdateTime"`
	Config               Config                  `json:"roomConfig"`
}

// playerBySeat returns the participant seated at seat, or nil
func (s *State) playerBySeat(seat int) *PlayerState {
	for _, p := range s.PlayerStates {
		if p.SeatNumber == seat {
			return p
		}
	}
	return nil
}

// participatingSeats returns the seats of all non-sitting-out
// participants in ascending order
func (s *State) participatingSeats() []int {
	seats := make([]int, 0, len(s.PlayerStates))
	for _, p := range s.PlayerStates {
		if !p.IsSittingOut {
			seats = append(seats, p.SeatNumber)
		}
	}
	sort.Ints(seats)
	return seats
}

// nextSeat returns the first seat strictly after from, wrapping by seat
// number so that seat gaps behave correctly. Returns 0 when seats is
// empty.
func nextSeat(seats []int, from int) int {
	if len(seats) == 0 {
		return 0
	}
	for _, seat := range seats {
		if seat > from {
			return seat
		}
	}
	return seats[0]
}

// nextActorSeat returns the next seat after from holding a player able
// to act, or nil when none remains
func (s *State) nextActorSeat(from int) *int {
	seats := s.participatingSeats()
	cur := from
	for range seats {
		cur = nextSeat(seats, cur)
		p := s.playerBySeat(cur)
		if p != nil && p.CanAct() {
			seat := cur
			return &seat
		}
	}
	return nil
}

// countInHand returns the number of players still able to win the pot
func (s *State) countInHand() int {
	n := 0
	for _, p := range s.PlayerStates {
		if p.InHand() {
			n++
		}
	}
	return n
}

// countAbleToAct returns the number of players that may still bet
func (s *State) countAbleToAct() int {
	n := 0
	for _, p := range s.PlayerStates {
		if p.CanAct() {
			n++
		}
	}
	return n
}

// commit moves chips from the player's stack into the pot, marking the
// player all-in when their stack is exhausted. The amount is clamped to
// the stack.
func (s *State) commit(p *PlayerState, amount int) int {
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.TotalBet += amount
	s.Pot += amount
	if p.Stack == 0 {
		p.IsAllIn = true
	}
	return amount
}

// record appends a hand history event and bumps the update time
func (s *State) record(event string) {
	s.HandHistory = append(s.HandHistory, event)
	s.LastUpdateTime = time.Now().UTC()
}

// seatOrderFromSmallBlind orders seats for odd-chip distribution:
// the first seat strictly after the small blind comes first, the small
// blind seat itself last.
func (s *State) seatOrderFromSmallBlind(seats []int) []int {
	ordered := make([]int, len(seats))
	copy(ordered, seats)
	sort.Slice(ordered, func(i, j int) bool {
		return s.clockwiseKey(ordered[i]) < s.clockwiseKey(ordered[j])
	})
	return ordered
}

func (s *State) clockwiseKey(seat int) int {
	key := seat - s.SmallBlindSeat
	if key <= 0 {
		key += 1 << 10
	}
	return key
}
