package game

import (
	"fmt"
	rand "math/rand/v2"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/greenfelt/cardroom/internal/deck"
)

// Participant describes a room member entering a new hand
type Participant struct {
	UserID   string
	Username string
	Seat     int
	Stack    int
}

// StartHand builds the state for a fresh hand: seats participants,
// rotates the dealer from prev (lowest seat when prev is nil), posts
// antes then blinds, deals hole cards and opens preflop action.
//
// Stacks carry over from prev when the participant played the previous
// hand; otherwise the member's stored stack is used, clamped to
// bigBlind*50 when missing. prev may be nil for the first hand of a
// room.
func StartHand(cfg Config, participants []Participant, prev *State, rng *rand.Rand, logger *log.Logger) (*State, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("need at least 2 players, got %d", len(participants))
	}

	s := &State{
		Phase:          PhasePreflop,
		CommunityCards: []deck.Card{},
		MinRaiseAmount: cfg.BigBlind,
		PlayerStates:   make(map[string]*PlayerState, len(participants)),
		HandHistory:    []string{},
		LastUpdateTime: time.Now().UTC(),
		Config:         cfg,
	}

	for _, part := range participants {
		stack := part.Stack
		if prev != nil {
			if ps, ok := prev.PlayerStates[part.UserID]; ok {
				stack = ps.Stack
			}
		}
		if stack <= 0 {
			stack = cfg.BigBlind * 50
			logger.Warn("member entered hand with no stack, clamping",
				"user", part.UserID, "stack", stack)
		}
		s.PlayerStates[part.UserID] = &PlayerState{
			UserID:     part.UserID,
			Username:   part.Username,
			SeatNumber: part.Seat,
			Stack:      stack,
			Hand:       []deck.Card{},
		}
	}

	seats := s.participatingSeats()
	if prev == nil || prev.DealerSeat == 0 {
		s.DealerSeat = seats[0]
	} else {
		s.DealerSeat = nextSeat(seats, prev.DealerSeat)
	}

	if len(seats) == 2 {
		// Heads-up: the dealer posts the small blind
		s.SmallBlindSeat = s.DealerSeat
		s.BigBlindSeat = nextSeat(seats, s.DealerSeat)
	} else {
		s.SmallBlindSeat = nextSeat(seats, s.DealerSeat)
		s.BigBlindSeat = nextSeat(seats, s.SmallBlindSeat)
	}

	s.postAntes()
	s.postBlinds()

	s.CurrentBet = cfg.BigBlind
	s.MinRaiseAmount = cfg.BigBlind
	bb := s.BigBlindSeat
	s.LastActionPlayerSeat = &bb

	if err := s.dealHoleCards(rng); err != nil {
		return nil, err
	}

	s.CurrentPlayerSeat = s.nextActorSeat(s.BigBlindSeat)
	s.record(fmt.Sprintf("hand started, dealer seat %d", s.DealerSeat))

	// Blinds and antes can leave nobody able to act (everyone all-in);
	// run the board out immediately in that case.
	if s.CurrentPlayerSeat == nil || s.isBettingRoundOver() {
		if err := s.finishOrAdvance(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *State) postAntes() {
	if s.Config.Ante <= 0 {
		return
	}
	for _, seat := range s.participatingSeats() {
		p := s.playerBySeat(seat)
		paid := s.commit(p, s.Config.Ante)
		if paid > 0 {
			s.record(fmt.Sprintf("%s posts ante %d", p.Username, paid))
		}
	}
}

func (s *State) postBlinds() {
	sb := s.playerBySeat(s.SmallBlindSeat)
	paid := s.commit(sb, s.Config.SmallBlind)
	sb.CurrentBet += paid
	s.record(fmt.Sprintf("%s posts small blind %d", sb.Username, paid))

	bb := s.playerBySeat(s.BigBlindSeat)
	paid = s.commit(bb, s.Config.BigBlind)
	bb.CurrentBet += paid
	s.record(fmt.Sprintf("%s posts big blind %d", bb.Username, paid))
}

// dealHoleCards shuffles a fresh deck and deals two cards to each
// participant clockwise starting left of the dealer
func (s *State) dealHoleCards(rng *rand.Rand) error {
	d := deck.New()
	d.Shuffle(rng)

	seats := s.participatingSeats()
	order := make([]int, 0, len(seats))
	cur := s.DealerSeat
	for range seats {
		cur = nextSeat(seats, cur)
		order = append(order, cur)
	}

	for round := 0; round < 2; round++ {
		for _, seat := range order {
			card, ok := d.Pop()
			if !ok {
				return fmt.Errorf("%w: deck exhausted dealing hole cards", ErrInternal)
			}
			p := s.playerBySeat(seat)
			p.Hand = append(p.Hand, card)
		}
	}

	s.Deck = d.Cards()
	return nil
}

// EndHandStacks returns each participant's final stack, for writing
// back to the membership table once the hand reaches end_hand.
func (s *State) EndHandStacks() map[string]int {
	stacks := make(map[string]int, len(s.PlayerStates))
	for uid, p := range s.PlayerStates {
		stacks[uid] = p.Stack
	}
	return stacks
}

// Stripped returns a copy of the state with the deck removed but hole
// cards intact. This is the canonical form diffs are computed from;
// per-recipient masking happens at the patch/snapshot layer.
func (s *State) Stripped() *State {
	clone := *s
	clone.Deck = nil
	clone.PlayerStates = make(map[string]*PlayerState, len(s.PlayerStates))
	for uid, p := range s.PlayerStates {
		cp := *p
		cp.Hand = append([]deck.Card{}, p.Hand...)
		clone.PlayerStates[uid] = &cp
	}
	clone.CommunityCards = append([]deck.Card{}, s.CommunityCards...)
	clone.HandHistory = append([]string{}, s.HandHistory...)
	if s.CurrentPlayerSeat != nil {
		v := *s.CurrentPlayerSeat
		clone.CurrentPlayerSeat = &v
	}
	if s.LastActionPlayerSeat != nil {
		v := *s.LastActionPlayerSeat
		clone.LastActionPlayerSeat = &v
	}
	return &clone
}

// Sanitized returns a copy of the state safe to send to forUser: the
// deck is stripped and every other player's hole cards are erased. Pass
// an empty forUser to mask all hands (spectators).
func (s *State) Sanitized(forUser string) *State {
	clone := *s
	clone.Deck = nil
	clone.PlayerStates = make(map[string]*PlayerState, len(s.PlayerStates))
	for uid, p := range s.PlayerStates {
		cp := *p
		cp.Hand = append([]deck.Card{}, p.Hand...)
		if uid != forUser {
			cp.Hand = []deck.Card{}
		}
		clone.PlayerStates[uid] = &cp
	}
	clone.CommunityCards = append([]deck.Card{}, s.CommunityCards...)
	clone.HandHistory = append([]string{}, s.HandHistory...)
	if s.CurrentPlayerSeat != nil {
		v := *s.CurrentPlayerSeat
		clone.CurrentPlayerSeat = &v
	}
	if s.LastActionPlayerSeat != nil {
		v := *s.LastActionPlayerSeat
		clone.LastActionPlayerSeat = &v
	}
	return &clone
}

// InProgress reports whether a hand is being played
func (s *State) InProgress() bool {
	switch s.Phase {
	case PhasePreflop, PhaseFlop, PhaseTurn, PhaseRiver, PhaseShowdown:
		return true
	default:
		return false
	}
}

// SeatedUserIDs returns participant user ids ordered by seat
func (s *State) SeatedUserIDs() []string {
	type entry struct {
		uid  string
		seat int
	}
	entries := make([]entry, 0, len(s.PlayerStates))
	for uid, p := range s.PlayerStates {
		entries = append(entries, entry{uid, p.SeatNumber})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seat < entries[j].seat })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.uid
	}
	return out
}
