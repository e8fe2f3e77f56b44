package game

import (
	"fmt"
	"strings"

	"github.com/greenfelt/cardroom/internal/deck"
	"github.com/greenfelt/cardroom/internal/evaluator"
)

// ActionType represents a betting action
type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionBet   ActionType = "bet"
	ActionRaise ActionType = "raise"
)

// Action is a player's betting decision. For bet and raise, Amount is
// the target total for the current street (the player's new
// currentBet), not the increment.
type Action struct {
	Type   ActionType `json:"action"`
	Amount int        `json:"amount,omitempty"`
}

// Apply validates and applies an action by userID, then advances the
// hand: turn rotation, street progression, board run-out and showdown
// as required. Invalid actions leave the state untouched.
func (s *State) Apply(userID string, action Action) error {
	if !s.InProgress() || s.Phase == PhaseShowdown {
		return ErrHandNotRunning
	}

	p, ok := s.PlayerStates[userID]
	if !ok {
		return ErrNotInHand
	}
	if s.CurrentPlayerSeat == nil || *s.CurrentPlayerSeat != p.SeatNumber {
		return ErrNotYourTurn
	}
	switch {
	case p.IsFolded:
		return ErrAlreadyFolded
	case p.IsAllIn:
		return ErrAlreadyAllIn
	case p.IsSittingOut:
		return ErrSittingOut
	}

	switch action.Type {
	case ActionFold:
		p.IsFolded = true
		s.record(fmt.Sprintf("%s folds", p.Username))

	case ActionCheck:
		if p.CurrentBet < s.CurrentBet {
			return fmt.Errorf("%w: %d to call", ErrCannotCheck, s.CurrentBet-p.CurrentBet)
		}
		s.record(fmt.Sprintf("%s checks", p.Username))

	case ActionCall:
		if p.CurrentBet >= s.CurrentBet {
			return ErrNothingToCall
		}
		paid := s.commit(p, s.CurrentBet-p.CurrentBet)
		p.CurrentBet += paid
		if p.IsAllIn {
			s.record(fmt.Sprintf("%s calls %d and is all-in", p.Username, paid))
		} else {
			s.record(fmt.Sprintf("%s calls %d", p.Username, paid))
		}

	case ActionBet:
		if s.CurrentBet > 0 {
			return ErrCannotBet
		}
		if err := s.applyAggression(p, action.Amount, true); err != nil {
			return err
		}

	case ActionRaise:
		if s.CurrentBet == 0 {
			return ErrCannotRaise
		}
		if err := s.applyAggression(p, action.Amount, false); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}

	p.HasActed = true
	return s.finishOrAdvance()
}

// applyAggression handles bet and raise with target-total semantics
func (s *State) applyAggression(p *PlayerState, amount int, opening bool) error {
	available := p.Stack + p.CurrentBet
	if amount > available {
		return fmt.Errorf("%w: have %d", ErrInsufficient, available)
	}
	allIn := amount == available

	if opening {
		minBet := s.Config.BigBlind
		if available < minBet {
			minBet = available
		}
		if amount < minBet && !allIn {
			return fmt.Errorf("%w: minimum %d", ErrBetTooSmall, minBet)
		}
	} else {
		if amount <= s.CurrentBet {
			return fmt.Errorf("%w: must exceed %d", ErrRaiseTooSmall, s.CurrentBet)
		}
		if amount-s.CurrentBet < s.MinRaiseAmount && !allIn {
			return fmt.Errorf("%w: minimum raise to %d", ErrRaiseTooSmall, s.CurrentBet+s.MinRaiseAmount)
		}
	}

	increment := amount - s.CurrentBet
	paid := s.commit(p, amount-p.CurrentBet)
	p.CurrentBet += paid
	s.CurrentBet = amount
	seat := p.SeatNumber
	s.LastActionPlayerSeat = &seat

	// A full-size bet or raise re-opens the action; a short all-in does
	// not bump the minimum raise and does not reset hasActed for players
	// who already matched.
	if increment >= s.MinRaiseAmount {
		s.MinRaiseAmount = increment
		for _, other := range s.PlayerStates {
			if other != p && other.CanAct() {
				other.HasActed = false
			}
		}
	}

	verb := "raises to"
	if opening {
		verb = "bets"
	}
	if allIn {
		s.record(fmt.Sprintf("%s %s %d and is all-in", p.Username, verb, amount))
	} else {
		s.record(fmt.Sprintf("%s %s %d", p.Username, verb, amount))
	}
	return nil
}

// isBettingRoundOver implements the closure test: at most one player
// left in the hand, or every able player has acted and every non-folded
// player has matched the street bet or is all-in.
func (s *State) isBettingRoundOver() bool {
	if s.countInHand() <= 1 {
		return true
	}
	for _, p := range s.PlayerStates {
		if !p.InHand() {
			continue
		}
		if !p.IsAllIn && !p.HasActed {
			return false
		}
		if !p.IsAllIn && p.CurrentBet != s.CurrentBet {
			return false
		}
	}
	return true
}

// finishOrAdvance rotates the turn or, when the round closed, moves the
// hand forward: uncontested award, next street, board run-out or
// showdown.
func (s *State) finishOrAdvance() error {
	if s.countInHand() <= 1 {
		return s.finishUncontested()
	}

	if !s.isBettingRoundOver() {
		from := s.BigBlindSeat
		if s.CurrentPlayerSeat != nil {
			from = *s.CurrentPlayerSeat
		}
		s.CurrentPlayerSeat = s.nextActorSeat(from)
		if s.CurrentPlayerSeat != nil {
			return nil
		}
		// Nobody can respond; fall through to run the board out
	}

	if s.countAbleToAct() < 2 {
		// No further betting is possible; deal the remaining board in
		// one pass and go straight to showdown.
		if err := s.runOutBoard(); err != nil {
			return err
		}
		return s.showdown()
	}

	if s.Phase == PhaseRiver {
		return s.showdown()
	}
	return s.advanceStreet()
}

// advanceStreet burns and deals the next community cards and opens a
// fresh betting round clockwise from the dealer
func (s *State) advanceStreet() error {
	d := deck.FromCards(s.Deck)

	var count int
	var next Phase
	switch s.Phase {
	case PhasePreflop:
		next, count = PhaseFlop, 3
	case PhaseFlop:
		next, count = PhaseTurn, 1
	case PhaseTurn:
		next, count = PhaseRiver, 1
	default:
		return fmt.Errorf("%w: advance from %s", ErrInternal, s.Phase)
	}

	if !d.Burn() {
		return s.abort(fmt.Errorf("%w: deck exhausted burning before %s", ErrInternal, next))
	}
	cards, ok := d.PopN(count)
	if !ok {
		return s.abort(fmt.Errorf("%w: deck exhausted dealing %s", ErrInternal, next))
	}
	s.CommunityCards = append(s.CommunityCards, cards...)
	s.Deck = d.Cards()
	s.Phase = next
	s.record(fmt.Sprintf("%s: %s", next, formatCards(s.CommunityCards)))

	for _, p := range s.PlayerStates {
		p.CurrentBet = 0
		if p.CanAct() {
			p.HasActed = false
		}
	}
	s.CurrentBet = 0
	s.MinRaiseAmount = s.Config.BigBlind
	s.LastActionPlayerSeat = nil
	s.CurrentPlayerSeat = s.nextActorSeat(s.DealerSeat)
	return nil
}

// runOutBoard deals any remaining community cards without betting
func (s *State) runOutBoard() error {
	d := deck.FromCards(s.Deck)
	for len(s.CommunityCards) < 5 {
		if !d.Burn() {
			return s.abort(fmt.Errorf("%w: deck exhausted burning during run-out", ErrInternal))
		}
		count := 1
		if len(s.CommunityCards) == 0 {
			count = 3
		}
		cards, ok := d.PopN(count)
		if !ok {
			return s.abort(fmt.Errorf("%w: deck exhausted during run-out", ErrInternal))
		}
		s.CommunityCards = append(s.CommunityCards, cards...)
	}
	s.Deck = d.Cards()
	if len(s.CommunityCards) > 0 {
		s.record(fmt.Sprintf("board: %s", formatCards(s.CommunityCards)))
	}
	return nil
}

// finishUncontested awards the whole pot to the single remaining player
// with no card reveal and no evaluation
func (s *State) finishUncontested() error {
	var winner *PlayerState
	for _, p := range s.PlayerStates {
		if p.InHand() {
			winner = p
			break
		}
	}
	if winner == nil {
		return s.abort(fmt.Errorf("%w: no player left to award pot", ErrInternal))
	}

	winner.Stack += s.Pot
	s.record(fmt.Sprintf("%s wins %d uncontested", winner.Username, s.Pot))
	s.endHand()
	return nil
}

// showdown builds the pots, evaluates every eligible hand per pot and
// distributes each pot among its winners, odd chips going one-by-one
// clockwise from the small blind
func (s *State) showdown() error {
	s.Phase = PhaseShowdown
	s.CurrentPlayerSeat = nil

	pots := BuildPots(s.PlayerStates)
	for i, pot := range pots {
		label := "main pot"
		if i > 0 {
			label = fmt.Sprintf("side pot %d", i)
		}

		if len(pot.EligiblePlayers) == 1 {
			p := s.PlayerStates[pot.EligiblePlayers[0]]
			p.Stack += pot.Amount
			s.record(fmt.Sprintf("%s wins %d from %s uncontested", p.Username, pot.Amount, label))
			continue
		}

		winners, result := s.bestHands(pot.EligiblePlayers)
		if len(winners) == 0 {
			return s.abort(fmt.Errorf("%w: pot with no winner", ErrInternal))
		}

		share, remainder := splitAmount(pot.Amount, len(winners))
		ordered := s.winnerSeatsClockwise(winners)
		for j, uid := range ordered {
			p := s.PlayerStates[uid]
			won := share
			if j < remainder {
				won++
			}
			p.Stack += won
			s.record(fmt.Sprintf("%s wins %d from %s with %s", p.Username, won, label, result.RankName))
		}
	}

	s.endHand()
	return nil
}

// bestHands evaluates the eligible players and returns the set with the
// best hand plus that hand's evaluation
func (s *State) bestHands(eligible []string) ([]string, evaluator.Result) {
	var best evaluator.Result
	var winners []string
	for _, uid := range eligible {
		p := s.PlayerStates[uid]
		if !p.InHand() {
			continue
		}
		r := evaluator.Evaluate(append(append([]deck.Card{}, p.Hand...), s.CommunityCards...))
		if len(winners) == 0 {
			best, winners = r, []string{uid}
			continue
		}
		switch cmp := r.Compare(best); {
		case cmp > 0:
			best, winners = r, []string{uid}
		case cmp == 0:
			winners = append(winners, uid)
		}
	}
	return winners, best
}

// winnerSeatsClockwise orders winner user ids by seat, first seat
// clockwise from the small blind first
func (s *State) winnerSeatsClockwise(winners []string) []string {
	seats := make([]int, 0, len(winners))
	bySeat := make(map[int]string, len(winners))
	for _, uid := range winners {
		seat := s.PlayerStates[uid].SeatNumber
		seats = append(seats, seat)
		bySeat[seat] = uid
	}
	ordered := s.seatOrderFromSmallBlind(seats)
	out := make([]string, len(ordered))
	for i, seat := range ordered {
		out[i] = bySeat[seat]
	}
	return out
}

// endHand resets per-player hand fields per the end_hand contract
func (s *State) endHand() {
	for _, p := range s.PlayerStates {
		p.Hand = []deck.Card{}
		p.CurrentBet = 0
		p.TotalBet = 0
		p.HasActed = false
		p.IsFolded = false
		p.IsAllIn = false
	}
	s.Pot = 0
	s.CurrentBet = 0
	s.CurrentPlayerSeat = nil
	s.Phase = PhaseEndHand
	s.record("hand complete")
}

// abort unwinds a hand after an invariant violation: every player's
// committed chips go back to their stack and the hand ends. The
// original error is returned wrapped in ErrInternal.
func (s *State) abort(cause error) error {
	for _, p := range s.PlayerStates {
		p.Stack += p.TotalBet
	}
	s.record(fmt.Sprintf("hand aborted: %v", cause))
	s.endHand()
	return cause
}

func formatCards(cards []deck.Card) string {
	strs := make([]string, len(cards))
	for i, c := range cards {
		strs[i] = c.String()
	}
	return strings.Join(strs, " ")
}
