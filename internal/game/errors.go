package game

import "errors"

// Action validation errors. Each distinct rule violation carries its
// own sentinel so the room runtime can report precisely what was wrong
// to the acting player only.
var (
	ErrNotInHand      = errors.New("not a participant in this hand")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrAlreadyFolded  = errors.New("already folded")
	ErrAlreadyAllIn   = errors.New("already all-in")
	ErrSittingOut     = errors.New("sitting out this hand")
	ErrCannotCheck    = errors.New("cannot check facing a bet")
	ErrNothingToCall  = errors.New("nothing to call")
	ErrCannotBet      = errors.New("cannot bet, there is already a bet to raise")
	ErrCannotRaise    = errors.New("cannot raise, there is no bet yet")
	ErrBetTooSmall    = errors.New("bet below minimum")
	ErrRaiseTooSmall  = errors.New("raise below minimum")
	ErrInsufficient   = errors.New("amount exceeds available chips")
	ErrHandNotRunning = errors.New("no betting in progress")
	ErrUnknownAction  = errors.New("unknown action")
)

// ErrInternal marks invariant violations such as deck exhaustion
// mid-deal. The hand is aborted and committed chips are refunded before
// this surfaces.
var ErrInternal = errors.New("internal hand invariant violated")

// IsInvalidAction reports whether err is a player rule violation rather
// than a server fault
func IsInvalidAction(err error) bool {
	for _, e := range []error{
		ErrNotInHand, ErrNotYourTurn, ErrAlreadyFolded, ErrAlreadyAllIn,
		ErrSittingOut, ErrCannotCheck, ErrNothingToCall, ErrCannotBet,
		ErrCannotRaise, ErrBetTooSmall, ErrRaiseTooSmall, ErrInsufficient,
		ErrHandNotRunning, ErrUnknownAction,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
