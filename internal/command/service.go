// Package command is the policy layer in front of the store and the
// room runtimes: every entry point authenticates, checks the room's
// rules, mutates durable state and notifies connected clients.
package command

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/greenfelt/cardroom/internal/joincode"
	"github.com/greenfelt/cardroom/internal/room"
	"github.com/greenfelt/cardroom/internal/store"
)

// Identity is the authenticated caller, produced by the out-of-scope
// auth layer
type Identity struct {
	UserID        string
	Username      string
	EmailVerified bool
}

// Realtime is the slice of the room hub the command surface drives
type Realtime interface {
	StartHand(ctx context.Context, roomID string) error
	RoomStateChanged(ctx context.Context, roomID string)
	RoomClosed(roomID string)
	UserKicked(roomID, userID, reason string)
}

// Service implements the command surface
type Service struct {
	store    store.Store
	realtime Realtime
	logger   *log.Logger
}

func NewService(st store.Store, rt Realtime, logger *log.Logger) *Service {
	return &Service{store: st, realtime: rt, logger: logger.WithPrefix("command")}
}

const maxSeats = 8

// CreateRoom creates a room with the caller as owner in seat 1
func (s *Service) CreateRoom(ctx context.Context, id Identity, cfg store.RoomConfig) (store.Room, error) {
	if !id.EmailVerified {
		return store.Room{}, errf(KindForbidden, "email address must be verified")
	}
	if err := s.requireNoActiveRoom(ctx, id.UserID); err != nil {
		return store.Room{}, err
	}
	if cfg.MaxPlayers < 2 || cfg.MaxPlayers > maxSeats {
		return store.Room{}, errf(KindInvalidInput, "maxPlayers must be between 2 and %d", maxSeats)
	}
	if cfg.SmallBlind <= 0 || cfg.BigBlind <= cfg.SmallBlind {
		return store.Room{}, errf(KindInvalidInput, "bigBlind must exceed smallBlind")
	}
	if cfg.StartingStack < cfg.BigBlind {
		return store.Room{}, errf(KindInvalidInput, "startingStack must cover the big blind")
	}
	if cfg.Ante < 0 || cfg.Ante > cfg.StartingStack {
		return store.Room{}, errf(KindInvalidInput, "ante must be between 0 and the starting stack")
	}

	newRoom := store.Room{
		ID:      joincode.NewID(),
		OwnerID: id.UserID,
		Config:  cfg,
	}

	// The join code is unique per room; on the rare collision, retry
	// with a fresh code.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		newRoom.JoinCode = joincode.New()
		if err = s.store.CreateRoom(ctx, newRoom); err == nil {
			break
		}
	}
	if err != nil {
		return store.Room{}, storeErr(err, "room")
	}

	if err := s.store.PutMember(ctx, newRoom.ID, store.MemberInfo{
		UserID:       id.UserID,
		Username:     id.Username,
		SeatNumber:   1,
		CurrentStack: cfg.StartingStack,
	}); err != nil {
		return store.Room{}, storeErr(err, "room membership")
	}

	s.logger.Info("room created", "room", newRoom.ID, "owner", id.UserID)
	return newRoom, nil
}

// JoinRoom seats the caller at the lowest unused seat of the room with
// the given join code
func (s *Service) JoinRoom(ctx context.Context, id Identity, joinCode string) (store.Room, error) {
	if !id.EmailVerified {
		return store.Room{}, errf(KindForbidden, "email address must be verified")
	}
	if err := s.requireNoActiveRoom(ctx, id.UserID); err != nil {
		return store.Room{}, err
	}

	target, err := s.store.RoomByJoinCode(ctx, joinCode)
	if err != nil {
		return store.Room{}, storeErr(err, "room")
	}

	members, err := s.store.Members(ctx, target.ID)
	if err != nil {
		return store.Room{}, storeErr(err, "room membership")
	}
	if _, ok := members[id.UserID]; ok {
		// Rejoining a room previously left keeps the old seat
		return target, nil
	}

	seat := lowestFreeSeat(members, target.Config.MaxPlayers)
	if seat == 0 {
		return store.Room{}, errf(KindConflict, "room is full")
	}

	if err := s.store.PutMember(ctx, target.ID, store.MemberInfo{
		UserID:       id.UserID,
		Username:     id.Username,
		SeatNumber:   seat,
		CurrentStack: target.Config.StartingStack,
	}); err != nil {
		return store.Room{}, storeErr(err, "room membership")
	}

	s.realtime.RoomStateChanged(ctx, target.ID)
	s.logger.Info("member joined", "room", target.ID, "user", id.UserID, "seat", seat)
	return target, nil
}

// LeaveRoom marks the caller inactive. Their seat and stack are kept in
// case they rejoin.
func (s *Service) LeaveRoom(ctx context.Context, id Identity, roomID string) error {
	if _, err := s.store.Member(ctx, roomID, id.UserID); err != nil {
		return storeErr(err, "room membership")
	}
	if err := s.requireNoHandInProgress(ctx, roomID); err != nil {
		return err
	}
	if err := s.store.UpdateMemberFields(ctx, roomID, id.UserID, map[string]any{
		store.FieldIsActive:    false,
		store.FieldWantsToPlay: false,
	}); err != nil {
		return storeErr(err, "room membership")
	}
	s.realtime.RoomStateChanged(ctx, roomID)
	s.logger.Info("member left", "room", roomID, "user", id.UserID)
	return nil
}

// CloseRoom deletes the room and every namespace under it
func (s *Service) CloseRoom(ctx context.Context, id Identity, roomID string) error {
	if err := s.requireOwner(ctx, id, roomID); err != nil {
		return err
	}
	if err := s.requireNoHandInProgress(ctx, roomID); err != nil {
		return err
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return storeErr(err, "room")
	}
	s.realtime.RoomClosed(roomID)
	s.logger.Info("room closed", "room", roomID)
	return nil
}

// StartGame begins the next hand
func (s *Service) StartGame(ctx context.Context, id Identity, roomID string) error {
	if err := s.requireOwner(ctx, id, roomID); err != nil {
		return err
	}
	err := s.realtime.StartHand(ctx, roomID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, room.ErrHandInProgress):
		return errf(KindConflict, "a hand is already in progress")
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return errf(KindConflict, "need at least 2 ready players")
	default:
		s.logger.Error("start hand", "room", roomID, "error", err)
		return errf(KindInternal, "could not start the hand")
	}
}

// TogglePlayStatus opts the caller in or out of the next hand
func (s *Service) TogglePlayStatus(ctx context.Context, id Identity, roomID string, want bool) error {
	member, err := s.store.Member(ctx, roomID, id.UserID)
	if err != nil {
		return storeErr(err, "room membership")
	}
	if !member.IsActive {
		return errf(KindConflict, "must be connected to the room")
	}
	if err := s.requireNoHandInProgress(ctx, roomID); err != nil {
		return err
	}
	if want {
		target, err := s.store.Room(ctx, roomID)
		if err != nil {
			return storeErr(err, "room")
		}
		if target.Config.Ante > 0 && member.CurrentStack < target.Config.Ante {
			return errf(KindConflict, "stack cannot cover the ante")
		}
	}
	if err := s.store.UpdateMemberFields(ctx, roomID, id.UserID,
		map[string]any{store.FieldWantsToPlay: want}); err != nil {
		return storeErr(err, "room membership")
	}
	s.realtime.RoomStateChanged(ctx, roomID)
	return nil
}

// KickUser removes a member from the room entirely
func (s *Service) KickUser(ctx context.Context, id Identity, roomID, targetID string) error {
	if err := s.requireOwner(ctx, id, roomID); err != nil {
		return err
	}
	if targetID == id.UserID {
		return errf(KindForbidden, "cannot kick yourself")
	}
	if err := s.requireNoHandInProgress(ctx, roomID); err != nil {
		return err
	}
	if _, err := s.store.Member(ctx, roomID, targetID); err != nil {
		return storeErr(err, "room membership")
	}
	if err := s.store.RemoveMember(ctx, roomID, targetID); err != nil {
		return storeErr(err, "room membership")
	}
	s.realtime.UserKicked(roomID, targetID, "removed by the room owner")
	s.realtime.RoomStateChanged(ctx, roomID)
	s.logger.Info("member kicked", "room", roomID, "user", targetID)
	return nil
}

// TransferChips moves chips between two active members, outside a hand
func (s *Service) TransferChips(ctx context.Context, id Identity, roomID, toID string, amount int) error {
	if amount <= 0 {
		return errf(KindInvalidInput, "amount must be positive")
	}
	if toID == id.UserID {
		return errf(KindInvalidInput, "cannot transfer chips to yourself")
	}
	if err := s.requireNoHandInProgress(ctx, roomID); err != nil {
		return err
	}

	from, err := s.store.Member(ctx, roomID, id.UserID)
	if err != nil {
		return storeErr(err, "room membership")
	}
	to, err := s.store.Member(ctx, roomID, toID)
	if err != nil {
		return storeErr(err, "room membership")
	}
	if !from.IsActive || !to.IsActive {
		return errf(KindConflict, "both members must be connected")
	}
	if from.CurrentStack < amount {
		return errf(KindConflict, "insufficient chips")
	}

	if err := s.store.UpdateMemberFields(ctx, roomID, id.UserID,
		map[string]any{store.FieldCurrentStack: from.CurrentStack - amount}); err != nil {
		return storeErr(err, "room membership")
	}
	if err := s.store.UpdateMemberFields(ctx, roomID, toID,
		map[string]any{store.FieldCurrentStack: to.CurrentStack + amount}); err != nil {
		return storeErr(err, "room membership")
	}

	s.realtime.RoomStateChanged(ctx, roomID)
	s.logger.Info("chips transferred", "room", roomID, "from", id.UserID, "to", toID, "amount", amount)
	return nil
}

// UpdateMaxPlayers grows the room's seat count. Shrinking is never
// allowed.
func (s *Service) UpdateMaxPlayers(ctx context.Context, id Identity, roomID string, n int) error {
	if err := s.requireOwner(ctx, id, roomID); err != nil {
		return err
	}
	target, err := s.store.Room(ctx, roomID)
	if err != nil {
		return storeErr(err, "room")
	}
	if n <= target.Config.MaxPlayers {
		return errf(KindInvalidInput, "maxPlayers can only grow")
	}
	if n > maxSeats {
		return errf(KindInvalidInput, "maxPlayers cannot exceed %d", maxSeats)
	}
	cfg := target.Config
	cfg.MaxPlayers = n
	if err := s.store.UpdateRoomConfig(ctx, roomID, cfg); err != nil {
		return storeErr(err, "room")
	}
	s.realtime.RoomStateChanged(ctx, roomID)
	return nil
}

// UpdateRoomFilter toggles the room's profanity filter
func (s *Service) UpdateRoomFilter(ctx context.Context, id Identity, roomID string, filter bool) error {
	if err := s.requireOwner(ctx, id, roomID); err != nil {
		return err
	}
	target, err := s.store.Room(ctx, roomID)
	if err != nil {
		return storeErr(err, "room")
	}
	cfg := target.Config
	cfg.FilterProfanity = filter
	if err := s.store.UpdateRoomConfig(ctx, roomID, cfg); err != nil {
		return storeErr(err, "room")
	}
	return nil
}

func (s *Service) requireOwner(ctx context.Context, id Identity, roomID string) error {
	target, err := s.store.Room(ctx, roomID)
	if err != nil {
		return storeErr(err, "room")
	}
	if target.OwnerID != id.UserID {
		return errf(KindForbidden, "only the room owner may do this")
	}
	return nil
}

func (s *Service) requireNoActiveRoom(ctx context.Context, userID string) error {
	_, err := s.store.RoomByMember(ctx, userID)
	switch {
	case err == nil:
		return errf(KindConflict, "already in a room")
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return storeErr(err, "room membership")
	}
}

func (s *Service) requireNoHandInProgress(ctx context.Context, roomID string) error {
	state, err := s.store.GameState(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err, "game state")
	}
	if state.InProgress() {
		return errf(KindConflict, "a hand is in progress")
	}
	return nil
}

func lowestFreeSeat(members map[string]store.MemberInfo, maxPlayers int) int {
	taken := make(map[int]bool, len(members))
	for _, m := range members {
		taken[m.SeatNumber] = true
	}
	for seat := 1; seat <= maxPlayers; seat++ {
		if !taken[seat] {
			return seat
		}
	}
	return 0
}
