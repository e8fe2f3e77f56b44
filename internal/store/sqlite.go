package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/greenfelt/cardroom/internal/game"
)

// SQLiteStore implements Store on a local sqlite database
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (and migrates) a sqlite-backed store. Pass ":memory:"
// for tests.
func NewSQLite(path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// sqlite serializes writers anyway, and a second pooled connection
	// to :memory: would see its own empty database
	db.SetMaxOpenConns(1)
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &SQLiteStore{db: db, ttl: ttl}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			join_code TEXT NOT NULL UNIQUE,
			config TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_members (
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			seat_number INTEGER NOT NULL,
			current_stack INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			wants_to_play INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (room_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS room_games (
			room_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_chat (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_room_chat_room ON room_chat (room_id, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

// touch refreshes the room TTL; every write funnels through here
func (s *SQLiteStore) touch(ctx context.Context, tx *sql.Tx, roomID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE rooms SET expires_at = ? WHERE id = ?`,
		time.Now().Add(s.ttl).UTC(), roomID)
	return err
}

func (s *SQLiteStore) withTx(ctx context.Context, roomID string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if roomID != "" {
		if err := s.touch(ctx, tx, roomID); err != nil {
			return fmt.Errorf("refresh ttl: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateRoom(ctx context.Context, room Room) error {
	cfg, err := json.Marshal(room.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return s.withTx(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (id, owner_id, join_code, config, expires_at) VALUES (?, ?, ?, ?, ?)`,
			room.ID, room.OwnerID, room.JoinCode, string(cfg), time.Now().Add(s.ttl).UTC())
		return err
	})
}

func (s *SQLiteStore) scanRoom(row *sql.Row) (Room, error) {
	var room Room
	var cfg string
	err := row.Scan(&room.ID, &room.OwnerID, &room.JoinCode, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("scan room: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &room.Config); err != nil {
		return Room{}, fmt.Errorf("decode config: %w", err)
	}
	return room, nil
}

func (s *SQLiteStore) Room(ctx context.Context, roomID string) (Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, join_code, config FROM rooms WHERE id = ?`, roomID))
}

func (s *SQLiteStore) RoomByJoinCode(ctx context.Context, code string) (Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, join_code, config FROM rooms WHERE join_code = ?`, code))
}

func (s *SQLiteStore) RoomByMember(ctx context.Context, userID string) (Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx,
		`SELECT r.id, r.owner_id, r.join_code, r.config
		 FROM rooms r JOIN room_members m ON m.room_id = r.id
		 WHERE m.user_id = ? AND m.is_active = 1`, userID))
}

func (s *SQLiteStore) UpdateRoomConfig(ctx context.Context, roomID string, cfg RoomConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return s.withTx(ctx, roomID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE rooms SET config = ? WHERE id = ?`, string(data), roomID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DeleteRoom removes the room and every dependent namespace atomically
func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.withTx(ctx, "", func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM room_chat WHERE room_id = ?`,
			`DELETE FROM room_games WHERE room_id = ?`,
			`DELETE FROM room_members WHERE room_id = ?`,
			`DELETE FROM rooms WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, roomID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Members(ctx context.Context, roomID string) (map[string]MemberInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, seat_number, current_stack, is_active, wants_to_play
		 FROM room_members WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make(map[string]MemberInfo)
	for rows.Next() {
		var m MemberInfo
		if err := rows.Scan(&m.UserID, &m.Username, &m.SeatNumber, &m.CurrentStack, &m.IsActive, &m.WantsToPlayNextHand); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members[m.UserID] = m
	}
	return members, rows.Err()
}

func (s *SQLiteStore) Member(ctx context.Context, roomID, userID string) (MemberInfo, error) {
	var m MemberInfo
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, seat_number, current_stack, is_active, wants_to_play
		 FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID).
		Scan(&m.UserID, &m.Username, &m.SeatNumber, &m.CurrentStack, &m.IsActive, &m.WantsToPlayNextHand)
	if errors.Is(err, sql.ErrNoRows) {
		return MemberInfo{}, ErrNotFound
	}
	if err != nil {
		return MemberInfo{}, fmt.Errorf("scan member: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) PutMember(ctx context.Context, roomID string, m MemberInfo) error {
	return s.withTx(ctx, roomID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id, username, seat_number, current_stack, is_active, wants_to_play)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(room_id, user_id) DO UPDATE SET
				username = excluded.username,
				seat_number = excluded.seat_number,
				current_stack = excluded.current_stack,
				is_active = excluded.is_active,
				wants_to_play = excluded.wants_to_play`,
			roomID, m.UserID, m.Username, m.SeatNumber, m.CurrentStack, m.IsActive, m.WantsToPlayNextHand)
		return err
	})
}

// UpdateMemberFields applies a field-level batch update in one
// statement, HSET-style
func (s *SQLiteStore) UpdateMemberFields(ctx context.Context, roomID, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	columns := map[string]string{
		FieldSeatNumber:   "seat_number",
		FieldCurrentStack: "current_stack",
		FieldIsActive:     "is_active",
		FieldWantsToPlay:  "wants_to_play",
	}

	set := ""
	args := make([]any, 0, len(fields)+2)
	for field, value := range fields {
		col, ok := columns[field]
		if !ok {
			return fmt.Errorf("unknown member field %q", field)
		}
		if set != "" {
			set += ", "
		}
		set += col + " = ?"
		args = append(args, value)
	}
	args = append(args, roomID, userID)

	return s.withTx(ctx, roomID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE room_members SET `+set+` WHERE room_id = ? AND user_id = ?`, args...)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *SQLiteStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	return s.withTx(ctx, roomID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
		return err
	})
}

func (s *SQLiteStore) GameState(ctx context.Context, roomID string) (*game.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM room_games WHERE room_id = ?`, roomID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query game state: %w", err)
	}
	var state game.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStore) SetGameState(ctx context.Context, roomID string, state *game.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}
	return s.withTx(ctx, roomID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO room_games (room_id, state, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(room_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
			roomID, string(data), time.Now().UTC())
		return err
	})
}

func (s *SQLiteStore) DeleteGameState(ctx context.Context, roomID string) error {
	return s.withTx(ctx, roomID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM room_games WHERE room_id = ?`, roomID)
		return err
	})
}

// AppendChat pushes a message and trims the room's history to ChatCap,
// oldest messages dropped first
func (s *SQLiteStore) AppendChat(ctx context.Context, msg ChatMessage) error {
	return s.withTx(ctx, msg.RoomID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO room_chat (id, room_id, user_id, username, message, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.RoomID, msg.UserID, msg.Username, msg.Message, msg.Timestamp.UTC())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM room_chat WHERE room_id = ? AND id NOT IN (
				SELECT id FROM room_chat WHERE room_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?
			)`, msg.RoomID, msg.RoomID, ChatCap)
		return err
	})
}

// ChatHistory returns up to ChatCap retained messages, oldest first
func (s *SQLiteStore) ChatHistory(ctx context.Context, roomID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, username, message, timestamp
		 FROM room_chat WHERE room_id = ? ORDER BY timestamp ASC, id ASC LIMIT ?`,
		roomID, ChatCap)
	if err != nil {
		return nil, fmt.Errorf("query chat: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Message, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PurgeExpired deletes rooms whose TTL lapsed, with all their
// namespaces, and reports how many rooms were removed
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM rooms WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("query expired: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if err := s.DeleteRoom(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
