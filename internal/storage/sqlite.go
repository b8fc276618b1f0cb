package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"keyword_bot/internal/model"
	"keyword_bot/migrations"
)

const (
	timeLayout      = "2006-01-02T15:04:05Z"
	defaultPageSize = 200
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db       *sql.DB
	pageSize int
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, pageSize: defaultPageSize}, nil
}

// SetPageSize overrides how many subscribers StreamSubscribers loads per query.
func (s *SQLite) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertRoom creates a room unless one with the same ID already exists.
// It reports whether a row was inserted and fills in the timestamps.
func (s *SQLite) InsertRoom(ctx context.Context, room *model.Room) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (room_id, name, kind, is_private, migrated_from, created_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (room_id) DO NOTHING`,
		room.ID, room.Name, string(room.Kind), boolToInt(room.IsPrivate), room.MigratedFrom, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	room.CreatedAt, _ = time.Parse(timeLayout, now)
	room.LastUpdated = room.CreatedAt
	return true, nil
}

// GetRoom returns a single room by its ID.
func (s *SQLite) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT room_id, name, kind, is_private, migrated_from, created_at, last_updated
		 FROM rooms WHERE room_id = ?`, id,
	)
	return scanRoom(row)
}

// ListRooms returns every live room ordered by name.
func (s *SQLite) ListRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, name, kind, is_private, migrated_from, created_at, last_updated
		 FROM rooms ORDER BY name, room_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRooms(rows)
}

// ListRoomsByName returns all rooms whose name equals name.
func (s *SQLite) ListRoomsByName(ctx context.Context, name string) ([]model.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, name, kind, is_private, migrated_from, created_at, last_updated
		 FROM rooms WHERE name = ? ORDER BY room_id`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("query rooms by name: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRooms(rows)
}

// UpdateRoom writes only the fields set in changes plus last_updated.
// It reports whether the room exists.
func (s *SQLite) UpdateRoom(ctx context.Context, id int64, changes model.RoomChanges) (bool, error) {
	sets := []string{"last_updated = ?"}
	args := []any{time.Now().UTC().Format(timeLayout)}
	if changes.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *changes.Name)
	}
	if changes.Kind != nil {
		sets = append(sets, "kind = ?")
		args = append(args, string(*changes.Kind))
	}
	if changes.IsPrivate != nil {
		sets = append(sets, "is_private = ?")
		args = append(args, boolToInt(*changes.IsPrivate))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET `+strings.Join(sets, ", ")+` WHERE room_id = ?`, args...,
	)
	if err != nil {
		return false, fmt.Errorf("update room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteRoom removes a room. Deleting a missing room is not an error.
func (s *SQLite) DeleteRoom(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpsertSubscription marks the user as tracking the room, keeping any keywords
// from an earlier (possibly muted) subscription.
func (s *SQLite) UpsertSubscription(ctx context.Context, userID, roomID int64, roomName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, room_id, subscribed, keywords, room_name)
		 VALUES (?, ?, 1, '[]', ?)
		 ON CONFLICT (user_id, room_id) DO UPDATE SET subscribed = 1, room_name = excluded.room_name`,
		userID, roomID, roomName,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns the subscription of a user for a room.
func (s *SQLite) GetSubscription(ctx context.Context, userID, roomID int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, room_id, subscribed, keywords, room_name, last_match_time
		 FROM subscriptions WHERE user_id = ? AND room_id = ?`, userID, roomID,
	)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SetSubscribed toggles the subscribed flag. It reports whether the subscription exists.
func (s *SQLite) SetSubscribed(ctx context.Context, userID, roomID int64, subscribed bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET subscribed = ? WHERE user_id = ? AND room_id = ?`,
		boolToInt(subscribed), userID, roomID,
	)
	if err != nil {
		return false, fmt.Errorf("set subscribed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CompareAndSwapKeywords replaces the keyword set only if it still equals old.
// It reports whether the swap happened.
func (s *SQLite) CompareAndSwapKeywords(ctx context.Context, userID, roomID int64, old, updated []string) (bool, error) {
	oldJSON, err := encodeKeywords(old)
	if err != nil {
		return false, err
	}
	newJSON, err := encodeKeywords(updated)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET keywords = ?
		 WHERE user_id = ? AND room_id = ? AND keywords = ?`,
		newJSON, userID, roomID, oldJSON,
	)
	if err != nil {
		return false, fmt.Errorf("swap keywords: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// TouchLastMatch records when the user was last notified for the room.
func (s *SQLite) TouchLastMatch(ctx context.Context, userID, roomID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_match_time = ? WHERE user_id = ? AND room_id = ?`,
		at.UTC().Format(timeLayout), userID, roomID,
	)
	if err != nil {
		return fmt.Errorf("touch last match: %w", err)
	}
	return nil
}

// DeleteSubscription removes one subscription. It reports whether it existed.
func (s *SQLite) DeleteSubscription(ctx context.Context, userID, roomID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND room_id = ?`, userID, roomID,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListSubscriptionsByUser returns all subscriptions of a user ordered by room name.
func (s *SQLite) ListSubscriptionsByUser(ctx context.Context, userID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, room_id, subscribed, keywords, room_name, last_match_time
		 FROM subscriptions WHERE user_id = ? ORDER BY room_name, room_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query user subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListSubscriptionsByRoom returns the subscriptions for a room ordered by user.
func (s *SQLite) ListSubscriptionsByRoom(ctx context.Context, roomID int64, subscribedOnly bool) ([]model.Subscription, error) {
	query := `SELECT user_id, room_id, subscribed, keywords, room_name, last_match_time
		 FROM subscriptions WHERE room_id = ?`
	if subscribedOnly {
		query += ` AND subscribed = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query room subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// StreamSubscribers yields the active subscriptions of a room one page at a time.
// No cursor is held open while the caller handles an item, so the caller may
// write to the store between iterations.
func (s *SQLite) StreamSubscribers(ctx context.Context, roomID int64) iter.Seq2[model.Subscription, error] {
	return func(yield func(model.Subscription, error) bool) {
		after := int64(math.MinInt64)
		for {
			page, err := s.subscriberPage(ctx, roomID, after)
			if err != nil {
				yield(model.Subscription{}, err)
				return
			}
			for _, sub := range page {
				if !yield(sub, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = page[len(page)-1].UserID
		}
	}
}

func (s *SQLite) subscriberPage(ctx context.Context, roomID, after int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, room_id, subscribed, keywords, room_name, last_match_time
		 FROM subscriptions
		 WHERE room_id = ? AND subscribed = 1 AND user_id > ?
		 ORDER BY user_id LIMIT ?`,
		roomID, after, s.pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// RenameSubscriptions refreshes the cached room name on every subscription of the room.
func (s *SQLite) RenameSubscriptions(ctx context.Context, roomID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET room_name = ? WHERE room_id = ? AND room_name != ?`,
		name, roomID, name,
	)
	if err != nil {
		return 0, fmt.Errorf("rename subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// MoveSubscriptions rewrites subscriptions of oldRoomID to newRoomID.
// When a user already has a subscription for newRoomID the keyword sets are
// merged into it and the old row is dropped. Running it again is a no-op.
// A merged set may exceed the per-room keyword cap; no keyword is dropped and
// later additions are refused until the user removes some.
func (s *SQLite) MoveSubscriptions(ctx context.Context, oldRoomID, newRoomID int64) (int64, error) {
	if oldRoomID == newRoomID {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE OR IGNORE subscriptions SET room_id = ? WHERE room_id = ?`, newRoomID, oldRoomID,
	)
	if err != nil {
		return 0, fmt.Errorf("move subscriptions: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT old.user_id, old.keywords, cur.keywords
		 FROM subscriptions old
		 JOIN subscriptions cur ON cur.user_id = old.user_id AND cur.room_id = ?
		 WHERE old.room_id = ?`, newRoomID, oldRoomID,
	)
	if err != nil {
		return 0, fmt.Errorf("query conflicting subscriptions: %w", err)
	}
	type conflict struct {
		userID   int64
		keywords []string
	}
	var conflicts []conflict
	for rows.Next() {
		var userID int64
		var oldJSON, curJSON string
		if err := rows.Scan(&userID, &oldJSON, &curJSON); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan conflicting subscription: %w", err)
		}
		oldKW, err := decodeKeywords(oldJSON)
		if err != nil {
			_ = rows.Close()
			return 0, err
		}
		curKW, err := decodeKeywords(curJSON)
		if err != nil {
			_ = rows.Close()
			return 0, err
		}
		conflicts = append(conflicts, conflict{userID: userID, keywords: mergeKeywords(curKW, oldKW)})
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close rows: %w", err)
	}

	for _, c := range conflicts {
		merged, err := encodeKeywords(c.keywords)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET keywords = ? WHERE user_id = ? AND room_id = ?`,
			merged, c.userID, newRoomID,
		); err != nil {
			return 0, fmt.Errorf("merge keywords: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM subscriptions WHERE user_id = ? AND room_id = ?`, c.userID, oldRoomID,
		); err != nil {
			return 0, fmt.Errorf("delete merged subscription: %w", err)
		}
		moved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return moved, nil
}

// DeleteSubscriptionsByRoom removes every subscription of a room.
func (s *SQLite) DeleteSubscriptionsByRoom(ctx context.Context, roomID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE room_id = ?`, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete room subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSubscriptionsByUser removes every subscription of a user.
func (s *SQLite) DeleteSubscriptionsByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user subscriptions: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(data), nil
}

func decodeKeywords(raw string) ([]string, error) {
	var keywords []string
	if raw == "" {
		return keywords, nil
	}
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	return keywords, nil
}

func mergeKeywords(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, kw := range base {
		if !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	for _, kw := range extra {
		if !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRoom(row scannable) (*model.Room, error) {
	var r model.Room
	var kind, created, updated string
	var isPrivate int
	var migratedFrom sql.NullInt64
	err := row.Scan(&r.ID, &r.Name, &kind, &isPrivate, &migratedFrom, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan room: %w", err)
	}
	r.Kind = model.RoomKind(kind)
	r.IsPrivate = isPrivate == 1
	if migratedFrom.Valid {
		v := migratedFrom.Int64
		r.MigratedFrom = &v
	}
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	r.LastUpdated, _ = time.Parse(timeLayout, updated)
	return &r, nil
}

func scanRooms(rows *sql.Rows) ([]model.Room, error) {
	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

func scanSubscription(row scannable) (model.Subscription, error) {
	var sub model.Subscription
	var subscribed int
	var keywords string
	var lastMatch sql.NullString
	err := row.Scan(&sub.UserID, &sub.RoomID, &subscribed, &keywords, &sub.RoomName, &lastMatch)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, ErrNotFound
	}
	if err != nil {
		return sub, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Subscribed = subscribed == 1
	sub.Keywords, err = decodeKeywords(keywords)
	if err != nil {
		return sub, err
	}
	if lastMatch.Valid {
		t, _ := time.Parse(timeLayout, lastMatch.String)
		sub.LastMatchTime = &t
	}
	return sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
