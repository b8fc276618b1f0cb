// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"iter"
	"time"

	"keyword_bot/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
// Every method is a single atomic write or read; multi-step procedures
// are composed by the callers and must tolerate being re-run.
type Storage interface {
	InsertRoom(ctx context.Context, room *model.Room) (bool, error)
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	ListRooms(ctx context.Context) ([]model.Room, error)
	ListRoomsByName(ctx context.Context, name string) ([]model.Room, error)
	UpdateRoom(ctx context.Context, id int64, changes model.RoomChanges) (bool, error)
	DeleteRoom(ctx context.Context, id int64) (bool, error)

	UpsertSubscription(ctx context.Context, userID, roomID int64, roomName string) error
	GetSubscription(ctx context.Context, userID, roomID int64) (*model.Subscription, error)
	SetSubscribed(ctx context.Context, userID, roomID int64, subscribed bool) (bool, error)
	CompareAndSwapKeywords(ctx context.Context, userID, roomID int64, old, updated []string) (bool, error)
	TouchLastMatch(ctx context.Context, userID, roomID int64, at time.Time) error
	DeleteSubscription(ctx context.Context, userID, roomID int64) (bool, error)
	ListSubscriptionsByUser(ctx context.Context, userID int64) ([]model.Subscription, error)
	ListSubscriptionsByRoom(ctx context.Context, roomID int64, subscribedOnly bool) ([]model.Subscription, error)
	StreamSubscribers(ctx context.Context, roomID int64) iter.Seq2[model.Subscription, error]
	RenameSubscriptions(ctx context.Context, roomID int64, name string) (int64, error)
	MoveSubscriptions(ctx context.Context, oldRoomID, newRoomID int64) (int64, error)
	DeleteSubscriptionsByRoom(ctx context.Context, roomID int64) (int64, error)
	DeleteSubscriptionsByUser(ctx context.Context, userID int64) (int64, error)

	Close() error
}
