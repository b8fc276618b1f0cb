// Package reconciler turns transport events into registry and dispatcher
// calls. Callers run the handlers for one room one at a time, in arrival
// order; handlers for different rooms may run in parallel.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"keyword_bot/internal/dispatcher"
	"keyword_bot/internal/model"
	"keyword_bot/internal/registry"
)

// Registry is the room lifecycle API the reconciler drives.
type Registry interface {
	UpsertOnEntry(ctx context.Context, roomID int64, meta model.RoomMetadata) (*model.Room, error)
	RenameOrResync(ctx context.Context, roomID int64, fresh model.RoomMetadata) (bool, error)
	Rename(ctx context.Context, roomID int64, name string) (bool, error)
	Resync(ctx context.Context, roomID int64) (bool, error)
	Migrate(ctx context.Context, oldID, newID int64) (registry.MigrationResult, error)
	Remove(ctx context.Context, roomID int64) (int64, error)
}

// Dispatcher fans a message out to matching subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.MessageEvent) (dispatcher.Result, error)
}

// Reconciler keeps the registry in line with what the transport reports.
type Reconciler struct {
	registry   Registry
	dispatcher Dispatcher
	log        *slog.Logger
}

// New creates a Reconciler.
func New(reg Registry, disp Dispatcher, log *slog.Logger) *Reconciler {
	return &Reconciler{registry: reg, dispatcher: disp, log: log}
}

// HandleMembership registers a room the watcher joined and removes one it left.
func (r *Reconciler) HandleMembership(ctx context.Context, ev model.MembershipEvent) error {
	if !ev.Status.Present() {
		n, err := r.registry.Remove(ctx, ev.RoomID)
		if err != nil {
			return fmt.Errorf("remove room %d: %w", ev.RoomID, err)
		}
		r.log.Info("watcher left room", "room_id", ev.RoomID, "status", ev.Status, "subscriptions", n)
		return nil
	}

	meta := model.RoomMetadata{Title: ev.Title, Kind: ev.Kind, PublicHandle: ev.PublicHandle}
	if _, err := r.registry.UpsertOnEntry(ctx, ev.RoomID, meta); err != nil {
		return fmt.Errorf("register room %d: %w", ev.RoomID, err)
	}
	return nil
}

// HandleTitleChange refetches the room metadata and applies it. When the
// transport cannot be reached the new title from the event is applied alone.
func (r *Reconciler) HandleTitleChange(ctx context.Context, ev model.TitleEvent) error {
	_, err := r.registry.Resync(ctx, ev.RoomID)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrRoomNotFound) {
		r.log.Debug("title change for unknown room", "room_id", ev.RoomID)
		return nil
	}

	r.log.Warn("resync after title change, applying title only", "room_id", ev.RoomID, "error", err)
	if _, err := r.registry.Rename(ctx, ev.RoomID, ev.NewTitle); err != nil && !errors.Is(err, model.ErrRoomNotFound) {
		return fmt.Errorf("rename room %d: %w", ev.RoomID, err)
	}
	return nil
}

// HandleMigration moves a room to its new identifier.
func (r *Reconciler) HandleMigration(ctx context.Context, ev model.MigrationEvent) error {
	if _, err := r.registry.Migrate(ctx, ev.OldRoomID, ev.NewRoomID); err != nil {
		return fmt.Errorf("migrate room %d to %d: %w", ev.OldRoomID, ev.NewRoomID, err)
	}
	return nil
}

// HandleMessage brings the room record up to date with the metadata carried by
// the message and then dispatches it. Dispatch starts only after the registry
// write returned, so notifications use the refreshed room name.
func (r *Reconciler) HandleMessage(ctx context.Context, msg model.MessageEvent) (dispatcher.Result, error) {
	meta := model.RoomMetadata{Title: msg.RoomTitle, Kind: msg.RoomKind, PublicHandle: msg.PublicHandle}

	_, err := r.registry.RenameOrResync(ctx, msg.RoomID, meta)
	if errors.Is(err, model.ErrRoomNotFound) {
		_, err = r.registry.UpsertOnEntry(ctx, msg.RoomID, meta)
	}
	if err != nil {
		return dispatcher.Result{}, fmt.Errorf("sync room %d: %w", msg.RoomID, err)
	}

	res, err := r.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		return res, fmt.Errorf("dispatch message %d in room %d: %w", msg.MessageID, msg.RoomID, err)
	}
	return res, nil
}
