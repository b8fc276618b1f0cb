// Package registry owns room identity and lifecycle: entry, rename and
// resync, migration, removal and orphan detection.
//
// No procedure here relies on atomicity across store calls. Every step is a
// single-row (or single-filter) write that can be repeated, so a procedure
// interrupted half way is recovered by running it again.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

// Prober fetches current room metadata from the transport.
type Prober interface {
	Probe(ctx context.Context, roomID int64) (model.RoomMetadata, error)
}

// Serializer runs fn exclusively for key, ordered with other work on that key.
type Serializer interface {
	Run(ctx context.Context, key int64, fn func()) error
}

// Registry manages the room records.
type Registry struct {
	store       storage.Storage
	prober      Prober
	lanes       Serializer
	log         *slog.Logger
	concurrency int
}

// New creates a Registry.
func New(store storage.Storage, prober Prober, log *slog.Logger) *Registry {
	return &Registry{
		store:       store,
		prober:      prober,
		log:         log,
		concurrency: 4,
	}
}

// SetSerializer makes the health check run each room's work on the same
// per-room lanes the real-time event handlers use.
func (r *Registry) SetSerializer(s Serializer) {
	r.lanes = s
}

// SetConcurrency overrides how many rooms a health check probes at once.
func (r *Registry) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

// Room returns the live room with the given ID.
func (r *Registry) Room(ctx context.Context, roomID int64) (*model.Room, error) {
	room, err := r.store.GetRoom(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("room %d: %w", roomID, model.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", roomID, err)
	}
	return room, nil
}

// Rooms returns every live room.
func (r *Registry) Rooms(ctx context.Context) ([]model.Room, error) {
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// UpsertOnEntry registers a room the watcher has just entered, or refreshes
// it if it is already known. A new room first absorbs same-named stale rooms
// (see DuplicateCleanup).
func (r *Registry) UpsertOnEntry(ctx context.Context, roomID int64, meta model.RoomMetadata) (*model.Room, error) {
	room, err := r.store.GetRoom(ctx, roomID)
	switch {
	case err == nil:
		if _, err := r.apply(ctx, room, meta.Diff(room)); err != nil {
			return nil, err
		}
		return room, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("get room %d: %w", roomID, err)
	}

	if meta.Title != "" {
		if _, err := r.DuplicateCleanup(ctx, meta.Title, roomID); err != nil {
			r.log.Warn("duplicate cleanup", "room_id", roomID, "name", meta.Title, "error", err)
		}
	}

	room = &model.Room{
		ID:        roomID,
		Name:      meta.Title,
		Kind:      kindOrDefault(meta.Kind),
		IsPrivate: meta.IsPrivate(),
	}
	inserted, err := r.store.InsertRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("insert room %d: %w", roomID, err)
	}
	if !inserted {
		// A concurrent entry for the same room won the insert.
		existing, err := r.Room(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if _, err := r.apply(ctx, existing, meta.Diff(existing)); err != nil {
			return nil, err
		}
		return existing, nil
	}

	r.log.Info("room registered", "room_id", roomID, "name", room.Name, "kind", room.Kind)
	return room, nil
}

func kindOrDefault(k model.RoomKind) model.RoomKind {
	if k == "" {
		return model.KindGroup
	}
	return k
}

// RenameOrResync writes the fields of fresh that differ from the stored room
// and, on a name change, refreshes the cached name on its subscriptions.
// It reports whether anything changed.
func (r *Registry) RenameOrResync(ctx context.Context, roomID int64, fresh model.RoomMetadata) (bool, error) {
	room, err := r.Room(ctx, roomID)
	if err != nil {
		return false, err
	}
	return r.apply(ctx, room, fresh.Diff(room))
}

// Rename changes only the room name. It is the fallback for a title event
// when the transport cannot be probed for the full metadata.
func (r *Registry) Rename(ctx context.Context, roomID int64, name string) (bool, error) {
	room, err := r.Room(ctx, roomID)
	if err != nil {
		return false, err
	}
	if name == "" || name == room.Name {
		return false, nil
	}
	return r.apply(ctx, room, model.RoomChanges{Name: &name})
}

// Resync probes the transport for the room's metadata and applies it.
func (r *Registry) Resync(ctx context.Context, roomID int64) (bool, error) {
	meta, err := r.prober.Probe(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("probe room %d: %w", roomID, err)
	}
	return r.RenameOrResync(ctx, roomID, meta)
}

// apply writes changes to room in place and in the store. The room row is
// written before the subscriptions; if the second write is lost the cached
// names stay stale until the next resync.
func (r *Registry) apply(ctx context.Context, room *model.Room, changes model.RoomChanges) (bool, error) {
	if changes.Empty() {
		return false, nil
	}

	found, err := r.store.UpdateRoom(ctx, room.ID, changes)
	if err != nil {
		return false, fmt.Errorf("update room %d: %w", room.ID, err)
	}
	if !found {
		return false, fmt.Errorf("room %d: %w", room.ID, model.ErrRoomNotFound)
	}

	if changes.Kind != nil {
		room.Kind = *changes.Kind
	}
	if changes.IsPrivate != nil {
		room.IsPrivate = *changes.IsPrivate
	}
	if changes.Name != nil {
		old := room.Name
		room.Name = *changes.Name
		n, err := r.store.RenameSubscriptions(ctx, room.ID, room.Name)
		if err != nil {
			return true, fmt.Errorf("rename subscriptions of room %d: %w", room.ID, err)
		}
		r.log.Info("room renamed", "room_id", room.ID, "old_name", old, "name", room.Name, "subscriptions", n)
	}
	return true, nil
}

// MigrationResult describes what Migrate did.
type MigrationResult struct {
	// Merged is set when the new room already existed.
	Merged bool
	// Moved counts subscriptions rewritten to the new room.
	Moved int64
}

// Migrate moves a room to a new identifier: create the new room from the old
// one (refreshed with the transport's metadata), rewrite the subscriptions,
// delete the old room. Each step is idempotent, so a repeated or interrupted
// migration converges to the same state.
func (r *Registry) Migrate(ctx context.Context, oldID, newID int64) (MigrationResult, error) {
	if oldID == newID {
		return MigrationResult{}, nil
	}

	fresh, probeErr := r.prober.Probe(ctx, newID)
	if probeErr != nil {
		r.log.Warn("probe migrated room", "old_room_id", oldID, "room_id", newID, "error", probeErr)
	}

	target, err := r.store.GetRoom(ctx, newID)
	switch {
	case err == nil:
		if probeErr == nil {
			if _, err := r.apply(ctx, target, fresh.Diff(target)); err != nil {
				return MigrationResult{}, err
			}
		}
		moved, err := r.merge(ctx, oldID, target)
		if err != nil {
			return MigrationResult{}, err
		}
		r.log.Info("room migration merged", "old_room_id", oldID, "room_id", newID, "moved", moved)
		return MigrationResult{Merged: true, Moved: moved}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return MigrationResult{}, fmt.Errorf("get room %d: %w", newID, err)
	}

	old, err := r.store.GetRoom(ctx, oldID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return MigrationResult{}, fmt.Errorf("get room %d: %w", oldID, err)
	}
	if old == nil && probeErr != nil {
		return MigrationResult{}, fmt.Errorf("migrate room %d to %d: %w", oldID, newID, model.ErrRoomNotFound)
	}

	from := oldID
	target = &model.Room{ID: newID, Kind: model.KindSupergroup, MigratedFrom: &from}
	if old != nil {
		target.Name = old.Name
		target.Kind = old.Kind
		target.IsPrivate = old.IsPrivate
	}
	if probeErr == nil {
		if fresh.Title != "" {
			target.Name = fresh.Title
		}
		if fresh.Kind != "" {
			target.Kind = fresh.Kind
		}
		target.IsPrivate = fresh.IsPrivate()
	}

	inserted, err := r.store.InsertRoom(ctx, target)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("insert room %d: %w", newID, err)
	}
	if !inserted {
		existing, err := r.Room(ctx, newID)
		if err != nil {
			return MigrationResult{}, err
		}
		target = existing
	}

	moved, err := r.merge(ctx, oldID, target)
	if err != nil {
		return MigrationResult{}, err
	}
	r.log.Info("room migrated", "old_room_id", oldID, "room_id", newID, "name", target.Name, "moved", moved)
	return MigrationResult{Merged: !inserted, Moved: moved}, nil
}

// merge rewrites the subscriptions of oldID to target and deletes oldID.
func (r *Registry) merge(ctx context.Context, oldID int64, target *model.Room) (int64, error) {
	moved, err := r.store.MoveSubscriptions(ctx, oldID, target.ID)
	if err != nil {
		return 0, fmt.Errorf("move subscriptions %d -> %d: %w", oldID, target.ID, err)
	}
	if moved > 0 && target.Name != "" {
		if _, err := r.store.RenameSubscriptions(ctx, target.ID, target.Name); err != nil {
			return moved, fmt.Errorf("rename subscriptions of room %d: %w", target.ID, err)
		}
	}
	if _, err := r.store.DeleteRoom(ctx, oldID); err != nil {
		return moved, fmt.Errorf("delete room %d: %w", oldID, err)
	}
	return moved, nil
}

// Remove deletes a room together with all its subscriptions and returns the
// number of subscriptions removed. Subscriptions go first so an interrupted
// removal leaves a room that the next health check removes again.
func (r *Registry) Remove(ctx context.Context, roomID int64) (int64, error) {
	n, err := r.store.DeleteSubscriptionsByRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions of room %d: %w", roomID, err)
	}
	found, err := r.store.DeleteRoom(ctx, roomID)
	if err != nil {
		return n, fmt.Errorf("delete room %d: %w", roomID, err)
	}
	if found || n > 0 {
		r.log.Info("room removed", "room_id", roomID, "subscriptions", n)
	}
	return n, nil
}

// DuplicateCleanup looks for live rooms named name other than newRoomID and
// probes each of them. Unreachable ones are taken to be pre-migration copies
// of newRoomID: their subscriptions move to newRoomID and the stale room is
// deleted. Reachable rooms are left alone since a shared name does not prove
// identity. This is a heuristic: two unrelated rooms with the same name, one
// of which the watcher has lost, would be merged. It returns the number of
// rooms merged.
func (r *Registry) DuplicateCleanup(ctx context.Context, name string, newRoomID int64) (int, error) {
	rooms, err := r.store.ListRoomsByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("list rooms named %q: %w", name, err)
	}

	target := &model.Room{ID: newRoomID, Name: name}
	merged := 0
	for _, room := range rooms {
		if room.ID == newRoomID {
			continue
		}

		_, err := r.prober.Probe(ctx, room.ID)
		if err == nil {
			continue
		}
		var moved *model.MovedError
		if errors.As(err, &moved) && moved.NewRoomID != newRoomID {
			r.log.Debug("same-named room moved elsewhere", "room_id", room.ID, "moved_to", moved.NewRoomID)
			continue
		}
		if !errors.Is(err, model.ErrUnreachable) {
			r.log.Debug("same-named room not confirmed stale", "room_id", room.ID, "error", err)
			continue
		}

		n, err := r.merge(ctx, room.ID, target)
		if err != nil {
			return merged, err
		}
		merged++
		r.log.Info("merged stale room", "stale_room_id", room.ID, "room_id", newRoomID, "name", name, "moved", n)
	}
	return merged, nil
}
