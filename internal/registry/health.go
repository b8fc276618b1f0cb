package registry

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"keyword_bot/internal/model"
)

// HealthReport summarizes one health check pass.
type HealthReport struct {
	Checked  int
	Updated  int
	Removed  int
	Migrated int
	Skipped  int
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeUpdated
	outcomeRemoved
	outcomeMigrated
	outcomeSkipped
)

// HealthCheck probes every live room. Reachable rooms are resynced, rooms the
// transport reports as moved are migrated, unreachable rooms are removed and
// transient failures leave the room for the next pass. Only a failed probe
// leads to a destructive write, so the check may run alongside the real-time
// handlers.
func (r *Registry) HealthCheck(ctx context.Context) (HealthReport, error) {
	rooms, err := r.Rooms(ctx)
	if err != nil {
		return HealthReport{}, err
	}

	outcomes := make([]outcome, len(rooms))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, room := range rooms {
		g.Go(func() error {
			var out outcome
			if err := r.serialize(ctx, room.ID, func() { out = r.checkRoom(ctx, room) }); err != nil {
				outcomes[i] = outcomeSkipped
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{Checked: len(rooms)}
	for _, out := range outcomes {
		switch out {
		case outcomeUpdated:
			report.Updated++
		case outcomeRemoved:
			report.Removed++
		case outcomeMigrated:
			report.Migrated++
		case outcomeSkipped:
			report.Skipped++
		}
	}

	r.log.Info("health check done",
		"checked", report.Checked,
		"updated", report.Updated,
		"removed", report.Removed,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
	)
	return report, ctx.Err()
}

func (r *Registry) serialize(ctx context.Context, roomID int64, fn func()) error {
	if r.lanes == nil {
		fn()
		return nil
	}
	return r.lanes.Run(ctx, roomID, fn)
}

func (r *Registry) checkRoom(ctx context.Context, room model.Room) outcome {
	if ctx.Err() != nil {
		return outcomeSkipped
	}

	meta, err := r.prober.Probe(ctx, room.ID)
	var moved *model.MovedError
	switch {
	case err == nil:
		changed, err := r.RenameOrResync(ctx, room.ID, meta)
		if errors.Is(err, model.ErrRoomNotFound) {
			return outcomeUnchanged
		}
		if err != nil {
			r.log.Error("resync room", "room_id", room.ID, "error", err)
			return outcomeSkipped
		}
		if changed {
			return outcomeUpdated
		}
		return outcomeUnchanged

	case errors.As(err, &moved):
		if _, err := r.Migrate(ctx, room.ID, moved.NewRoomID); err != nil {
			r.log.Error("migrate moved room", "room_id", room.ID, "new_room_id", moved.NewRoomID, "error", err)
			return outcomeSkipped
		}
		return outcomeMigrated

	case errors.Is(err, model.ErrUnreachable):
		r.log.Info("room unreachable, removing", "room_id", room.ID, "name", room.Name, "error", err)
		if _, err := r.Remove(ctx, room.ID); err != nil {
			r.log.Error("remove orphaned room", "room_id", room.ID, "error", err)
			return outcomeSkipped
		}
		return outcomeRemoved

	default:
		r.log.Warn("probe room", "room_id", room.ID, "error", err)
		return outcomeSkipped
	}
}
