package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"keyword_bot/internal/model"
	"keyword_bot/internal/prober"
	"keyword_bot/internal/roomqueue"
	"keyword_bot/internal/storage"
)

var errTimeout = errors.New("i/o timeout")

type mockProber struct {
	mu    sync.Mutex
	rooms map[int64]model.RoomMetadata
	errs  map[int64]error
	calls map[int64]int
}

func newMockProber() *mockProber {
	return &mockProber{
		rooms: make(map[int64]model.RoomMetadata),
		errs:  make(map[int64]error),
		calls: make(map[int64]int),
	}
}

func (m *mockProber) Probe(_ context.Context, roomID int64) (model.RoomMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[roomID]++
	if err, ok := m.errs[roomID]; ok {
		return model.RoomMetadata{}, err
	}
	if meta, ok := m.rooms[roomID]; ok {
		return meta, nil
	}
	return model.RoomMetadata{}, model.ErrUnreachable
}

func (m *mockProber) set(roomID int64, meta model.RoomMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = meta
	delete(m.errs, roomID)
}

func (m *mockProber) fail(roomID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[roomID] = err
}

func (m *mockProber) probed(roomID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[roomID]
}

func newTestRegistry(t *testing.T) (*Registry, *storage.SQLite, *mockProber) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	prober := newMockProber()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, prober, log), store, prober
}

// outageSource answers every metadata call the way Telegram does during an
// outage: a classified transient error, or a call that never returns.
type outageSource struct {
	hang bool
}

func (s outageSource) GetRoomMetadata(ctx context.Context, roomID int64) (model.RoomMetadata, error) {
	if s.hang {
		<-ctx.Done()
		return model.RoomMetadata{}, fmt.Errorf("get chat %d: %w", roomID, ctx.Err())
	}
	return model.RoomMetadata{}, fmt.Errorf("get chat %d: %w: Bad Gateway", roomID, model.ErrTransient)
}

// newProbedRegistry wires a registry to the production probe policy with
// short delays.
func newProbedRegistry(t *testing.T, src prober.MetadataSource) (*Registry, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	opts := prober.DefaultOptions()
	opts.Timeout = 5 * time.Millisecond
	opts.Backoff = time.Millisecond
	opts.MaxBackoff = time.Millisecond
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, prober.New(src, opts), log), store
}

func seedRoom(t *testing.T, store *storage.SQLite, id int64, name string) {
	t.Helper()
	room := &model.Room{ID: id, Name: name, Kind: model.KindGroup, IsPrivate: true}
	if _, err := store.InsertRoom(context.Background(), room); err != nil {
		t.Fatalf("seed room: %v", err)
	}
}

func seedSubscription(t *testing.T, store *storage.SQLite, userID, roomID int64, name string, keywords ...string) {
	t.Helper()
	ctx := context.Background()
	if err := store.UpsertSubscription(ctx, userID, roomID, name); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	if len(keywords) > 0 {
		if _, err := store.CompareAndSwapKeywords(ctx, userID, roomID, nil, keywords); err != nil {
			t.Fatalf("seed keywords: %v", err)
		}
	}
}

var ignoreRoomTS = cmpopts.IgnoreFields(model.Room{}, "CreatedAt", "LastUpdated")

func TestUpsertOnEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("new room", func(t *testing.T) {
		r, store, _ := newTestRegistry(t)
		meta := model.RoomMetadata{Title: "Go Jobs", Kind: model.KindSupergroup, PublicHandle: "gojobs"}

		got, err := r.UpsertOnEntry(ctx, -100, meta)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		want := &model.Room{ID: -100, Name: "Go Jobs", Kind: model.KindSupergroup, IsPrivate: false}
		if diff := cmp.Diff(want, got, ignoreRoomTS); diff != "" {
			t.Errorf("room mismatch (-want +got):\n%s", diff)
		}

		stored, err := store.GetRoom(ctx, -100)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}
		if diff := cmp.Diff(want, stored, ignoreRoomTS); diff != "" {
			t.Errorf("stored room mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing kind defaults to group", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)

		got, err := r.UpsertOnEntry(ctx, -101, model.RoomMetadata{Title: "Untyped"})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if diff := cmp.Diff(model.KindGroup, got.Kind); diff != "" {
			t.Errorf("kind (-want +got):\n%s", diff)
		}
	})

	t.Run("flaky same-named room is not merged", func(t *testing.T) {
		r, store := newProbedRegistry(t, outageSource{})
		seedRoom(t, store, -1, "Team")
		seedSubscription(t, store, 10, -1, "Team", "deploy")

		if _, err := r.UpsertOnEntry(ctx, -2, model.RoomMetadata{Title: "Team", Kind: model.KindSupergroup}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, err := store.GetRoom(ctx, -1); err != nil {
			t.Errorf("same-named room should survive: %v", err)
		}
		if _, err := store.GetSubscription(ctx, 10, -1); err != nil {
			t.Errorf("subscription should stay on its room: %v", err)
		}
	})

	t.Run("existing room is refreshed", func(t *testing.T) {
		r, store, _ := newTestRegistry(t)
		seedRoom(t, store, -100, "Old")
		seedSubscription(t, store, 1, -100, "Old")

		meta := model.RoomMetadata{Title: "New", Kind: model.KindGroup}
		if _, err := r.UpsertOnEntry(ctx, -100, meta); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		sub, err := store.GetSubscription(ctx, 1, -100)
		if err != nil {
			t.Fatalf("get subscription: %v", err)
		}
		if diff := cmp.Diff("New", sub.RoomName); diff != "" {
			t.Errorf("cached name (-want +got):\n%s", diff)
		}
	})

	t.Run("concurrent entries keep one room", func(t *testing.T) {
		r, store, _ := newTestRegistry(t)
		meta := model.RoomMetadata{Title: "Race", Kind: model.KindGroup}

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := r.UpsertOnEntry(ctx, -5, meta); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("upsert: %v", err)
		}

		rooms, err := store.ListRooms(ctx)
		if err != nil {
			t.Fatalf("list rooms: %v", err)
		}
		if diff := cmp.Diff(1, len(rooms)); diff != "" {
			t.Errorf("room count (-want +got):\n%s", diff)
		}
	})

	t.Run("absorbs unreachable same-named room", func(t *testing.T) {
		r, store, prober := newTestRegistry(t)
		seedRoom(t, store, -1, "Team")
		seedSubscription(t, store, 10, -1, "Team", "deploy")

		if _, err := r.UpsertOnEntry(ctx, -2, model.RoomMetadata{Title: "Team", Kind: model.KindSupergroup}); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		if _, err := store.GetRoom(ctx, -1); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected stale room deleted, got %v", err)
		}
		sub, err := store.GetSubscription(ctx, 10, -2)
		if err != nil {
			t.Fatalf("get moved subscription: %v", err)
		}
		if diff := cmp.Diff([]string{"deploy"}, sub.Keywords); diff != "" {
			t.Errorf("keywords (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(0, prober.probed(-2)); diff != "" {
			t.Errorf("new room must not be probed (-want +got):\n%s", diff)
		}
	})

	t.Run("leaves reachable same-named room", func(t *testing.T) {
		r, store, prober := newTestRegistry(t)
		seedRoom(t, store, -1, "Team")
		seedSubscription(t, store, 10, -1, "Team")
		prober.set(-1, model.RoomMetadata{Title: "Team", Kind: model.KindGroup})

		if _, err := r.UpsertOnEntry(ctx, -2, model.RoomMetadata{Title: "Team"}); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		if _, err := store.GetRoom(ctx, -1); err != nil {
			t.Errorf("reachable room should survive: %v", err)
		}
		if _, err := store.GetSubscription(ctx, 10, -1); err != nil {
			t.Errorf("subscription should stay on reachable room: %v", err)
		}
	})

	t.Run("transient probe failure leaves same-named room", func(t *testing.T) {
		r, store, prober := newTestRegistry(t)
		seedRoom(t, store, -1, "Team")
		prober.fail(-1, errTimeout)

		if _, err := r.UpsertOnEntry(ctx, -2, model.RoomMetadata{Title: "Team"}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, err := store.GetRoom(ctx, -1); err != nil {
			t.Errorf("room should survive a transient probe failure: %v", err)
		}
	})
}

func TestRenameOrResync(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		fresh       model.RoomMetadata
		wantChanged bool
		wantRoom    model.Room
	}{
		{
			name:        "nothing changed",
			fresh:       model.RoomMetadata{Title: "Team", Kind: model.KindGroup},
			wantChanged: false,
			wantRoom:    model.Room{ID: -1, Name: "Team", Kind: model.KindGroup, IsPrivate: true},
		},
		{
			name:        "rename",
			fresh:       model.RoomMetadata{Title: "Team 2", Kind: model.KindGroup},
			wantChanged: true,
			wantRoom:    model.Room{ID: -1, Name: "Team 2", Kind: model.KindGroup, IsPrivate: true},
		},
		{
			name:        "became public supergroup",
			fresh:       model.RoomMetadata{Title: "Team", Kind: model.KindSupergroup, PublicHandle: "team"},
			wantChanged: true,
			wantRoom:    model.Room{ID: -1, Name: "Team", Kind: model.KindSupergroup, IsPrivate: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, _ := newTestRegistry(t)
			seedRoom(t, store, -1, "Team")
			seedSubscription(t, store, 1, -1, "Team")
			seedSubscription(t, store, 2, -1, "Team")

			changed, err := r.RenameOrResync(ctx, -1, tt.fresh)
			if err != nil {
				t.Fatalf("resync: %v", err)
			}
			if diff := cmp.Diff(tt.wantChanged, changed); diff != "" {
				t.Errorf("changed (-want +got):\n%s", diff)
			}

			room, err := store.GetRoom(ctx, -1)
			if err != nil {
				t.Fatalf("get room: %v", err)
			}
			if diff := cmp.Diff(tt.wantRoom, *room, ignoreRoomTS); diff != "" {
				t.Errorf("room (-want +got):\n%s", diff)
			}

			subs, err := store.ListSubscriptionsByRoom(ctx, -1, false)
			if err != nil {
				t.Fatalf("list subscriptions: %v", err)
			}
			for _, sub := range subs {
				if diff := cmp.Diff(tt.wantRoom.Name, sub.RoomName); diff != "" {
					t.Errorf("user %d cached name (-want +got):\n%s", sub.UserID, diff)
				}
			}
		})
	}

	t.Run("unknown room", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)
		_, err := r.RenameOrResync(ctx, -9, model.RoomMetadata{Title: "X"})
		if !errors.Is(err, model.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})
}

func TestResync(t *testing.T) {
	ctx := context.Background()
	r, store, prober := newTestRegistry(t)
	seedRoom(t, store, -1, "Before")
	prober.set(-1, model.RoomMetadata{Title: "After", Kind: model.KindGroup})

	changed, err := r.Resync(ctx, -1)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if !changed {
		t.Error("expected change")
	}
	room, _ := store.GetRoom(ctx, -1)
	if diff := cmp.Diff("After", room.Name); diff != "" {
		t.Errorf("name (-want +got):\n%s", diff)
	}

	prober.fail(-1, errTimeout)
	if _, err := r.Resync(ctx, -1); !errors.Is(err, errTimeout) {
		t.Errorf("expected probe error, got %v", err)
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Registry, *storage.SQLite) {
		t.Helper()
		r, store, prober := newTestRegistry(t)
		seedRoom(t, store, -1, "Jobs")
		seedSubscription(t, store, 1, -1, "Jobs", "go", "rust")
		seedSubscription(t, store, 2, -1, "Jobs", "remote")
		if _, err := store.SetSubscribed(ctx, 2, -1, false); err != nil {
			t.Fatalf("mute: %v", err)
		}
		prober.set(-1001, model.RoomMetadata{Title: "Jobs", Kind: model.KindSupergroup})
		return r, store
	}

	assertMigrated := func(t *testing.T, store *storage.SQLite) {
		t.Helper()
		if _, err := store.GetRoom(ctx, -1); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("old room should be gone, got %v", err)
		}
		room, err := store.GetRoom(ctx, -1001)
		if err != nil {
			t.Fatalf("new room: %v", err)
		}
		from := int64(-1)
		want := model.Room{ID: -1001, Name: "Jobs", Kind: model.KindSupergroup, IsPrivate: true, MigratedFrom: &from}
		if diff := cmp.Diff(want, *room, ignoreRoomTS); diff != "" {
			t.Errorf("new room (-want +got):\n%s", diff)
		}

		subs, err := store.ListSubscriptionsByRoom(ctx, -1001, false)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want2 := []model.Subscription{
			{UserID: 1, RoomID: -1001, Subscribed: true, Keywords: []string{"go", "rust"}, RoomName: "Jobs"},
			{UserID: 2, RoomID: -1001, Subscribed: false, Keywords: []string{"remote"}, RoomName: "Jobs"},
		}
		if diff := cmp.Diff(want2, subs); diff != "" {
			t.Errorf("subscriptions (-want +got):\n%s", diff)
		}
		old, _ := store.ListSubscriptionsByRoom(ctx, -1, false)
		if diff := cmp.Diff(0, len(old)); diff != "" {
			t.Errorf("old subscriptions left (-want +got):\n%s", diff)
		}
	}

	t.Run("round trip", func(t *testing.T) {
		r, store := setup(t)
		res, err := r.Migrate(ctx, -1, -1001)
		if err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if diff := cmp.Diff(MigrationResult{Moved: 2}, res); diff != "" {
			t.Errorf("result (-want +got):\n%s", diff)
		}
		assertMigrated(t, store)
	})

	t.Run("duplicate delivery is idempotent", func(t *testing.T) {
		r, store := setup(t)
		if _, err := r.Migrate(ctx, -1, -1001); err != nil {
			t.Fatalf("first migrate: %v", err)
		}
		res, err := r.Migrate(ctx, -1, -1001)
		if err != nil {
			t.Fatalf("second migrate: %v", err)
		}
		if diff := cmp.Diff(MigrationResult{Merged: true}, res); diff != "" {
			t.Errorf("second result (-want +got):\n%s", diff)
		}
		assertMigrated(t, store)
	})

	t.Run("resumes after crash before delete", func(t *testing.T) {
		r, store := setup(t)
		from := int64(-1)
		// Simulate a crash after the new room was inserted.
		if _, err := store.InsertRoom(ctx, &model.Room{ID: -1001, Name: "Jobs", Kind: model.KindSupergroup, IsPrivate: true, MigratedFrom: &from}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := r.Migrate(ctx, -1, -1001); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		assertMigrated(t, store)
	})

	t.Run("merges with existing subscription on new room", func(t *testing.T) {
		r, store := setup(t)
		seedRoom(t, store, -1001, "Jobs")
		seedSubscription(t, store, 1, -1001, "Jobs", "rust", "zig")

		if _, err := r.Migrate(ctx, -1, -1001); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		sub, err := store.GetSubscription(ctx, 1, -1001)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := cmp.Diff([]string{"rust", "zig", "go"}, sub.Keywords); diff != "" {
			t.Errorf("merged keywords (-want +got):\n%s", diff)
		}
	})

	t.Run("same id is a no-op", func(t *testing.T) {
		r, _ := setup(t)
		res, err := r.Migrate(ctx, -1, -1)
		if err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if diff := cmp.Diff(MigrationResult{}, res); diff != "" {
			t.Errorf("result (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown rooms and failed probe", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)
		if _, err := r.Migrate(ctx, -7, -8); !errors.Is(err, model.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRegistry(t)
	seedRoom(t, store, -1, "Gone")
	seedRoom(t, store, -2, "Stays")
	seedSubscription(t, store, 1, -1, "Gone")
	seedSubscription(t, store, 2, -1, "Gone")
	seedSubscription(t, store, 1, -2, "Stays")

	n, err := r.Remove(ctx, -1)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if diff := cmp.Diff(int64(2), n); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if _, err := store.GetRoom(ctx, -1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("room should be deleted, got %v", err)
	}
	left, _ := store.ListSubscriptionsByUser(ctx, 1)
	if diff := cmp.Diff(1, len(left)); diff != "" {
		t.Errorf("user 1 subscriptions (-want +got):\n%s", diff)
	}

	n, err = r.Remove(ctx, -1)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if diff := cmp.Diff(int64(0), n); diff != "" {
		t.Errorf("second remove count (-want +got):\n%s", diff)
	}
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("removes unreachable room and converges", func(t *testing.T) {
		r, store, prober := newTestRegistry(t)
		seedRoom(t, store, -1, "Dead")
		seedSubscription(t, store, 1, -1, "Dead", "x")
		seedSubscription(t, store, 2, -1, "Dead")
		prober.fail(-1, model.ErrUnreachable)

		report, err := r.HealthCheck(ctx)
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		if diff := cmp.Diff(HealthReport{Checked: 1, Removed: 1}, report); diff != "" {
			t.Errorf("first report (-want +got):\n%s", diff)
		}
		subs, _ := store.ListSubscriptionsByRoom(ctx, -1, false)
		if diff := cmp.Diff(0, len(subs)); diff != "" {
			t.Errorf("subscriptions left (-want +got):\n%s", diff)
		}

		report, err = r.HealthCheck(ctx)
		if err != nil {
			t.Fatalf("second health check: %v", err)
		}
		if diff := cmp.Diff(HealthReport{}, report); diff != "" {
			t.Errorf("second report (-want +got):\n%s", diff)
		}
	})

	t.Run("transient outage removes nothing", func(t *testing.T) {
		r, store := newProbedRegistry(t, outageSource{})
		seedRoom(t, store, -1, "Jobs")
		seedSubscription(t, store, 1, -1, "Jobs", "golang")

		report, err := r.HealthCheck(ctx)
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		if diff := cmp.Diff(HealthReport{Checked: 1, Skipped: 1}, report); diff != "" {
			t.Errorf("report (-want +got):\n%s", diff)
		}
		if _, err := store.GetRoom(ctx, -1); err != nil {
			t.Errorf("room should survive an outage: %v", err)
		}
		sub, err := store.GetSubscription(ctx, 1, -1)
		if err != nil {
			t.Fatalf("subscription should survive an outage: %v", err)
		}
		if diff := cmp.Diff([]string{"golang"}, sub.Keywords); diff != "" {
			t.Errorf("keywords (-want +got):\n%s", diff)
		}
	})

	t.Run("metadata call timeouts exhaust into removal", func(t *testing.T) {
		r, store := newProbedRegistry(t, outageSource{hang: true})
		seedRoom(t, store, -1, "Silent")

		report, err := r.HealthCheck(ctx)
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		if diff := cmp.Diff(HealthReport{Checked: 1, Removed: 1}, report); diff != "" {
			t.Errorf("report (-want +got):\n%s", diff)
		}
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		r, store, prober := newTestRegistry(t)
		r.SetSerializer(roomqueue.New())
		r.SetConcurrency(2)

		seedRoom(t, store, -1, "Same")
		seedRoom(t, store, -2, "Renamed")
		seedRoom(t, store, -3, "Flaky")
		seedRoom(t, store, -4, "Dead")
		seedRoom(t, store, -5, "Upgraded")
		seedSubscription(t, store, 1, -5, "Upgraded", "k8s")

		prober.set(-1, model.RoomMetadata{Title: "Same", Kind: model.KindGroup})
		prober.set(-2, model.RoomMetadata{Title: "Renamed!", Kind: model.KindGroup})
		prober.fail(-3, errTimeout)
		prober.fail(-4, model.ErrUnreachable)
		prober.fail(-5, &model.MovedError{RoomID: -5, NewRoomID: -1005})
		prober.set(-1005, model.RoomMetadata{Title: "Upgraded", Kind: model.KindSupergroup})

		report, err := r.HealthCheck(ctx)
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		want := HealthReport{Checked: 5, Updated: 1, Removed: 1, Migrated: 1, Skipped: 1}
		if diff := cmp.Diff(want, report); diff != "" {
			t.Errorf("report (-want +got):\n%s", diff)
		}

		if _, err := store.GetRoom(ctx, -3); err != nil {
			t.Errorf("flaky room should survive: %v", err)
		}
		sub, err := store.GetSubscription(ctx, 1, -1005)
		if err != nil {
			t.Fatalf("migrated subscription: %v", err)
		}
		if diff := cmp.Diff([]string{"k8s"}, sub.Keywords); diff != "" {
			t.Errorf("keywords (-want +got):\n%s", diff)
		}
	})
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRegistry(t)
	seedRoom(t, store, -1, "Team")
	seedSubscription(t, store, 1, -1, "Team")

	changed, err := r.Rename(ctx, -1, "Team")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if changed {
		t.Error("same name should be a no-op")
	}

	changed, err = r.Rename(ctx, -1, "Crew")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !changed {
		t.Error("expected change")
	}
	room, _ := store.GetRoom(ctx, -1)
	want := model.Room{ID: -1, Name: "Crew", Kind: model.KindGroup, IsPrivate: true}
	if diff := cmp.Diff(want, *room, ignoreRoomTS); diff != "" {
		t.Errorf("room (-want +got):\n%s", diff)
	}
	sub, _ := store.GetSubscription(ctx, 1, -1)
	if diff := cmp.Diff("Crew", sub.RoomName); diff != "" {
		t.Errorf("cached name (-want +got):\n%s", diff)
	}
}
