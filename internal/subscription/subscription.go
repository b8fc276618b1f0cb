// Package subscription implements the per-user tracking relationships with
// rooms and their keyword sets.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sethvargo/go-retry"

	"keyword_bot/internal/filter"
	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

// casAttempts bounds the read-modify-write loop on a contended keyword set.
const casAttempts = 5


// Service manages subscriptions.
type Service struct {
	store      storage.Storage
	maxPerAdd  int
	maxPerRoom int
}

// New creates a Service with the given keyword caps.
func New(store storage.Storage, maxPerAdd, maxPerRoom int) *Service {
	return &Service{store: store, maxPerAdd: maxPerAdd, maxPerRoom: maxPerRoom}
}

// MaxPerRoom returns the room-level keyword cap.
func (s *Service) MaxPerRoom() int { return s.maxPerRoom }

// Join starts (or resumes) tracking a room. Existing keywords are kept.
func (s *Service) Join(ctx context.Context, userID, roomID int64) (*model.Subscription, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("room %d: %w", roomID, model.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", roomID, err)
	}
	if err := s.store.UpsertSubscription(ctx, userID, roomID, room.Name); err != nil {
		return nil, fmt.Errorf("join room %d: %w", roomID, err)
	}
	return s.Get(ctx, userID, roomID)
}

// Mute stops notifications for a room but keeps the keywords.
func (s *Service) Mute(ctx context.Context, userID, roomID int64) error {
	found, err := s.store.SetSubscribed(ctx, userID, roomID, false)
	if err != nil {
		return fmt.Errorf("mute room %d: %w", roomID, err)
	}
	if !found {
		return fmt.Errorf("user %d room %d: %w", userID, roomID, model.ErrSubscriptionNotFound)
	}
	return nil
}

// Leave deletes the subscription together with its keywords.
func (s *Service) Leave(ctx context.Context, userID, roomID int64) error {
	found, err := s.store.DeleteSubscription(ctx, userID, roomID)
	if err != nil {
		return fmt.Errorf("leave room %d: %w", roomID, err)
	}
	if !found {
		return fmt.Errorf("user %d room %d: %w", userID, roomID, model.ErrSubscriptionNotFound)
	}
	return nil
}

// Get returns one subscription.
func (s *Service) Get(ctx context.Context, userID, roomID int64) (*model.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, userID, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("user %d room %d: %w", userID, roomID, model.ErrSubscriptionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// AddResult reports the outcome of AddKeywords.
type AddResult struct {
	// Added were appended to the set.
	Added []string
	// Duplicates were already present or repeated in the input.
	Duplicates []string
	// Truncated did not fit under the room cap.
	Truncated []string
	// Total is the size of the set afterwards.
	Total int
}

// AddKeywords normalizes raw and appends the keywords not yet present, up to
// the room cap. Duplicates and a full set are reported, not treated as errors.
func (s *Service) AddKeywords(ctx context.Context, userID, roomID int64, raw []string) (AddResult, error) {
	unique, repeats := filter.Normalize(raw)
	if len(unique) == 0 {
		return AddResult{}, fmt.Errorf("no keywords given: %w", model.ErrInvalidInput)
	}
	if len(unique) > s.maxPerAdd {
		return AddResult{}, fmt.Errorf("%d keywords, limit is %d: %w", len(unique), s.maxPerAdd, model.ErrTooManyInBatch)
	}
	for _, kw := range unique {
		if err := filter.ValidateKeyword(kw); err != nil {
			return AddResult{}, fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
		}
	}

	var res AddResult
	err := s.update(ctx, userID, roomID, func(current []string) []string {
		res = AddResult{Duplicates: slices.Clone(repeats)}
		var fresh []string
		for _, kw := range unique {
			if slices.Contains(current, kw) {
				res.Duplicates = append(res.Duplicates, kw)
			} else {
				fresh = append(fresh, kw)
			}
		}
		room := max(s.maxPerRoom-len(current), 0)
		if len(fresh) > room {
			res.Truncated = fresh[room:]
			fresh = fresh[:room]
		}
		res.Added = fresh
		res.Total = len(current) + len(fresh)
		if len(fresh) == 0 {
			return nil
		}
		return append(slices.Clone(current), fresh...)
	})
	if err != nil {
		return AddResult{}, err
	}
	return res, nil
}

// RemoveResult reports the outcome of RemoveKeywords.
type RemoveResult struct {
	Removed  []string
	NotFound []string
	Total    int
}

// RemoveKeywords removes exactly the given keywords from the set.
func (s *Service) RemoveKeywords(ctx context.Context, userID, roomID int64, keywords []string) (RemoveResult, error) {
	unique, _ := filter.Normalize(keywords)
	if len(unique) == 0 {
		return RemoveResult{}, fmt.Errorf("no keywords given: %w", model.ErrInvalidInput)
	}

	var res RemoveResult
	err := s.update(ctx, userID, roomID, func(current []string) []string {
		res = RemoveResult{}
		for _, kw := range unique {
			if slices.Contains(current, kw) {
				res.Removed = append(res.Removed, kw)
			} else {
				res.NotFound = append(res.NotFound, kw)
			}
		}
		kept := slices.DeleteFunc(slices.Clone(current), func(kw string) bool {
			return slices.Contains(res.Removed, kw)
		})
		res.Total = len(kept)
		if len(res.Removed) == 0 {
			return nil
		}
		return kept
	})
	if err != nil {
		return RemoveResult{}, err
	}
	return res, nil
}

// RemoveAll clears the keyword set and returns how many keywords it held.
func (s *Service) RemoveAll(ctx context.Context, userID, roomID int64) (int, error) {
	var removed int
	err := s.update(ctx, userID, roomID, func(current []string) []string {
		removed = len(current)
		if removed == 0 {
			return nil
		}
		return []string{}
	})
	return removed, err
}

// update runs a compare-and-swap loop on the keyword set. fn returns the new
// set, or nil to leave the set unchanged. The subscription must exist and be
// active.
func (s *Service) update(ctx context.Context, userID, roomID int64, fn func(current []string) []string) error {
	backoff := retry.WithMaxRetries(casAttempts-1, retry.NewConstant(10*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		sub, err := s.store.GetSubscription(ctx, userID, roomID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user %d room %d: %w", userID, roomID, model.ErrNotSubscribed)
		}
		if err != nil {
			return fmt.Errorf("get subscription: %w", err)
		}
		if !sub.Subscribed {
			return fmt.Errorf("user %d room %d is muted: %w", userID, roomID, model.ErrNotSubscribed)
		}

		updated := fn(sub.Keywords)
		if updated == nil {
			return nil
		}
		swapped, err := s.store.CompareAndSwapKeywords(ctx, userID, roomID, sub.Keywords, updated)
		if err != nil {
			return fmt.Errorf("update keywords: %w", err)
		}
		if !swapped {
			return retry.RetryableError(fmt.Errorf("user %d room %d: %w", userID, roomID, model.ErrConflict))
		}
		return nil
	})
}

// ListForUser returns all subscriptions of a user, muted ones included.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]model.Subscription, error) {
	subs, err := s.store.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of user %d: %w", userID, err)
	}
	return subs, nil
}

// ListForRoom returns the subscriptions of a room.
func (s *Service) ListForRoom(ctx context.Context, roomID int64, subscribedOnly bool) ([]model.Subscription, error) {
	subs, err := s.store.ListSubscriptionsByRoom(ctx, roomID, subscribedOnly)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of room %d: %w", roomID, err)
	}
	return subs, nil
}

// ResetAll deletes every subscription of a user and returns how many there were.
func (s *Service) ResetAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.DeleteSubscriptionsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reset user %d: %w", userID, err)
	}
	return n, nil
}
