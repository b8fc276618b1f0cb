// Package session keeps short-lived per-user menu state in memory.
package session

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Removal is an in-progress keyword removal selection.
type Removal struct {
	RoomID   int64
	Keywords []string
	// Selected holds indexes into Keywords.
	Selected map[int]bool
	Page     int
}

// Toggle flips the selection of the keyword at i.
func (r *Removal) Toggle(i int) {
	if i < 0 || i >= len(r.Keywords) {
		return
	}
	if r.Selected == nil {
		r.Selected = make(map[int]bool)
	}
	if r.Selected[i] {
		delete(r.Selected, i)
	} else {
		r.Selected[i] = true
	}
}

// SelectedKeywords returns the selected keywords in list order.
func (r *Removal) SelectedKeywords() []string {
	var out []string
	for i, kw := range r.Keywords {
		if r.Selected[i] {
			out = append(out, kw)
		}
	}
	return out
}

// State is the menu state of one user.
type State struct {
	ActiveRoom     int64
	ActiveRoomName string
	Removal        *Removal
	GroupsPage     int
	KeywordsPage   int

	touched time.Time
}

func (s State) clone() State {
	if s.Removal != nil {
		r := *s.Removal
		r.Keywords = slices.Clone(r.Keywords)
		r.Selected = maps.Clone(r.Selected)
		s.Removal = &r
	}
	return s
}

// Store holds State per user. Entries idle for longer than the TTL are
// treated as absent and dropped by Sweep.
type Store struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[int64]*State
	now    func() time.Time
}

// New creates a Store.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:    ttl,
		states: make(map[int64]*State),
		now:    time.Now,
	}
}

// View returns a copy of the user's state, or the zero State.
func (s *Store) View(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.live(userID)
	if !ok {
		return State{}
	}
	return st.clone()
}

// Update applies fn to the user's state, creating it if needed, and
// refreshes its expiry.
func (s *Store) Update(userID int64, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.live(userID)
	if !ok {
		st = &State{}
		s.states[userID] = st
	}
	fn(st)
	st.touched = s.now()
}

// Clear forgets the user's state.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// Sweep drops expired entries and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, st := range s.states {
		if s.expired(st) {
			delete(s.states, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) live(userID int64) (*State, bool) {
	st, ok := s.states[userID]
	if !ok {
		return nil, false
	}
	if s.expired(st) {
		delete(s.states, userID)
		return nil, false
	}
	return st, true
}

func (s *Store) expired(st *State) bool {
	return s.ttl > 0 && s.now().Sub(st.touched) > s.ttl
}
