// Package model defines the domain types used across the application.
package model

import "time"

// RoomKind classifies a monitored chat.
type RoomKind string

// Supported room kinds.
const (
	KindDirect     RoomKind = "direct"
	KindGroup      RoomKind = "group"
	KindSupergroup RoomKind = "supergroup"
)

// Room is a chat the watcher is present in.
type Room struct {
	ID           int64
	Name         string
	Kind         RoomKind
	IsPrivate    bool
	MigratedFrom *int64
	CreatedAt    time.Time
	LastUpdated  time.Time
}

// RoomChanges lists the mutable room fields to write. Nil fields are left untouched.
type RoomChanges struct {
	Name      *string
	Kind      *RoomKind
	IsPrivate *bool
}

// Empty reports whether no field is set.
func (c RoomChanges) Empty() bool {
	return c.Name == nil && c.Kind == nil && c.IsPrivate == nil
}

// RoomMetadata is what the transport reports about a room right now.
type RoomMetadata struct {
	Title        string
	Kind         RoomKind
	PublicHandle string
}

// IsPrivate reports whether the room has no public handle.
func (m RoomMetadata) IsPrivate() bool {
	return m.PublicHandle == ""
}

// Diff returns the changes needed to bring r in line with m.
func (m RoomMetadata) Diff(r *Room) RoomChanges {
	var c RoomChanges
	if m.Title != "" && m.Title != r.Name {
		name := m.Title
		c.Name = &name
	}
	if m.Kind != "" && m.Kind != r.Kind {
		kind := m.Kind
		c.Kind = &kind
	}
	if priv := m.IsPrivate(); priv != r.IsPrivate {
		c.IsPrivate = &priv
	}
	return c
}

// Subscription is one user's tracking relation with one room.
type Subscription struct {
	UserID        int64
	RoomID        int64
	Subscribed    bool
	Keywords      []string
	RoomName      string
	LastMatchTime *time.Time
}
