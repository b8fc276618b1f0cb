package model

// MembershipStatus is the watcher's membership in a room after a change.
type MembershipStatus string

// Membership statuses reported by the transport.
const (
	StatusMember        MembershipStatus = "member"
	StatusAdministrator MembershipStatus = "administrator"
	StatusLeft          MembershipStatus = "left"
	StatusKicked        MembershipStatus = "kicked"
)

// Present reports whether the status means the watcher is in the room.
func (s MembershipStatus) Present() bool {
	return s == StatusMember || s == StatusAdministrator
}

// MembershipEvent is emitted when the watcher enters or leaves a room.
type MembershipEvent struct {
	RoomID       int64
	Kind         RoomKind
	Title        string
	PublicHandle string
	Status       MembershipStatus
}

// TitleEvent signals that a room's metadata changed.
type TitleEvent struct {
	RoomID   int64
	NewTitle string
}

// MigrationEvent signals that a room moved to a new identifier.
type MigrationEvent struct {
	OldRoomID int64
	NewRoomID int64
}

// Sender identifies the author of a message.
type Sender struct {
	ID       int64
	FullName string
	Username string
}

// MessageEvent is an inbound text message in a room.
type MessageEvent struct {
	RoomID       int64
	RoomTitle    string
	RoomKind     RoomKind
	Sender       Sender
	Text         string
	MessageID    int
	PublicHandle string
}

// HasPublicHandle reports whether a deep link to the message can be built.
func (e MessageEvent) HasPublicHandle() bool {
	return e.PublicHandle != ""
}
