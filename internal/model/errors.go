package model

import (
	"errors"
	"fmt"
)

// Domain errors returned by the registry and subscription services.
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrTooManyInBatch       = errors.New("too many keywords in one request")
	ErrNotSubscribed        = errors.New("not subscribed")
	ErrUnreachable          = errors.New("room unreachable")
	ErrTransient            = errors.New("transient failure")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrConflict is the transient failure of a keyword update that kept
	// losing to concurrent writers.
	ErrConflict = fmt.Errorf("keyword set changed concurrently: %w", ErrTransient)
)

// MovedError reports that the transport knows the room under a new identifier.
type MovedError struct {
	RoomID    int64
	NewRoomID int64
}

func (e *MovedError) Error() string {
	return fmt.Sprintf("room %d moved to %d", e.RoomID, e.NewRoomID)
}

// Is makes a MovedError match ErrUnreachable: the old identifier is gone.
func (e *MovedError) Is(target error) bool {
	return target == ErrUnreachable
}
