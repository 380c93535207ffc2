package rooms

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when the room id does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned by create when the room id is taken. Manual
	// creates surface this distinctly so the caller can prompt for another code.
	ErrRoomExists = errors.New("room already exists")
	// ErrRoomFull is returned by join when the room is at capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrAlreadyMember is returned when a participant joins a room twice.
	ErrAlreadyMember = errors.New("participant already in room")
	// ErrMemberNotFound is returned when removing a participant who is not a member.
	ErrMemberNotFound = errors.New("participant not in room")
)

// StorageError wraps a room-store failure (connectivity, constraint
// violations other than the mapped ones). Callers surface it to the client
// as a retryable failure; it is never silently swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("room store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
