package store

import "errors"

var (
	// ErrRoomNotFound indicates no saved room exists under the requested name.
	ErrRoomNotFound = errors.New("room not found")

	// ErrCapabilityNotFound indicates the capability library has no record
	// with the requested name.
	ErrCapabilityNotFound = errors.New("capability not found")
)
