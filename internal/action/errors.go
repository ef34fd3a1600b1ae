package action

import "errors"

var (
	// ErrUnknownActionType is returned when decoding an action whose type is
	// not part of the union.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrInvalidTrigger is returned when attachCapability names a trigger
	// outside click/hover/load/interval/drag.
	ErrInvalidTrigger = errors.New("invalid capability trigger")
)
