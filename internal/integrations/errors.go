package integrations

import "errors"

var (
	// ErrNotConfigured is returned when a collaborator has no endpoint
	// configured.
	ErrNotConfigured = errors.New("integration not configured")

	// ErrNotConnected is returned by music transport controls before a
	// successful Connect.
	ErrNotConnected = errors.New("music service not connected")
)
