package capability

import "errors"

var (
	// ErrForbiddenImport is returned when a snippet imports a package outside
	// the whitelist.
	ErrForbiddenImport = errors.New("forbidden import in capability code")

	// ErrNoRunFunction is returned when a snippet does not define
	// func Run(api roomhost.API) error.
	ErrNoRunFunction = errors.New("capability code does not define Run")

	// ErrExecutionTimeout is returned when a snippet exceeds its time budget.
	ErrExecutionTimeout = errors.New("capability execution timed out")

	// ErrMusicNotConnected is returned by music controls when no music
	// integration is configured or connected.
	ErrMusicNotConnected = errors.New("music service not connected")
)
