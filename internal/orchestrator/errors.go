package orchestrator

import "errors"

var (
	// ErrRoundLimit indicates the model kept requesting tools past the
	// per-turn round budget. The partial turn result is still returned.
	ErrRoundLimit = errors.New("tool round limit reached")

	// ErrNilClient indicates the orchestrator was built without a provider.
	ErrNilClient = errors.New("llm client is nil")
)
