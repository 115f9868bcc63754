package embedding

import "errors"

var (
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrCountMismatch is returned when a service answers with a different
	// number of vectors than texts sent.
	ErrCountMismatch = errors.New("embedding count mismatch")
)
