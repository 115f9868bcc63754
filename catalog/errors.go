package catalog

import "errors"

var (
	// ErrInvalidPayload is returned when a queued record is not valid JSON.
	ErrInvalidPayload = errors.New("invalid game payload")

	// ErrMissingID is returned when a record has no source identifier.
	ErrMissingID = errors.New("game id is required")
)
