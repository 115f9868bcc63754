package crawler

import "errors"

var (
	// ErrUpstream is returned when the catalog API answers with a non-2xx status.
	ErrUpstream = errors.New("catalog api error")

	ErrMissingCredentials = errors.New("missing catalog api credentials")
)
