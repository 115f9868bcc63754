package indexer

import "errors"

var (
	ErrFieldEmbedding = errors.New("field embedding failed")
	ErrUpsert         = errors.New("vector upsert failed")
)
