package repository

import (
	"context"
	"errors"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

type VectorRepo interface {
	// Upsert stores records, replacing any with the same ID, and returns the
	// number written.
	Upsert(ctx context.Context, records []VectorRecord) (int, error)
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredVector, error)
}

type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

// VectorMetadata is stored alongside every chunk vector.
type VectorMetadata struct {
	Text   string `json:"text"`
	GameID int64  `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Type   string `json:"type"`
}

type ScoredVector struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}
