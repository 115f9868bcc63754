package qdrantdb

import (
	"context"
	"fmt"

	"gameindex/repository"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	GameCollectionName = "game_vectors"
	// bge-large-en-v1.5
	DefaultDimension = 1024
)

var pointNamespace = uuid.MustParse("6f1c7c1e-52a4-4c55-9a44-3d1b0e0b7a11")

// PointID maps a readable vector id such as "igdb:42:summary[1]" to the
// UUID Qdrant stores it under.
func PointID(vectorID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(vectorID)).String()
}

func (c *GameClient) EnsureCollection(ctx context.Context) error {
	exists, err := c.Client.CollectionExists(ctx, c.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	err = c.Client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     c.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("err create game collection: %w", err)
	}

	for _, field := range []string{"type", "vector_id"} {
		_, err = c.Client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("err create %s index: %w", field, err)
		}
	}
	return nil
}

func (c *GameClient) Upsert(ctx context.Context, records []repository.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if uint64(len(r.Values)) != c.dimension {
			return 0, fmt.Errorf("%w: %s has %d, want %d", repository.ErrDimensionMismatch, r.ID, len(r.Values), c.dimension)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(r.ID)),
			Vectors: qdrant.NewVectorsDense(r.Values),
			Payload: qdrant.NewValueMap(toPayload(r)),
		})
	}

	_, err := c.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("err upsert points: %w", err)
	}
	return len(points), nil
}

func (c *GameClient) Search(ctx context.Context, vector []float32, limit int) ([]repository.ScoredVector, error) {
	if limit <= 0 {
		return nil, nil
	}

	points, err := c.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("err query points: %w", err)
	}

	results := make([]repository.ScoredVector, 0, len(points))
	for _, p := range points {
		id, md := fromPayload(p.GetPayload())
		results = append(results, repository.ScoredVector{
			ID:       id,
			Score:    p.GetScore(),
			Metadata: md,
		})
	}
	return results, nil
}

func toPayload(r repository.VectorRecord) map[string]any {
	return map[string]any{
		"vector_id": r.ID,
		"text":      r.Metadata.Text,
		"id":        r.Metadata.GameID,
		"name":      r.Metadata.Name,
		"url":       r.Metadata.URL,
		"type":      r.Metadata.Type,
	}
}

func fromPayload(payload map[string]*qdrant.Value) (string, repository.VectorMetadata) {
	md := repository.VectorMetadata{
		Text:   payload["text"].GetStringValue(),
		GameID: payload["id"].GetIntegerValue(),
		Name:   payload["name"].GetStringValue(),
		URL:    payload["url"].GetStringValue(),
		Type:   payload["type"].GetStringValue(),
	}
	return payload["vector_id"].GetStringValue(), md
}
