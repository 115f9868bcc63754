package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"gameindex/repository"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const DefaultTable = "game_vectors"

type VectorStore struct {
	conn      *sql.DB
	table     string
	dimension int
}

// NewVectorStore connects to dbURL and creates the vector table if needed.
func NewVectorStore(ctx context.Context, dbURL string, dimension int) (*VectorStore, error) {
	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &VectorStore{conn: conn, table: DefaultTable, dimension: dimension}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *VectorStore) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.table, s.dimension) {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("unable to migrate %s: %w", s.table, err)
		}
	}
	return nil
}

func schema(table string, dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			text       TEXT NOT NULL,
			game_id    BIGINT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			url        TEXT NOT NULL DEFAULT '',
			field      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_game_id_idx ON %s (game_id)`, table, table),
	}
}

func (s *VectorStore) Upsert(ctx context.Context, records []repository.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for _, r := range records {
		if len(r.Values) != s.dimension {
			return 0, fmt.Errorf("%w: %s has %d, want %d", repository.ErrDimensionMismatch, r.ID, len(r.Values), s.dimension)
		}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, embedding, text, game_id, name, url, field)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text = EXCLUDED.text,
			game_id = EXCLUDED.game_id,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			field = EXCLUDED.field,
			updated_at = now()
	`, s.table))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		md := r.Metadata
		if _, err := stmt.ExecContext(ctx, r.ID, pgvector.NewVector(r.Values), md.Text, md.GameID, md.Name, md.URL, md.Type); err != nil {
			return 0, fmt.Errorf("unable to upsert %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, limit int) ([]repository.ScoredVector, error) {
	if limit < 1 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score, text, game_id, name, url, field
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, s.table)

	rows, err := s.conn.QueryContext(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []repository.ScoredVector
	for rows.Next() {
		var r repository.ScoredVector
		if err := rows.Scan(&r.ID, &r.Score, &r.Metadata.Text, &r.Metadata.GameID, &r.Metadata.Name, &r.Metadata.URL, &r.Metadata.Type); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *VectorStore) Close() error {
	return s.conn.Close()
}
