package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gameindex/catalog"
	"gameindex/pkg/chunking"
	"gameindex/pkg/embedding"
	"gameindex/queue"
	"gameindex/repository"

	"go.uber.org/zap"
)

const (
	DefaultRetryDelay = 10 * time.Second
	MaxRetryDelay     = 5 * time.Minute
)

// Dispatcher turns queued catalog records into stored chunk vectors.
type Dispatcher struct {
	embedder     embedding.Client
	store        repository.VectorRepo
	logger       *zap.Logger
	fields       []catalog.Field
	maxSentences int
	retryDelay   time.Duration
}

type Option func(*Dispatcher)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxSentences sets how many sentences go into one chunk.
func WithMaxSentences(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxSentences = n
		}
	}
}

func WithFields(fields ...catalog.Field) Option {
	return func(d *Dispatcher) {
		if len(fields) > 0 {
			d.fields = fields
		}
	}
}

// WithRetryDelay sets the base delay for failed messages.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.retryDelay = delay
		}
	}
}

func NewDispatcher(embedder embedding.Client, store repository.VectorRepo, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		embedder:     embedder,
		store:        store,
		logger:       zap.NewNop(),
		fields:       catalog.IndexedFields,
		maxSentences: chunking.DefaultMaxSentences,
		retryDelay:   DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleBatch processes every message in msgs and records exactly one
// verdict on each. The returned error joins the per-message failures.
func (d *Dispatcher) HandleBatch(ctx context.Context, msgs []*queue.Message) error {
	var errs []error
	for _, msg := range msgs {
		if err := d.handleMessage(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *queue.Message) error {
	game, err := catalog.Decode(msg.Body)
	if err != nil {
		// Redelivery cannot fix a malformed record.
		d.logger.Warn("Dropping invalid message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		msg.Ack()
		return nil
	}

	logger := d.logger.With(
		zap.String("message_id", msg.ID),
		zap.Int64("game_id", game.ID))

	var records []repository.VectorRecord
	var errs []error
	for _, field := range d.fields {
		fieldRecords, err := d.embedField(ctx, game, field)
		if err != nil {
			logger.Error("Failed to embed field", zap.String("field", string(field)), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		records = append(records, fieldRecords...)
	}

	if len(records) > 0 {
		n, err := d.store.Upsert(ctx, records)
		if err != nil {
			logger.Error("Failed to upsert vectors", zap.Int("vectors", len(records)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%w: %w", ErrUpsert, err))
		} else {
			logger.Debug("Vectors upserted", zap.Int("vectors", n))
		}
	}

	if len(errs) == 0 {
		msg.Ack()
		return nil
	}

	delay := d.backoff(msg.Attempts)
	msg.Retry(delay)
	logger.Info("Message scheduled for retry",
		zap.Int("attempts", msg.Attempts),
		zap.Duration("delay", delay))
	return fmt.Errorf("game %d: %w", game.ID, errors.Join(errs...))
}

// embedField returns one record per chunk of field, or nil when the field is
// absent or blank.
func (d *Dispatcher) embedField(ctx context.Context, game *catalog.Game, field catalog.Field) ([]repository.VectorRecord, error) {
	if !game.HasText(field) {
		return nil, nil
	}
	text := catalog.NormalizeText(game.Text(field))
	if text == "" {
		return nil, nil
	}

	chunks := chunking.ChunkBySentences(text, d.maxSentences)
	vectors, err := d.embedder.GetEmbeddings(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFieldEmbedding, field, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %s: %d chunks, %d vectors", ErrFieldEmbedding, field, len(chunks), len(vectors))
	}

	records := make([]repository.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = repository.VectorRecord{
			ID:     VectorID(game.ID, field, i, len(chunks)),
			Values: vectors[i],
			Metadata: repository.VectorMetadata{
				Text:   chunk,
				GameID: game.ID,
				Name:   game.Name,
				URL:    game.URL,
				Type:   string(field),
			},
		}
	}
	return records, nil
}

// VectorID names chunk index of a field that produced total chunks:
// "igdb:42:summary" for a single chunk, "igdb:42:summary[1]" otherwise.
func VectorID(gameID int64, field catalog.Field, index, total int) string {
	if total > 1 {
		return fmt.Sprintf("igdb:%d:%s[%d]", gameID, field, index)
	}
	return fmt.Sprintf("igdb:%d:%s", gameID, field)
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	return backoffDelay(d.retryDelay, attempts, rand.Float64())
}

// backoffDelay is base * 2^(attempts-1) with up to 25% jitter either way,
// capped at MaxRetryDelay. r is in [0, 1).
func backoffDelay(base time.Duration, attempts int, r float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempts-1))
	jitter := delay * 0.25 * (2*r - 1)

	total := time.Duration(delay + jitter)
	if total > MaxRetryDelay || total < 0 {
		return MaxRetryDelay
	}
	return total
}
