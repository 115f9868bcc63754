package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	messagesBucket   = []byte("messages")
	visibilityBucket = []byte("visibility")
	deadLetterBucket = []byte("dead_letter")
)

const (
	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultMaxReceive        = 5
	DefaultRetryDelay        = 10 * time.Second
)

// entry is the stored form of a message.
type entry struct {
	ID         string    `json:"id"`
	Body       []byte    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	VisibleAt  time.Time `json:"visible_at"`
	Attempts   int       `json:"attempts"`
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Visible   int `json:"visible"`
	Invisible int `json:"invisible"`
	Dead      int `json:"dead"`
}

// BoltQueue is a persistent visibility-timeout queue stored in BoltDB.
// Messages are kept in one bucket and ordered for delivery by a second
// bucket keyed on visibility time.
type BoltQueue struct {
	db                *bolt.DB
	visibilityTimeout time.Duration
	maxReceive        int
	logger            *zap.Logger
	now               func() time.Time
	mu                sync.RWMutex
}

// Option configures a BoltQueue.
type Option func(*BoltQueue)

// WithVisibilityTimeout sets how long a received message stays hidden
// before it is delivered again.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *BoltQueue) {
		if d > 0 {
			q.visibilityTimeout = d
		}
	}
}

// WithMaxReceive sets how many deliveries a message gets before it is
// moved to the dead-letter bucket.
func WithMaxReceive(n int) Option {
	return func(q *BoltQueue) {
		if n > 0 {
			q.maxReceive = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(q *BoltQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// Open opens or creates the queue database at path.
func Open(path string, opts ...Option) (*BoltQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for queue: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{messagesBucket, visibilityBucket, deadLetterBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	q := &BoltQueue{
		db:                db,
		visibilityTimeout: DefaultVisibilityTimeout,
		maxReceive:        DefaultMaxReceive,
		logger:            zap.NewNop(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// SendBatch enqueues bodies in one transaction. Each message becomes
// visible after delay.
func (q *BoltQueue) SendBatch(ctx context.Context, bodies [][]byte, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(bodies) == 0 {
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.db == nil {
		return ErrClosed
	}

	now := q.now()
	return q.db.Update(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(messagesBucket)
		idx := tx.Bucket(visibilityBucket)

		for _, body := range bodies {
			e := entry{
				ID:         uuid.NewString(),
				Body:       body,
				EnqueuedAt: now,
				VisibleAt:  now.Add(delay),
			}
			if err := putEntry(msgs, idx, &e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Receive claims up to limit visible messages in visibility order. Claimed
// messages stay hidden for the visibility timeout. Messages that exhausted
// their deliveries are moved to the dead-letter bucket instead.
func (q *BoltQueue) Receive(ctx context.Context, limit int) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.db == nil {
		return nil, ErrClosed
	}

	now := q.now()
	var received []*Message

	err := q.db.Update(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(messagesBucket)
		idx := tx.Bucket(visibilityBucket)
		dead := tx.Bucket(deadLetterBucket)

		var claimed, expired []entry
		var staleKeys [][]byte

		c := idx.Cursor()
		for k, v := c.First(); k != nil && len(claimed) < limit; k, v = c.Next() {
			visibleAt, err := parseIndexKey(k)
			if err != nil {
				staleKeys = append(staleKeys, copyBytes(k))
				continue
			}
			if visibleAt.After(now) {
				break
			}

			raw := msgs.Get(v)
			if raw == nil {
				staleKeys = append(staleKeys, copyBytes(k))
				continue
			}

			var e entry
			if err := json.Unmarshal(raw, &e); err != nil {
				return fmt.Errorf("failed to decode message %s: %w", v, err)
			}

			if e.Attempts >= q.maxReceive {
				expired = append(expired, e)
				continue
			}
			claimed = append(claimed, e)
		}

		for _, k := range staleKeys {
			if err := idx.Delete(k); err != nil {
				return err
			}
		}

		for _, e := range expired {
			if err := deleteEntry(msgs, idx, &e); err != nil {
				return err
			}
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := dead.Put([]byte(e.ID), data); err != nil {
				return err
			}
			q.logger.Warn("message moved to dead letter",
				zap.String("message_id", e.ID),
				zap.Int("attempts", e.Attempts))
		}

		for _, e := range claimed {
			if err := idx.Delete(indexKey(e.VisibleAt, e.ID)); err != nil {
				return err
			}
			e.Attempts++
			e.VisibleAt = now.Add(q.visibilityTimeout)
			if err := putEntry(msgs, idx, &e); err != nil {
				return err
			}

			received = append(received, &Message{
				ID:         e.ID,
				Body:       e.Body,
				Attempts:   e.Attempts,
				EnqueuedAt: e.EnqueuedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return received, nil
}

// Ack deletes a message.
func (q *BoltQueue) Ack(ctx context.Context, id string) error {
	return q.update(ctx, func(tx *bolt.Tx) error {
		return ackTx(tx, id)
	})
}

// Retry makes a message visible again after delay.
func (q *BoltQueue) Retry(ctx context.Context, id string, delay time.Duration) error {
	now := q.now()
	return q.update(ctx, func(tx *bolt.Tx) error {
		return retryTx(tx, id, now.Add(delay))
	})
}

// Settle applies the verdicts recorded on msgs. A message without an
// explicit verdict is acked when handlerErr is nil and retried otherwise.
// A message whose verdict cannot be applied is logged and skipped; the rest
// of the batch still commits.
func (q *BoltQueue) Settle(ctx context.Context, msgs []*Message, handlerErr error) error {
	if len(msgs) == 0 {
		return nil
	}

	now := q.now()
	var errs []error
	err := q.update(ctx, func(tx *bolt.Tx) error {
		for _, m := range msgs {
			verdict, delay := m.verdict()
			if verdict == outcomeNone {
				if handlerErr == nil {
					verdict = outcomeAck
				} else {
					verdict, delay = outcomeRetry, DefaultRetryDelay
				}
			}

			var err error
			if verdict == outcomeAck {
				err = ackTx(tx, m.ID)
			} else {
				err = retryTx(tx, m.ID, now.Add(delay))
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				q.logger.Error("failed to settle message",
					zap.String("message_id", m.ID),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("settle %s: %w", m.ID, err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Stats counts visible, invisible and dead messages.
func (q *BoltQueue) Stats() (Stats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.db == nil {
		return Stats{}, ErrClosed
	}

	now := q.now()
	var s Stats
	err := q.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(visibilityBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			visibleAt, err := parseIndexKey(k)
			if err != nil {
				continue
			}
			if visibleAt.After(now) {
				s.Invisible++
			} else {
				s.Visible++
			}
		}
		s.Dead = tx.Bucket(deadLetterBucket).Stats().KeyN
		return nil
	})
	return s, err
}

// Close closes the underlying database.
func (q *BoltQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.db != nil {
		err := q.db.Close()
		q.db = nil
		return err
	}
	return nil
}

func (q *BoltQueue) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.db == nil {
		return ErrClosed
	}
	return q.db.Update(fn)
}

func ackTx(tx *bolt.Tx, id string) error {
	msgs := tx.Bucket(messagesBucket)
	e, err := getEntry(msgs, id)
	if err != nil {
		return err
	}
	return deleteEntry(msgs, tx.Bucket(visibilityBucket), e)
}

func retryTx(tx *bolt.Tx, id string, visibleAt time.Time) error {
	msgs := tx.Bucket(messagesBucket)
	idx := tx.Bucket(visibilityBucket)

	e, err := getEntry(msgs, id)
	if err != nil {
		return err
	}
	if err := idx.Delete(indexKey(e.VisibleAt, e.ID)); err != nil {
		return err
	}
	e.VisibleAt = visibleAt
	return putEntry(msgs, idx, e)
}

func getEntry(msgs *bolt.Bucket, id string) (*entry, error) {
	raw := msgs.Get([]byte(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}
	return &e, nil
}

func putEntry(msgs, idx *bolt.Bucket, e *entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := msgs.Put([]byte(e.ID), data); err != nil {
		return err
	}
	return idx.Put(indexKey(e.VisibleAt, e.ID), []byte(e.ID))
}

func deleteEntry(msgs, idx *bolt.Bucket, e *entry) error {
	if err := idx.Delete(indexKey(e.VisibleAt, e.ID)); err != nil {
		return err
	}
	return msgs.Delete([]byte(e.ID))
}

// indexKey zero-pads the timestamp so byte order matches time order.
func indexKey(visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d:%s", visibleAt.UnixNano(), id))
}

func parseIndexKey(key []byte) (time.Time, error) {
	if len(key) < 21 || key[20] != ':' {
		return time.Time{}, fmt.Errorf("invalid index key %q", key)
	}
	ts, err := strconv.ParseInt(string(key[:20]), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ts), nil
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
