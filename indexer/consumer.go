package indexer

import (
	"context"
	"sync"
	"time"

	"gameindex/queue"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Receiver is the queue side of a Consumer.
type Receiver interface {
	Receive(ctx context.Context, limit int) ([]*queue.Message, error)
	Settle(ctx context.Context, msgs []*queue.Message, handlerErr error) error
}

type BatchHandler interface {
	HandleBatch(ctx context.Context, msgs []*queue.Message) error
}

type ConsumerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    10,
		Concurrency:  2,
	}
}

// Consumer polls the queue and hands each batch to a worker pool.
type Consumer struct {
	receiver Receiver
	handler  BatchHandler
	pool     *ants.Pool
	config   *ConsumerConfig
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewConsumer(receiver Receiver, handler BatchHandler, config *ConsumerConfig, logger *zap.Logger) (*Consumer, error) {
	if config == nil {
		config = DefaultConsumerConfig()
	}
	size := config.Concurrency
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		receiver: receiver,
		handler:  handler,
		pool:     pool,
		config:   config,
		logger:   logger,
	}, nil
}

// Run polls until ctx is cancelled, then waits for in-flight batches.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	c.logger.Info("Consumer started",
		zap.Int("batch_size", c.config.BatchSize),
		zap.Int("concurrency", c.pool.Cap()))

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			c.logger.Info("Consumer stopped")
			return nil
		case <-ticker.C:
			// Leave messages queued while every worker is busy.
			if c.pool.Free() == 0 {
				continue
			}
			if _, err := c.poll(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("Failed to receive messages", zap.Error(err))
			}
		}
	}
}

// Drain processes batches synchronously until the queue has nothing
// visible, and returns the number of messages handled.
func (c *Consumer) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		msgs, err := c.receiver.Receive(ctx, c.config.BatchSize)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}
		c.process(ctx, msgs)
		total += len(msgs)
	}
}

func (c *Consumer) poll(ctx context.Context) (int, error) {
	msgs, err := c.receiver.Receive(ctx, c.config.BatchSize)
	if err != nil || len(msgs) == 0 {
		return 0, err
	}

	c.wg.Add(1)
	err = c.pool.Submit(func() {
		defer c.wg.Done()
		c.process(ctx, msgs)
	})
	if err != nil {
		c.wg.Done()
		c.logger.Error("Failed to submit batch", zap.Error(err))
		c.settle(ctx, msgs, err)
		return 0, err
	}
	return len(msgs), nil
}

func (c *Consumer) process(ctx context.Context, msgs []*queue.Message) {
	err := c.handler.HandleBatch(ctx, msgs)
	if err != nil {
		c.logger.Warn("Batch finished with failures", zap.Int("messages", len(msgs)), zap.Error(err))
	}
	c.settle(ctx, msgs, err)
}

func (c *Consumer) settle(ctx context.Context, msgs []*queue.Message, handlerErr error) {
	// Verdicts are persisted even while shutting down.
	if err := c.receiver.Settle(context.WithoutCancel(ctx), msgs, handlerErr); err != nil {
		c.logger.Error("Failed to settle batch", zap.Error(err))
	}
}

// Release frees the worker pool. The consumer must not be used afterwards.
func (c *Consumer) Release() {
	c.pool.Release()
}
