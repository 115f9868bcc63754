package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PageSource returns one page of raw catalog records.
type PageSource interface {
	FetchPage(ctx context.Context, offset, limit int) ([]json.RawMessage, error)
}

// Sender enqueues one page of records as a single batch.
type Sender interface {
	SendBatch(ctx context.Context, bodies [][]byte, delay time.Duration) error
}

type Stats struct {
	Pages      int `json:"pages"`
	Records    int `json:"records"`
	LastOffset int `json:"last_offset"`
}

// Paginator walks the catalog in fixed-size pages, in id order, and forwards
// every page to the queue.
type Paginator struct {
	source PageSource
	sender Sender
	config *Config
	logger *zap.Logger
}

func NewPaginator(source PageSource, sender Sender, config *Config, logger *zap.Logger) *Paginator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Paginator{
		source: source,
		sender: sender,
		config: config,
		logger: logger,
	}
}

// Run fetches pages at offsets 0, PageSize, 2*PageSize, ... until a page comes
// back empty or MaxOffset is reached. The first fetch or send error aborts
// the run; pages already sent stay queued.
func (p *Paginator) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	pageSize := p.config.PageSize
	if pageSize < 1 {
		return stats, fmt.Errorf("invalid page size %d", pageSize)
	}

	start := time.Now()
	for offset := 0; offset < p.config.MaxOffset; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		records, err := p.source.FetchPage(ctx, offset, pageSize)
		if err != nil {
			p.logger.Error("Failed to fetch page", zap.Int("offset", offset), zap.Error(err))
			return stats, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		if len(records) == 0 {
			p.logger.Info("Catalog exhausted", zap.Int("offset", offset))
			break
		}

		bodies := make([][]byte, len(records))
		for i, r := range records {
			bodies[i] = r
		}
		if err := p.sender.SendBatch(ctx, bodies, p.config.SendDelay); err != nil {
			p.logger.Error("Failed to enqueue page", zap.Int("offset", offset), zap.Error(err))
			return stats, fmt.Errorf("enqueue page at offset %d: %w", offset, err)
		}

		stats.Pages++
		stats.Records += len(records)
		stats.LastOffset = offset
		p.logger.Debug("Page enqueued",
			zap.Int("offset", offset),
			zap.Int("records", len(records)))
	}

	p.logger.Info("Pagination finished",
		zap.Int("pages", stats.Pages),
		zap.Int("records", stats.Records),
		zap.Duration("elapsed", time.Since(start)))
	return stats, nil
}
