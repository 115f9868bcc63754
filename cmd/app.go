package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gameindex/api"
	"gameindex/config"
	"gameindex/crawler"
	"gameindex/indexer"
	"gameindex/pkg/embedding"
	"gameindex/pkg/memorydb"
	"gameindex/pkg/postgres"
	"gameindex/pkg/qdrantdb"
	"gameindex/queue"
	"gameindex/repository"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app lazily builds the components a command needs and closes them in
// reverse order.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	q       *queue.BoltQueue
	vectors repository.VectorRepo
	embed   embedding.Client
	closers []func() error
}

func newApp(c *cli.Context) (*app, error) {
	// =========
	// Config
	// =========
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// =========
	// Logging
	// =========
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})
	return a, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("close: %v", err)
	}
}

func (a *app) queue() (*queue.BoltQueue, error) {
	if a.q != nil {
		return a.q, nil
	}
	q, err := queue.Open(a.cfg.Queue.Path,
		queue.WithVisibilityTimeout(a.cfg.Queue.VisibilityTimeout),
		queue.WithMaxReceive(a.cfg.Queue.MaxReceive),
		queue.WithLogger(a.logger.Named("queue")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}
	a.q = q
	a.closers = append(a.closers, q.Close)
	return q, nil
}

// embedder returns the shared client so every caller draws from one
// rate limiter.
func (a *app) embedder() (embedding.Client, error) {
	if a.embed != nil {
		return a.embed, nil
	}

	e := a.cfg.Embedding
	client, err := embedding.New(embedding.Config{
		Provider:  e.Provider,
		BaseURL:   e.BaseURL,
		Model:     e.Model,
		APIKey:    e.APIKey,
		AccountID: e.AccountID,
		RateLimit: e.RateLimit,
		Burst:     e.Burst,
	})
	if err != nil {
		return nil, err
	}
	a.embed = client
	return client, nil
}

func (a *app) store(ctx context.Context) (repository.VectorRepo, error) {
	if a.vectors != nil {
		return a.vectors, nil
	}

	s := a.cfg.Store
	switch s.Provider {
	case "qdrant":
		qdb, err := qdrantdb.NewClient(qdrantdb.Config{
			Host:       s.QdrantHost,
			Port:       s.QdrantPort,
			APIKey:     s.QdrantAPIKey,
			Collection: s.Collection,
			Dimension:  uint64(a.cfg.Embedding.Dimension),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, qdb.Close)
		if err := qdb.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		a.vectors = qdb
	case "postgres":
		pg, err := postgres.NewVectorStore(ctx, s.DatabaseURL, a.cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		a.vectors = pg
	case "memory":
		a.logger.Warn("Using in-memory vector store; vectors are lost on exit")
		a.vectors = memorydb.New(a.cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown store provider %q", s.Provider)
	}
	return a.vectors, nil
}

func (a *app) paginator() (*crawler.Paginator, error) {
	q, err := a.queue()
	if err != nil {
		return nil, err
	}

	i := a.cfg.IGDB
	ccfg := crawler.DefaultConfig()
	ccfg.BaseURL = i.BaseURL
	ccfg.ClientID = i.ClientID
	ccfg.AccessToken = i.AccessToken
	ccfg.PageSize = i.PageSize
	ccfg.MaxOffset = i.MaxOffset
	ccfg.SendDelay = i.SendDelay
	ccfg.RequestDelay = i.RequestDelay
	ccfg.ProxyURL = i.ProxyURL

	source, err := crawler.NewIGDBSource(ccfg)
	if err != nil {
		return nil, err
	}
	return crawler.NewPaginator(source, q, ccfg, a.logger.Named("paginator")), nil
}

func (a *app) consumer(ctx context.Context) (*indexer.Consumer, error) {
	q, err := a.queue()
	if err != nil {
		return nil, err
	}
	embedder, err := a.embedder()
	if err != nil {
		return nil, err
	}
	store, err := a.store(ctx)
	if err != nil {
		return nil, err
	}

	cc := a.cfg.Consumer
	dispatcher := indexer.NewDispatcher(embedder, store,
		indexer.WithLogger(a.logger.Named("indexer")),
		indexer.WithMaxSentences(cc.MaxSentences),
		indexer.WithRetryDelay(cc.RetryDelay),
	)
	return indexer.NewConsumer(q, dispatcher, &indexer.ConsumerConfig{
		PollInterval: cc.PollInterval,
		BatchSize:    cc.BatchSize,
		Concurrency:  cc.Concurrency,
	}, a.logger.Named("consumer"))
}

func (a *app) server(ctx context.Context) (*api.Server, *indexer.Consumer, error) {
	paginator, err := a.paginator()
	if err != nil {
		return nil, nil, err
	}
	consumer, err := a.consumer(ctx)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := a.embedder()
	if err != nil {
		consumer.Release()
		return nil, nil, err
	}
	server := api.NewServer(paginator, a.q, embedder, a.vectors, a.cfg.AppPort, a.logger.Named("api"))
	return server, consumer, nil
}
