package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "gameindex",
		Usage: "Index the IGDB catalog into a vector store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"GAMEINDEX_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP front door and the queue consumer",
				Action: serveCommand,
			},
			{
				Name:   "backfill",
				Usage:  "Page the whole catalog into the queue once",
				Action: backfillCommand,
			},
			{
				Name:   "consume",
				Usage:  "Run the queue consumer",
				Action: consumeCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Process visible messages and exit",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a similarity query against the vector store",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of results",
						Value: 10,
					},
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func serveCommand(c *cli.Context) error {
	app, err := newApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.cfg.ValidateCrawl(); err != nil {
		return err
	}
	server, consumer, err := app.server(c.Context)
	if err != nil {
		return err
	}
	defer consumer.Release()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(ctx) }()

	serveErr := server.Start(ctx)
	cancel()
	if consumerErr := <-errCh; serveErr == nil {
		serveErr = consumerErr
	}
	return serveErr
}

func backfillCommand(c *cli.Context) error {
	app, err := newApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.cfg.ValidateCrawl(); err != nil {
		return err
	}
	paginator, err := app.paginator()
	if err != nil {
		return err
	}

	stats, err := paginator.Run(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Enqueued %d records from %d pages\n", stats.Records, stats.Pages)
	return nil
}

func consumeCommand(c *cli.Context) error {
	app, err := newApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	consumer, err := app.consumer(c.Context)
	if err != nil {
		return err
	}
	defer consumer.Release()

	if c.Bool("once") {
		n, err := consumer.Drain(c.Context)
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d messages\n", n)
		return nil
	}
	return consumer.Run(c.Context)
}

func searchCommand(c *cli.Context) error {
	query := c.Args().First()
	if query == "" {
		return fmt.Errorf("query argument is required")
	}

	app, err := newApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	embedder, err := app.embedder()
	if err != nil {
		return err
	}
	store, err := app.store(c.Context)
	if err != nil {
		return err
	}

	vectors, err := embedder.GetEmbeddings(c.Context, []string{query})
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	results, err := store.Search(c.Context, vectors[0], c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	for i, r := range results {
		fmt.Printf("%2d. %.4f  %-28s %s\n", i+1, r.Score, r.ID, r.Metadata.Text)
	}
	return nil
}
