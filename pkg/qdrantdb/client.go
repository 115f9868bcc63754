package qdrantdb

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

type Config struct {
	Host       string
	Port       int // gRPC port
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  uint64
}

type GameClient struct {
	Client     *qdrant.Client
	collection string
	dimension  uint64
}

func NewClient(cfg Config) (*GameClient, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("err create qdrant client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = GameCollectionName
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = DefaultDimension
	}
	return &GameClient{Client: client, collection: collection, dimension: dim}, nil
}

func (c *GameClient) Close() error {
	return c.Client.Close()
}
