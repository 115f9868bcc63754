package crawler

import (
	"time"
)

type Config struct {
	BaseURL        string
	ClientID       string
	AccessToken    string
	PageSize       int
	MaxOffset      int
	SendDelay      time.Duration
	RequestDelay   time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	// ProxyURL is an optional SOCKS5 host:port, e.g. a local Tor daemon.
	ProxyURL string
}

// DefaultConfig returns a default paginator configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.igdb.com/v4",
		PageSize:       100,
		MaxOffset:      300000,
		SendDelay:      1 * time.Second,
		RequestDelay:   250 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		UserAgent:      "GameIndex-Crawler/1.0",
	}
}
