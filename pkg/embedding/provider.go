package embedding

import "fmt"

const (
	ProviderWorkersAI = "workersai"
	ProviderTEI       = "tei"
	ProviderOpenAI    = "openai"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider  string
	BaseURL   string
	Model     string
	APIKey    string
	AccountID string
	RateLimit float64
	Burst     int
}

// New builds the Client named by cfg.Provider, wrapped in a rate limiter.
func New(cfg Config) (Client, error) {
	var client Client

	switch cfg.Provider {
	case ProviderWorkersAI:
		client = NewWorkersAI(cfg.BaseURL, cfg.AccountID, cfg.APIKey, cfg.Model)
	case ProviderTEI:
		client = NewTEI(cfg.BaseURL)
	case ProviderOpenAI:
		c, err := NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		client = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	return NewRateLimited(client, cfg.RateLimit, cfg.Burst), nil
}
