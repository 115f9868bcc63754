package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultWorkersAIBaseURL = "https://api.cloudflare.com/client/v4"
	DefaultWorkersAIModel   = "@cf/baai/bge-large-en-v1.5"
)

type workersAIRequest struct {
	Text []string `json:"text"`
}

type workersAIResponse struct {
	Result struct {
		Shape []int       `json:"shape"`
		Data  [][]float32 `json:"data"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// WorkersAI runs text embedding models on Cloudflare Workers AI.
type WorkersAI struct {
	BaseURL    string
	AccountID  string
	APIToken   string
	Model      string
	HTTPClient *http.Client
}

func NewWorkersAI(baseURL, accountID, apiToken, model string) *WorkersAI {
	if baseURL == "" {
		baseURL = DefaultWorkersAIBaseURL
	}
	if model == "" {
		model = DefaultWorkersAIModel
	}
	return &WorkersAI{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AccountID: accountID,
		APIToken:  apiToken,
		Model:     model,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *WorkersAI) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(workersAIRequest{Text: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.BaseURL, c.AccountID, c.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workers ai returned status %d: %s", resp.StatusCode, string(body))
	}

	var out workersAIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !out.Success {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("workers ai run failed: %s", strings.Join(msgs, "; "))
	}

	if len(out.Result.Data) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(texts), len(out.Result.Data))
	}

	return out.Result.Data, nil
}
