package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"Orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"Opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"LengthMismatch", []float32{1}, []float32{1, 2}, 0},
		{"ZeroVector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, CosineSimilarity(tc.a, tc.b), 1e-6)
		})
	}
}

func TestTEI_GetEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req TEIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Normalize)

		out := make([][]float32, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	vectors, err := NewTEI(server.URL).GetEmbeddings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vectors)
}

func TestTEI_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewTEI(server.URL).GetEmbeddings(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestTEI_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[0.1, 0.2]]`))
	}))
	defer server.Close()

	_, err := NewTEI(server.URL).GetEmbeddings(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestWorkersAI_GetEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acct/ai/run/@cf/baai/bge-large-en-v1.5", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req workersAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"A cat sat.", "The end."}, req.Text)

		w.Write([]byte(`{"result":{"shape":[2,2],"data":[[0.1,0.2],[0.3,0.4]]},"success":true,"errors":[]}`))
	}))
	defer server.Close()

	client := NewWorkersAI(server.URL, "acct", "secret", "")
	vectors, err := client.GetEmbeddings(context.Background(), []string{"A cat sat.", "The end."})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors)
}

func TestWorkersAI_Failure(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"HTTPError", http.StatusUnauthorized, `{"success":false}`, "status 401"},
		{"UnsuccessfulRun", http.StatusOK, `{"success":false,"errors":[{"code":5006,"message":"bad input"}]}`, "bad input"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewWorkersAI(server.URL, "acct", "secret", "").GetEmbeddings(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestOpenAI_GetEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"test-embed","data":[` +
			`{"object":"embedding","index":0,"embedding":[0.5,0.5]},` +
			`{"object":"embedding","index":1,"embedding":[0.1,0.9]}],` +
			`"usage":{"prompt_tokens":4,"total_tokens":4}}`))
	}))
	defer server.Close()

	client, err := NewOpenAI(server.URL, "", "test-embed")
	require.NoError(t, err)

	vectors, err := client.GetEmbeddings(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}, {0.1, 0.9}}, vectors)
}

type countingClient struct {
	calls atomic.Int32
}

func (c *countingClient) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return make([][]float32, len(texts)), nil
}

func TestRateLimited(t *testing.T) {
	next := &countingClient{}
	client := NewRateLimited(next, 20, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.GetEmbeddings(context.Background(), []string{"x"})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), next.calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimited_ContextCanceled(t *testing.T) {
	client := NewRateLimited(&countingClient{}, 0.001, 1)
	_, err := client.GetEmbeddings(context.Background(), []string{"x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.GetEmbeddings(ctx, []string{"x"})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, provider := range []string{ProviderWorkersAI, ProviderTEI, ProviderOpenAI} {
		t.Run(provider, func(t *testing.T) {
			client, err := New(Config{Provider: provider, BaseURL: "http://localhost:8080", Model: "m"})
			require.NoError(t, err)
			assert.IsType(t, &RateLimited{}, client)
		})
	}

	_, err := New(Config{Provider: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
