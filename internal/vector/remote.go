package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// RemoteProvider calls an HTTP embeddings endpoint compatible with the
// common {input: string} -> {embedding: []float32} shape. The API key is
// read once from the named environment variable, never logged or returned.
type RemoteProvider struct {
	endpoint string
	apiKey   string
	dim      int
	client   *http.Client
}

// NewRemoteProvider builds a provider posting to endpoint, reading its API
// key from the environment variable apiKeyEnv (e.g. "OPENAI_API_KEY").
func NewRemoteProvider(endpoint, apiKeyEnv string, dim int) *RemoteProvider {
	return &RemoteProvider{
		endpoint: endpoint,
		apiKey:   os.Getenv(apiKeyEnv),
		dim:      dim,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *RemoteProvider) Dimension() int { return p.dim }

type remoteEmbedRequest struct {
	Input string `json:"input"`
}

type remoteEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *RemoteProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("vector: remote provider missing API key")
	}
	body, err := json.Marshal(remoteEmbedRequest{Input: text})
	if err != nil {
		return nil, fmt.Errorf("vector: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector: remote embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vector: remote embedding status %d", resp.StatusCode)
	}
	var out remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vector: decode response: %w", err)
	}
	return Normalize(out.Embedding), nil
}
