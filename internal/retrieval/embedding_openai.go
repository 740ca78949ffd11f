package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// OpenAIEmbeddingClient implements EmbeddingClient against OpenAI's
// /v1/embeddings endpoint. The eino-ext model components this module
// otherwise depends on cover chat completion only, not embeddings, so this
// client talks to the REST endpoint directly over net/http rather than
// inventing a dependency the rest of the pack never shows.
type OpenAIEmbeddingClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIEmbeddingClient builds a client from explicit config, falling
// back to OPENAI_API_KEY / OPENAI_BASE_URL when apiKey/baseURL are empty.
func NewOpenAIEmbeddingClient(apiKey, baseURL, model string) *OpenAIEmbeddingClient {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbeddingClient{
		apiKey: apiKey, baseURL: baseURL, model: model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns the embedding vector for text. Callers tolerate failure by
// leaving the chunk's embedding empty and falling back to lexical scoring.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("retrieval: OPENAI_API_KEY not set")
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out embeddingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("retrieval: decode embedding response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("retrieval: embedding api error: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK || len(out.Data) == 0 {
		return nil, fmt.Errorf("retrieval: embedding request failed with status %d", resp.StatusCode)
	}
	return out.Data[0].Embedding, nil
}

func (c *OpenAIEmbeddingClient) ProviderID() string { return "openai" }
func (c *OpenAIEmbeddingClient) ModelID() string    { return c.model }
