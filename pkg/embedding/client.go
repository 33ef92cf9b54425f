// Package embedding provides clients for turning text into vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"documind/pkg/log"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// Model returns the model id the vectors belong to.
	Model() string
}

// Options configures an OpenAI-compatible embedding client.
type Options struct {
	ModelID    string // selection id, e.g. openai-text-embedding-3-small
	APIModel   string // model name sent to the provider
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
}

type openAICompatibleClient struct {
	opts   Options
	client *http.Client
}

// NewClient creates a new embedding client for an OpenAI-compatible /embeddings endpoint.
func NewClient(opts Options) Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &openAICompatibleClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *openAICompatibleClient) Model() string {
	return c.opts.ModelID
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
// Transport errors and 5xx/429 responses are retried with a linear backoff.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			log.Warnf("[EmbeddingClient] 第 %d 次重试 Embedding API, model: %s", attempt, c.opts.APIModel)
		}
		vec, retry, err := c.call(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *openAICompatibleClient) call(ctx context.Context, text string) ([]float32, bool, error) {
	log.Debugf("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.opts.APIModel, len(text))
	reqBody := embeddingRequest{
		Model:      c.opts.APIModel,
		Input:      []string{text},
		Dimensions: c.opts.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, true, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("embedding api returned non-200 status: %s: %s", resp.Status, string(body))
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, false, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, false, fmt.Errorf("received empty embedding from api")
	}

	log.Debugf("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(embeddingResp.Data[0].Embedding))
	return embeddingResp.Data[0].Embedding, false, nil
}
