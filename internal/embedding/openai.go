package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/iammorganparry/clive/apps/learnbot/internal/retry"
)

// OpenAIClient generates embeddings with the OpenAI embeddings API.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

func NewOpenAIClient(apiKey, model string, maxRetries int, retryDelay time.Duration) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIClient{
		client:     openai.NewClient(apiKey),
		model:      model,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// Embed retries transient failures with exponential backoff.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := retry.Sleep(ctx, c.retryDelay, attempt); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		resp, err := c.client.CreateEmbeddings(callCtx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.model),
		})
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}
		if len(resp.Data) == 0 {
			lastErr = fmt.Errorf("attempt %d: no embeddings returned", attempt+1)
			continue
		}
		return resp.Data[0].Embedding, nil
	}

	return nil, fmt.Errorf("generate embedding after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *OpenAIClient) Model() string { return c.model }
