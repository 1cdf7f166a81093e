package client

import (
	"context"
	"errors"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient wraps the OpenAI API client. The same client serves Azure
// OpenAI deployments.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(openai.DefaultConfig(apiKey), openai.GPT4oMini)
}

// NewAzureOpenAIClient creates a client for an Azure OpenAI deployment.
func NewAzureOpenAIClient(endpoint, apiKey, deployment, apiVersion string) *OpenAIClient {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	cfg.AzureModelMapperFunc = func(string) string {
		return deployment
	}
	return NewOpenAIClientWithConfig(cfg, deployment)
}

// NewOpenAIClientWithConfig creates a client from an explicit SDK config.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// WithModel sets the model to use.
func (c *OpenAIClient) WithModel(model string) *OpenAIClient {
	c.model = model
	return c
}

// ModelID returns the configured model or deployment.
func (c *OpenAIClient) ModelID() string {
	return c.model
}

// ChatStream streams chat responses. onChunk is called for every non-empty
// fragment in order.
func (c *OpenAIClient) ChatStream(ctx context.Context, req ChatRequest, onChunk func(string) error) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildOpenAIMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stream:      true,
	})
	if err != nil {
		return mapOpenAIError(err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return mapOpenAIError(err)
		}

		if len(response.Choices) > 0 && response.Choices[0].Delta.Content != "" {
			if err := onChunk(response.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}
}

func buildOpenAIMessages(req ChatRequest) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage

	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	return messages
}

func mapOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ErrRateLimit{Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &ErrProviderUnavailable{Err: err}
		case apiErr.HTTPStatusCode >= 400:
			return &ErrRejected{StatusCode: apiErr.HTTPStatusCode, Err: err}
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ErrRateLimit{Err: err}
		case reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500:
			return &ErrRejected{StatusCode: reqErr.HTTPStatusCode, Err: err}
		}
	}
	return &ErrProviderUnavailable{Err: err}
}
