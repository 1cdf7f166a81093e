package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"
)

// GeminiClient wraps the Google Vertex AI Gemini client.
type GeminiClient struct {
	client    *genai.Client
	model     string
	projectID string
	location  string
}

// NewGeminiClient creates a new Gemini client using Vertex AI and the
// application default credentials.
func NewGeminiClient(ctx context.Context, projectID, location string) (*GeminiClient, error) {
	return newGeminiClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
}

// NewGeminiClientWithServiceAccount creates a new Gemini client from a
// service account key. The project is taken from the key when projectID is
// empty.
func NewGeminiClientWithServiceAccount(ctx context.Context, projectID, location string, serviceAccountJSON []byte) (*GeminiClient, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: serviceAccountJSON,
		Scopes:          []string{cloudPlatformScope},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load gemini credentials: %w", err)
	}

	if projectID == "" {
		projectID, err = creds.ProjectID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve gemini project: %w", err)
		}
	}

	return newGeminiClient(ctx, &genai.ClientConfig{
		Project:     projectID,
		Location:    location,
		Backend:     genai.BackendVertexAI,
		Credentials: creds,
	})
}

func newGeminiClient(ctx context.Context, cfg *genai.ClientConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		client:    client,
		model:     "gemini-2.0-flash",
		projectID: cfg.Project,
		location:  cfg.Location,
	}, nil
}

// WithModel sets the model to use.
func (c *GeminiClient) WithModel(model string) *GeminiClient {
	c.model = model
	return c
}

// ModelID returns the configured model.
func (c *GeminiClient) ModelID() string {
	return c.model
}

// ChatStream streams chat responses.
func (c *GeminiClient) ChatStream(ctx context.Context, req ChatRequest, onChunk func(string) error) error {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg) {
		if err != nil {
			return mapGeminiError(err)
		}
		if text := resp.Text(); text != "" {
			if err := onChunk(text); err != nil {
				return err
			}
		}
	}
	return nil
}

func mapGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return &ErrRateLimit{Err: err}
		case apiErr.Code >= 500:
			return &ErrProviderUnavailable{Err: err}
		case apiErr.Code >= 400:
			return &ErrRejected{StatusCode: apiErr.Code, Err: err}
		}
	}
	return &ErrProviderUnavailable{Err: err}
}
