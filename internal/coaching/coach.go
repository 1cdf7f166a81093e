package coaching

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/client"
	"github.com/windfall/phonoecho/internal/errors"
)

// Provider is a streaming chat-completion backend.
type Provider interface {
	ChatStream(ctx context.Context, req client.ChatRequest, onChunk func(string) error) error
	ModelID() string
}

// Config holds the coaching call settings.
type Config struct {
	Locale      Locale
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the settings the feedback view has always used.
func DefaultConfig() Config {
	return Config{
		Locale:      LocaleJA,
		Timeout:     60 * time.Second,
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// Coach turns assessment results into streamed natural-language feedback.
type Coach struct {
	provider Provider
	cfg      Config
	log      zerolog.Logger
}

// NewCoach creates a new Coach. provider may be nil, in which case every
// request fails with a coaching service error.
func NewCoach(provider Provider, cfg Config, log zerolog.Logger) *Coach {
	if cfg.Locale == "" {
		cfg.Locale = LocaleJA
	}
	return &Coach{provider: provider, cfg: cfg, log: log}
}

// Locale returns the configured feedback language.
func (c *Coach) Locale() Locale {
	return c.cfg.Locale
}

// Request builds the chat request for a result.
func (c *Coach) Request(r *assessment.Result) (client.ChatRequest, error) {
	prompt, err := BuildPrompt(c.cfg.Locale, r)
	if err != nil {
		return client.ChatRequest{}, err
	}
	system, err := SystemPrompt(c.cfg.Locale)
	if err != nil {
		return client.ChatRequest{}, err
	}
	return client.ChatRequest{
		System:      system,
		Messages:    []client.ChatMessage{{Role: client.RoleUser, Content: prompt}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}, nil
}

// Stream sends the coaching prompt for r and calls onChunk for every text
// fragment in order. Errors are COACHING_TIMEOUT or COACHING_SERVICE_ERROR
// AppErrors, except for prompt errors and errors returned by onChunk.
func (c *Coach) Stream(ctx context.Context, r *assessment.Result, onChunk func(string) error) error {
	if c.provider == nil {
		return errors.New(errors.ErrCoachingService, "coaching service is not configured")
	}

	req, err := c.Request(r)
	if err != nil {
		return err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	chunks := 0
	var callbackErr error
	err = c.provider.ChatStream(ctx, req, func(chunk string) error {
		chunks++
		if err := onChunk(chunk); err != nil {
			callbackErr = err
			return err
		}
		return nil
	})

	event := c.log.Debug()
	if err != nil {
		event = c.log.Warn().Err(err)
	}
	event.
		Str("model", c.provider.ModelID()).
		Str("locale", string(c.cfg.Locale)).
		Int("chunks", chunks).
		Dur("duration", time.Since(start)).
		Msg("Coaching stream finished")

	switch {
	case err == nil:
		return nil
	case callbackErr != nil && stderrors.Is(err, callbackErr):
		return err
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(errors.ErrCoachingTimeout, "coaching service timed out, please try again", err)
	case stderrors.Is(err, context.Canceled):
		return err
	default:
		return errors.Wrap(errors.ErrCoachingService, "coaching service failed, no feedback available", err)
	}
}

// Feedback returns the whole feedback text for r.
func (c *Coach) Feedback(ctx context.Context, r *assessment.Result) (string, error) {
	var sb strings.Builder
	err := c.Stream(ctx, r, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
