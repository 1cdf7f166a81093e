package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	defaultAssessmentLanguage = "en-US"
	maxErrorBodyBytes         = 4 << 10
)

// AzureSpeechClient wraps the Azure AI Speech short-audio REST API with
// pronunciation assessment enabled.
type AzureSpeechClient struct {
	apiKey   string
	region   string
	language string
	baseURL  string
	client   *http.Client
	log      zerolog.Logger
}

// NewAzureSpeechClient creates a new Azure Speech client.
func NewAzureSpeechClient(apiKey, region, language string, log zerolog.Logger) *AzureSpeechClient {
	if language == "" {
		language = defaultAssessmentLanguage
	}
	return &AzureSpeechClient{
		apiKey:   apiKey,
		region:   region,
		language: language,
		baseURL:  fmt.Sprintf("https://%s.stt.speech.microsoft.com", region),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log,
	}
}

// WithBaseURL points the client at another endpoint, e.g. a test server.
func (c *AzureSpeechClient) WithBaseURL(baseURL string) *AzureSpeechClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// assessmentParams is sent base64-encoded in the Pronunciation-Assessment header.
type assessmentParams struct {
	ReferenceText           string `json:"ReferenceText"`
	GradingSystem           string `json:"GradingSystem"`
	Granularity             string `json:"Granularity"`
	Dimension               string `json:"Dimension"`
	EnableMiscue            bool   `json:"EnableMiscue"`
	EnableProsodyAssessment bool   `json:"EnableProsodyAssessment"`
	PhonemeAlphabet         string `json:"PhonemeAlphabet"`
}

// Assess sends a WAV recording for pronunciation assessment against
// referenceText and returns the raw detailed JSON response.
func (c *AzureSpeechClient) Assess(ctx context.Context, audio []byte, referenceText string, sampleRate int) ([]byte, error) {
	if c.apiKey == "" || c.region == "" {
		return nil, &ErrRejected{StatusCode: http.StatusUnauthorized, Err: fmt.Errorf("azure speech credentials not configured")}
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	// Docs: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/rest-speech-to-text-short
	u, err := url.Parse(c.baseURL + "/speech/recognition/conversation/cognitiveservices/v1")
	if err != nil {
		return nil, fmt.Errorf("failed to build assessment url: %w", err)
	}
	q := u.Query()
	q.Set("language", c.language)
	q.Set("format", "detailed")
	u.RawQuery = q.Encode()

	params, err := json.Marshal(assessmentParams{
		ReferenceText:           referenceText,
		GradingSystem:           "HundredMark",
		Granularity:             "Phoneme",
		Dimension:               "Comprehensive",
		EnableMiscue:            true,
		EnableProsodyAssessment: true,
		PhonemeAlphabet:         "IPA",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assessment params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(params))
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", sampleRate))
	req.Header.Set("Accept", "application/json;text/xml")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ErrProviderUnavailable{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, mapSpeechStatus(resp, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ErrProviderUnavailable{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	status := gjson.GetBytes(body, "RecognitionStatus")
	c.log.Debug().
		Str("recognition_status", status.String()).
		Str("display_text", gjson.GetBytes(body, "DisplayText").String()).
		Float64("pron_score", gjson.GetBytes(body, "NBest.0.PronScore").Float()).
		Int("bytes", len(audio)).
		Dur("duration", time.Since(start)).
		Msg("Azure pronunciation assessment completed")

	return body, nil
}

func mapSpeechStatus(resp *http.Response, body []byte) error {
	err := fmt.Errorf("azure speech api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if secs, perr := time.ParseDuration(resp.Header.Get("Retry-After") + "s"); perr == nil {
			retryAfter = secs
		}
		return &ErrRateLimit{RetryAfter: retryAfter, Err: err}
	case resp.StatusCode >= 500:
		return &ErrProviderUnavailable{Err: err}
	default:
		return &ErrRejected{StatusCode: resp.StatusCode, Err: err}
	}
}
