package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const speechResponse = `{
  "RecognitionStatus": "Success",
  "DisplayText": "I think so.",
  "NBest": [{"Display": "I think so.", "PronScore": 82.5, "AccuracyScore": 80, "FluencyScore": 90, "CompletenessScore": 100, "ProsodyScore": 75, "Words": []}]
}`

func TestAzureSpeechClient_Assess(t *testing.T) {
	var (
		gotQuery  map[string]string
		gotParams assessmentParams
		gotHeader http.Header
		gotBody   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speech/recognition/conversation/cognitiveservices/v1", r.URL.Path)
		gotQuery = map[string]string{
			"language": r.URL.Query().Get("language"),
			"format":   r.URL.Query().Get("format"),
		}
		gotHeader = r.Header.Clone()
		raw, err := base64.StdEncoding.DecodeString(r.Header.Get("Pronunciation-Assessment"))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotParams))
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, speechResponse)
	}))
	defer server.Close()

	c := NewAzureSpeechClient("key", "japaneast", "", zerolog.Nop()).WithBaseURL(server.URL)
	raw, err := c.Assess(context.Background(), []byte("RIFF"), "I think so.", 48000)
	require.NoError(t, err)

	assert.JSONEq(t, speechResponse, string(raw))
	assert.Equal(t, map[string]string{"language": "en-US", "format": "detailed"}, gotQuery)
	assert.Equal(t, "key", gotHeader.Get("Ocp-Apim-Subscription-Key"))
	assert.Equal(t, "audio/wav; codecs=audio/pcm; samplerate=48000", gotHeader.Get("Content-Type"))
	assert.Equal(t, []byte("RIFF"), gotBody)

	assert.Equal(t, assessmentParams{
		ReferenceText:           "I think so.",
		GradingSystem:           "HundredMark",
		Granularity:             "Phoneme",
		Dimension:               "Comprehensive",
		EnableMiscue:            true,
		EnableProsodyAssessment: true,
		PhonemeAlphabet:         "IPA",
	}, gotParams)
}

func TestAzureSpeechClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"rate limit", http.StatusTooManyRequests, func(t *testing.T, err error) {
			var rl *ErrRateLimit
			require.ErrorAs(t, err, &rl)
			assert.Equal(t, "2s", rl.RetryAfter.String())
		}},
		{"outage", http.StatusBadGateway, func(t *testing.T, err error) {
			var unavail *ErrProviderUnavailable
			assert.ErrorAs(t, err, &unavail)
		}},
		{"bad key", http.StatusUnauthorized, func(t *testing.T, err error) {
			var rejected *ErrRejected
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, http.StatusUnauthorized, rejected.StatusCode)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				io.WriteString(w, "nope")
			}))
			defer server.Close()

			c := NewAzureSpeechClient("key", "japaneast", "en-US", zerolog.Nop()).WithBaseURL(server.URL)
			_, err := c.Assess(context.Background(), []byte("RIFF"), "text", 16000)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestAzureSpeechClient_MissingCredentials(t *testing.T) {
	c := NewAzureSpeechClient("", "", "", zerolog.Nop())
	_, err := c.Assess(context.Background(), []byte("RIFF"), "text", 16000)

	var rejected *ErrRejected
	assert.ErrorAs(t, err, &rejected)
}
