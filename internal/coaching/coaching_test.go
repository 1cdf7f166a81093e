package coaching

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/client"
	apperrors "github.com/windfall/phonoecho/internal/errors"
)

func thinkResult() *assessment.Result {
	return &assessment.Result{
		Display: "I think so.",
		Scores:  assessment.Scores{Pronunciation: 72.44, Accuracy: 70, Fluency: 80, Completeness: 100, Prosody: 65.5},
		Words: []assessment.WordResult{
			{Text: "i", Accuracy: 98, Error: assessment.ErrorNone},
			{Text: "think", Accuracy: 65, Error: assessment.ErrorMispronunciation, Phonemes: []assessment.PhonemeResult{
				{Symbol: "θ", Accuracy: 35},
				{Symbol: "ɪ", Accuracy: 90},
			}},
			{Text: "so", Error: assessment.ErrorOmission},
		},
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{100, TierExcellent},
		{95, TierExcellent},
		{90, TierExcellent},
		{89.9, TierVeryGood},
		{80, TierVeryGood},
		{79.9, TierGood},
		{70, TierGood},
		{60, TierNeedsPractice},
		{59.9, TierSignificantPractice},
		{0, TierSignificantPractice},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.score), "score %v", tt.score)
	}
}

func TestParseLocale(t *testing.T) {
	l, err := ParseLocale("")
	require.NoError(t, err)
	assert.Equal(t, LocaleJA, l)

	l, err = ParseLocale(" ZH ")
	require.NoError(t, err)
	assert.Equal(t, LocaleZH, l)

	_, err = ParseLocale("fr")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
}

func TestAnalyze_Mispronunciation(t *testing.T) {
	a, err := Analyze(thinkResult())
	require.NoError(t, err)

	require.Len(t, a.Mispronounced, 1)
	assert.Equal(t, WordIssue{Word: "think", Score: 65, Phonemes: []PhonemeIssue{{Symbol: "θ", Score: 35}}}, a.Mispronounced[0])
	assert.Equal(t, []string{"so"}, a.Omitted)
	assert.Equal(t, TierGood, a.Tier)
}

func TestAnalyze_LimitsAndLowAccuracy(t *testing.T) {
	r := &assessment.Result{Scores: assessment.Scores{Pronunciation: 40}}
	for _, w := range []string{"a", "b", "c", "d", "e", "f"} {
		r.Words = append(r.Words, assessment.WordResult{
			Text:     w,
			Accuracy: 50,
			Error:    assessment.ErrorNone,
			Phonemes: []assessment.PhonemeResult{
				{Symbol: "p1", Accuracy: 10}, {Symbol: "p2", Accuracy: 20},
				{Symbol: "p3", Accuracy: 30}, {Symbol: "p4", Accuracy: 40},
			},
		})
	}
	r.Words = append(r.Words, assessment.WordResult{Text: "skipped", Unassessed: true})

	a, err := Analyze(r)
	require.NoError(t, err)

	require.Len(t, a.Mispronounced, 5)
	assert.Equal(t, "a", a.Mispronounced[0].Word)
	assert.Equal(t, "e", a.Mispronounced[4].Word)
	assert.Len(t, a.Mispronounced[0].Phonemes, 3)
	assert.Empty(t, a.Omitted)
	assert.Equal(t, TierSignificantPractice, a.Tier)
}

func TestAnalyze_SkipsUnscoredPhonemes(t *testing.T) {
	r := thinkResult()
	r.Words[1].Phonemes = append(r.Words[1].Phonemes, assessment.PhonemeResult{Symbol: "ŋ", Unscored: true})

	a, err := Analyze(r)
	require.NoError(t, err)
	require.Len(t, a.Mispronounced, 1)
	assert.Equal(t, []PhonemeIssue{{Symbol: "θ", Score: 35}}, a.Mispronounced[0].Phonemes)

	prompt, err := BuildPrompt(LocaleZH, r)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "ŋ(0)")
}

func TestAnalyze_RejectsInvalidResult(t *testing.T) {
	r := thinkResult()
	r.Scores.Accuracy = 120

	_, err := Analyze(r)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrMalformedAssessment))
}

func TestBuildPrompt_Mispronunciation(t *testing.T) {
	prompt, err := BuildPrompt(LocaleZH, thinkResult())
	require.NoError(t, err)

	assert.Contains(t, prompt, `**Target Sentence:** "I think so."`)
	assert.Contains(t, prompt, "- Pronunciation Score: 72.4/100")
	assert.Contains(t, prompt, "- Prosody (Rhythm & Intonation): 65.5/100")
	assert.Contains(t, prompt, "- 'think' (score: 65.0)\n  Problem sounds: θ(35)")
	assert.Contains(t, prompt, "**Omitted words:** so")
	assert.Contains(t, prompt, "**Context:** The student performed well but has some areas to work on.")
	assert.Contains(t, prompt, "请用中文回复！")
	assert.NotContains(t, prompt, "'i'")
}

func TestBuildPrompt_NoErrorsStillAsksForFeedback(t *testing.T) {
	r := &assessment.Result{
		Display: "Book.",
		Scores:  assessment.Scores{Pronunciation: 95, Accuracy: 95, Fluency: 95, Completeness: 100, Prosody: 90},
		Words:   []assessment.WordResult{{Text: "book", Accuracy: 95, Error: assessment.ErrorNone}},
	}

	for _, locale := range []Locale{LocaleJA, LocaleZH, LocaleEN} {
		prompt, err := BuildPrompt(locale, r)
		require.NoError(t, err, locale)

		assert.NotContains(t, prompt, "Words that need improvement")
		assert.NotContains(t, prompt, "Omitted words")
		assert.Contains(t, prompt, "The student performed excellently!")
		assert.Contains(t, prompt, "**Your Task:**")
		assert.Contains(t, prompt, "ALWAYS provide feedback, even if their pronunciation is perfect")
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	a, err := BuildPrompt(LocaleJA, thinkResult())
	require.NoError(t, err)
	b, err := BuildPrompt(LocaleJA, thinkResult())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "日本語で回答してください")
}

func TestSystemPrompt(t *testing.T) {
	for _, locale := range []Locale{LocaleJA, LocaleZH, LocaleEN} {
		s, err := SystemPrompt(locale)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(s, "You are a warm, encouraging"), locale)
	}
	_, err := SystemPrompt(Locale("fr"))
	assert.Error(t, err)
}

func TestCoach_Feedback(t *testing.T) {
	mock := NewMockProvider(MockResponse{Chunks: []string{"よく", "できました"}})
	coach := NewCoach(mock, DefaultConfig(), zerolog.Nop())

	text, err := coach.Feedback(context.Background(), thinkResult())
	require.NoError(t, err)
	assert.Equal(t, "よくできました", text)

	require.Equal(t, 1, mock.CallCount())
	req := mock.Calls[0]
	assert.Equal(t, 1000, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, client.RoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "θ(35)")
	assert.Contains(t, req.System, "Japanese")
}

func TestCoach_ErrorMapping(t *testing.T) {
	t.Run("service failure", func(t *testing.T) {
		coach := NewCoach(NewMockProvider(MockResponse{Err: &client.ErrProviderUnavailable{}}), DefaultConfig(), zerolog.Nop())
		_, err := coach.Feedback(context.Background(), thinkResult())
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCoachingService, appErr.Code)
		assert.True(t, appErr.Retryable())
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timeout = 10 * time.Millisecond
		coach := NewCoach(blockingProvider{}, cfg, zerolog.Nop())
		_, err := coach.Feedback(context.Background(), thinkResult())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCoachingTimeout))
	})

	t.Run("not configured", func(t *testing.T) {
		coach := NewCoach(nil, DefaultConfig(), zerolog.Nop())
		_, err := coach.Feedback(context.Background(), thinkResult())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCoachingService))
	})

	t.Run("callback error passes through", func(t *testing.T) {
		stop := errors.New("client went away")
		coach := NewCoach(NewMockProvider(MockResponse{Chunks: []string{"a", "b"}}), DefaultConfig(), zerolog.Nop())
		err := coach.Stream(context.Background(), thinkResult(), func(string) error { return stop })
		assert.ErrorIs(t, err, stop)
		_, isApp := apperrors.As(err)
		assert.False(t, isApp)
	})
}

type blockingProvider struct{}

func (blockingProvider) ChatStream(ctx context.Context, _ client.ChatRequest, _ func(string) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingProvider) ModelID() string { return "blocking" }

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
}

func TestRetryProvider_RetriesBeforeFirstChunk(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &client.ErrProviderUnavailable{}},
		MockResponse{Err: &client.ErrRateLimit{}},
		MockResponse{Chunks: []string{"ok"}},
	)
	p := WithRetry(mock, fastRetry())

	var got []string
	err := p.ChatStream(context.Background(), client.ChatRequest{}, func(c string) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
	assert.Equal(t, 3, mock.CallCount())
	assert.Equal(t, "mock", p.ModelID())
}

func TestRetryProvider_NoRetryAfterChunk(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Chunks: []string{"partial"}, Err: &client.ErrProviderUnavailable{}},
		MockResponse{Chunks: []string{"never"}},
	)
	p := WithRetry(mock, fastRetry())

	var got []string
	err := p.ChatStream(context.Background(), client.ChatRequest{}, func(c string) error {
		got = append(got, c)
		return nil
	})
	var unavail *client.ErrProviderUnavailable
	assert.ErrorAs(t, err, &unavail)
	assert.Equal(t, []string{"partial"}, got)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetryProvider_NoRetryOnRejected(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &client.ErrRejected{StatusCode: 401}},
		MockResponse{Chunks: []string{"never"}},
	)
	p := WithRetry(mock, fastRetry())

	err := p.ChatStream(context.Background(), client.ChatRequest{}, func(string) error { return nil })
	var rejected *client.ErrRejected
	assert.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetryProvider_GivesUp(t *testing.T) {
	mock := NewMockProvider()
	p := WithRetry(mock, fastRetry())

	err := p.ChatStream(context.Background(), client.ChatRequest{}, func(string) error { return nil })
	var unavail *client.ErrProviderUnavailable
	assert.ErrorAs(t, err, &unavail)
	assert.Equal(t, 3, mock.CallCount())
}
