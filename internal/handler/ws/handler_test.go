package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/coaching"
	"github.com/windfall/phonoecho/internal/history"
	"github.com/windfall/phonoecho/internal/service"
	"github.com/windfall/phonoecho/internal/session"
)

func scoredSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New("alice")
	sess.Load(0, history.New(0))
	require.NoError(t, sess.BeginAttempt(0))
	require.NoError(t, sess.CompleteAttempt(&session.Attempt{
		ID:     "attempt-1",
		Lesson: 0,
		Result: &assessment.Result{
			Display: "I think so.",
			Scores:  assessment.Scores{Pronunciation: 72, Accuracy: 70, Fluency: 80, Completeness: 100},
			Words: []assessment.WordResult{
				{Text: "think", Accuracy: 65, Error: assessment.ErrorMispronunciation, Phonemes: []assessment.PhonemeResult{
					{Symbol: "θ", Accuracy: 35},
				}},
			},
		},
	}))
	return sess
}

func newHandler(responses ...coaching.MockResponse) *Handler {
	coach := coaching.NewCoach(coaching.NewMockProvider(responses...), coaching.DefaultConfig(), zerolog.Nop())
	return NewHandler(service.NewFeedbackService(coach, nil, zerolog.Nop()), zerolog.Nop())
}

type recorder struct {
	messages []Response
	raw      []json.RawMessage
}

func (r *recorder) send(data []byte) error {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	r.messages = append(r.messages, Response{Type: msg.Type})
	r.raw = append(r.raw, msg.Payload)
	return nil
}

func (r *recorder) types() []string {
	out := make([]string, len(r.messages))
	for i, m := range r.messages {
		out[i] = m.Type
	}
	return out
}

func TestHandle_Ping(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, newHandler().Handle(context.Background(), session.New("alice"), "c1", TypePing, nil, rec.send))
	assert.Equal(t, []string{TypePong}, rec.types())
}

func TestHandle_UnknownType(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, newHandler().Handle(context.Background(), session.New("alice"), "c1", "bogus", nil, rec.send))
	require.Equal(t, []string{TypeError}, rec.types())

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(rec.raw[0], &p))
	assert.Equal(t, "VALIDATION_ERROR", p.Code)
}

func TestHandle_FeedbackStream(t *testing.T) {
	rec := &recorder{}
	h := newHandler(coaching.MockResponse{Chunks: []string{"Try ", "again."}})

	require.NoError(t, h.Handle(context.Background(), scoredSession(t), "c1", TypeFeedback, nil, rec.send))
	assert.Equal(t, []string{TypeChunk, TypeChunk, TypeDone}, rec.types())

	var chunk ChunkPayload
	require.NoError(t, json.Unmarshal(rec.raw[1], &chunk))
	assert.Equal(t, "again.", chunk.Text)

	var done DonePayload
	require.NoError(t, json.Unmarshal(rec.raw[2], &done))
	assert.Equal(t, "attempt-1", done.AttemptID)
}

func TestHandle_FeedbackWithoutAttempt(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, newHandler().Handle(context.Background(), session.New("alice"), "c1", TypeFeedback, nil, rec.send))
	require.Equal(t, []string{TypeError}, rec.types())

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(rec.raw[0], &p))
	assert.Equal(t, "NOT_FOUND", p.Code)
	assert.False(t, p.Retryable)
}

func TestHandle_FeedbackProviderFailure(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, newHandler().Handle(context.Background(), scoredSession(t), "c1", TypeFeedback, nil, rec.send))
	require.Equal(t, []string{TypeError}, rec.types())

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(rec.raw[0], &p))
	assert.Equal(t, "COACHING_SERVICE_ERROR", p.Code)
	assert.True(t, p.Retryable)
}

func TestHandle_SendFailureAbortsStream(t *testing.T) {
	gone := errors.New("gone")
	h := newHandler(coaching.MockResponse{Chunks: []string{"a", "b", "c"}})

	calls := 0
	err := h.Handle(context.Background(), scoredSession(t), "c1", TypeFeedback, nil, func([]byte) error {
		calls++
		return gone
	})
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 1, calls)
}
