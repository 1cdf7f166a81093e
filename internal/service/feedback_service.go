package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/coaching"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/metrics"
	"github.com/windfall/phonoecho/internal/session"
)

// FeedbackResponse is the full coaching text of an attempt.
type FeedbackResponse struct {
	AttemptID string          `json:"attempt_id"`
	Locale    coaching.Locale `json:"locale"`
	Text      string          `json:"text"`
}

// FeedbackService produces coaching feedback for the latest attempt of the
// current lesson. Feedback is built lazily, only when it is requested.
type FeedbackService struct {
	coach   *coaching.Coach
	metrics *metrics.Manager
	log     zerolog.Logger
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(coach *coaching.Coach, m *metrics.Manager, log zerolog.Logger) *FeedbackService {
	return &FeedbackService{coach: coach, metrics: m, log: log}
}

// Stream delivers feedback chunks for the latest attempt to onChunk and
// returns the attempt id.
func (s *FeedbackService) Stream(ctx context.Context, sess *session.Session, onChunk func(string) error) (string, error) {
	attempt, ok := sess.LatestAttempt()
	if !ok {
		return "", errors.NotFound("scored attempt for the current lesson")
	}

	start := time.Now()
	err := s.coach.Stream(ctx, attempt.Result, onChunk)
	s.metrics.ObserveCoaching(coachingCode(err), time.Since(start))
	if err != nil {
		s.log.Warn().Err(err).
			Str("user", sess.User).
			Str("attempt_id", attempt.ID).
			Msg("Coaching feedback failed")
		return attempt.ID, err
	}
	return attempt.ID, nil
}

// Feedback returns the concatenated feedback for the latest attempt.
func (s *FeedbackService) Feedback(ctx context.Context, sess *session.Session) (*FeedbackResponse, error) {
	var b strings.Builder
	attemptID, err := s.Stream(ctx, sess, func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &FeedbackResponse{
		AttemptID: attemptID,
		Locale:    s.coach.Locale(),
		Text:      b.String(),
	}, nil
}

func coachingCode(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := errors.As(err); ok {
		return string(appErr.Code)
	}
	return "canceled"
}
