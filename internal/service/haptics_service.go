package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/haptics"
	"github.com/windfall/phonoecho/internal/metrics"
	"github.com/windfall/phonoecho/internal/repository"
	"github.com/windfall/phonoecho/internal/session"
)

// PatternSource resolves the haptic pattern of a lesson.
type PatternSource interface {
	HapticPattern(user string, lesson repository.Lesson) haptics.Pattern
}

// HapticsRequest starts playback. Zero fields fall back to the lesson's
// pattern.
type HapticsRequest struct {
	Position     int   `json:"position,omitempty"`
	DurationMS   int   `json:"duration_ms,omitempty"`
	MotorPattern []int `json:"motor_pattern,omitempty"`
	DelayMS      int   `json:"delay_ms,omitempty"`
}

// HapticsResponse describes a started playback.
type HapticsResponse struct {
	TaskID  string          `json:"task_id"`
	Pattern haptics.Pattern `json:"pattern"`
	DelayMS int             `json:"delay_ms"`
}

// HapticsService starts and cancels glove playback alongside lesson video.
type HapticsService struct {
	lessons   repository.LessonRepository
	patterns  PatternSource
	scheduler *haptics.Scheduler
	metrics   *metrics.Manager
	log       zerolog.Logger
}

// NewHapticsService creates a new HapticsService. A nil scheduler disables
// playback.
func NewHapticsService(
	lessons repository.LessonRepository,
	patterns PatternSource,
	scheduler *haptics.Scheduler,
	m *metrics.Manager,
	log zerolog.Logger,
) *HapticsService {
	return &HapticsService{
		lessons:   lessons,
		patterns:  patterns,
		scheduler: scheduler,
		metrics:   m,
		log:       log,
	}
}

// Start plays the lesson's pattern in the background, replacing any running
// playback of the session. It returns without waiting for the device.
func (s *HapticsService) Start(ctx context.Context, sess *session.Session, idx int, req HapticsRequest) (*HapticsResponse, error) {
	if s.scheduler == nil {
		return nil, errors.New(errors.ErrConflict, "haptic playback is disabled")
	}
	if req.DelayMS < 0 {
		return nil, errors.Validation("delay_ms must not be negative")
	}

	lesson, err := s.lessons.Get(ctx, sess.User, idx)
	if err != nil {
		return nil, err
	}

	base := haptics.DefaultPattern()
	if s.patterns != nil {
		base = s.patterns.HapticPattern(sess.User, lesson)
	}
	p := haptics.Pattern{
		Position:     req.Position,
		DurationMS:   req.DurationMS,
		MotorPattern: req.MotorPattern,
	}.Or(base).WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sess.SelectLesson(idx)
	task := s.scheduler.Play(p, time.Duration(req.DelayMS)*time.Millisecond)
	sess.SetHaptic(task)
	s.metrics.IncHapticTasks()

	s.log.Debug().
		Str("user", sess.User).
		Int("lesson", idx).
		Str("task_id", task.ID).
		Int("delay_ms", req.DelayMS).
		Msg("Haptic playback scheduled")

	return &HapticsResponse{TaskID: task.ID, Pattern: p, DelayMS: req.DelayMS}, nil
}

// Stop cancels the session's running playback.
func (s *HapticsService) Stop(sess *session.Session) error {
	if !sess.CancelHaptic() {
		return errors.NotFound("haptic playback")
	}
	return nil
}
