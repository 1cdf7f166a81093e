package haptics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Task is a cancellable handle on one background playback.
type Task struct {
	ID      string
	Pattern Pattern

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Cancel abandons the playback. It does not wait for the task to exit.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
}

// Done is closed when the task has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Scheduler starts playback tasks on a driver.
type Scheduler struct {
	driver Driver
	log    zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(driver Driver, log zerolog.Logger) *Scheduler {
	return &Scheduler{driver: driver, log: log}
}

// Play starts p after delay in the background and returns immediately.
// The task stops the device if it is cancelled while the pattern runs.
func (s *Scheduler) Play(p Pattern, delay time.Duration) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:      uuid.NewString(),
		Pattern: p,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go s.run(ctx, t, delay)
	return t
}

func (s *Scheduler) run(ctx context.Context, t *Task, delay time.Duration) {
	defer close(t.done)
	defer t.Cancel()

	log := s.log.With().Str("task_id", t.ID).Logger()
	start := time.Now()

	if delay > 0 {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Haptic task cancelled before start")
			return
		case <-time.After(delay):
		}
	}

	requestID, err := s.driver.Play(ctx, t.Pattern)
	if err != nil {
		log.Error().Err(err).Msg("Error playing haptics")
		return
	}
	log.Info().
		Int("request_id", requestID).
		Float64("actual_delay_ms", float64(time.Since(start).Microseconds())/1000).
		Float64("target_delay_ms", float64(delay.Microseconds())/1000).
		Msg("Haptics played")

	select {
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.driver.StopAll(stopCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping haptics")
		}
	case <-time.After(time.Duration(t.Pattern.DurationMS) * time.Millisecond):
	}
}
