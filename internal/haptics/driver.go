package haptics

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Driver talks to the glove hardware.
type Driver interface {
	// Play starts a pattern and returns the device request id.
	Play(ctx context.Context, p Pattern) (int, error)
	// StopAll stops every running pattern.
	StopAll(ctx context.Context) error
}

// LogDriver is used when no device is attached. It only logs.
type LogDriver struct {
	log    zerolog.Logger
	nextID atomic.Int64
}

// NewLogDriver creates a new log-only driver.
func NewLogDriver(log zerolog.Logger) *LogDriver {
	return &LogDriver{log: log}
}

func (d *LogDriver) Play(_ context.Context, p Pattern) (int, error) {
	id := int(d.nextID.Add(1))
	d.log.Info().
		Int("request_id", id).
		Int("position", p.Position).
		Int("duration_ms", p.DurationMS).
		Ints("motors", p.MotorPattern).
		Msg("Haptic pattern played")
	return id, nil
}

func (d *LogDriver) StopAll(_ context.Context) error {
	d.log.Info().Msg("Haptic playback stopped")
	return nil
}
