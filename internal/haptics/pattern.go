// Package haptics plays vibration patterns on a haptic glove alongside
// lesson video playback. Playback is best effort: tasks report through the
// logger only and never touch session or persistence state.
package haptics

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/windfall/phonoecho/internal/errors"
)

// Device positions understood by the glove driver.
const (
	PositionLeftGlove  = 8
	PositionRightGlove = 9
)

const (
	defaultDurationMS = 5000
	motorCount        = 6
	maxIntensity      = 100
)

// Pattern is one vibration pattern.
type Pattern struct {
	Position     int   `json:"position"`
	DurationMS   int   `json:"duration_ms"`
	MotorPattern []int `json:"motor_pattern"`
}

// DefaultPattern drives all six motors of the left glove at full intensity
// for five seconds.
func DefaultPattern() Pattern {
	motors := make([]int, motorCount)
	for i := range motors {
		motors[i] = maxIntensity
	}
	return Pattern{
		Position:     PositionLeftGlove,
		DurationMS:   defaultDurationMS,
		MotorPattern: motors,
	}
}

// Validate checks the pattern against the device limits.
func (p Pattern) Validate() error {
	if p.Position != PositionLeftGlove && p.Position != PositionRightGlove {
		return errors.Validation(fmt.Sprintf("unknown haptic position %d", p.Position))
	}
	if p.DurationMS <= 0 {
		return errors.Validation("haptic duration must be positive")
	}
	if len(p.MotorPattern) == 0 || len(p.MotorPattern) > motorCount {
		return errors.Validation(fmt.Sprintf("motor pattern must have 1 to %d entries", motorCount))
	}
	for _, m := range p.MotorPattern {
		if m < 0 || m > maxIntensity {
			return errors.Validation(fmt.Sprintf("motor intensity %d is outside [0,%d]", m, maxIntensity))
		}
	}
	return nil
}

// WithDefaults fills zero fields from DefaultPattern.
func (p Pattern) WithDefaults() Pattern {
	return p.Or(DefaultPattern())
}

// Or fills zero fields from base.
func (p Pattern) Or(base Pattern) Pattern {
	if p.Position == 0 {
		p.Position = base.Position
	}
	if p.DurationMS == 0 {
		p.DurationMS = base.DurationMS
	}
	if len(p.MotorPattern) == 0 {
		p.MotorPattern = base.MotorPattern
	}
	return p
}

// LoadTactFile derives a pattern from a .tact project file. The duration is
// the latest effect end across all tracks; a missing or unreadable file
// yields the default pattern.
func LoadTactFile(path string) Pattern {
	data, err := os.ReadFile(path)
	if err != nil || !gjson.ValidBytes(data) {
		return DefaultPattern()
	}
	return ParseTact(data)
}

// ParseTact derives a pattern from .tact project JSON.
func ParseTact(data []byte) Pattern {
	p := DefaultPattern()

	maxEnd := int64(0)
	gjson.GetBytes(data, "project.tracks").ForEach(func(_, track gjson.Result) bool {
		track.Get("effects").ForEach(func(_, effect gjson.Result) bool {
			end := effect.Get("startTime").Int() + effect.Get("offsetTime").Int()
			if end > maxEnd {
				maxEnd = end
			}
			return true
		})
		return true
	})
	if maxEnd > 0 {
		p.DurationMS = int(maxEnd)
	}
	return p
}
