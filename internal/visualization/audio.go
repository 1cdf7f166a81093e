package visualization

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"github.com/windfall/phonoecho/internal/errors"
)

// Samples is mono audio normalized to [-1, 1].
type Samples struct {
	Values     []float64
	SampleRate int
}

// Duration returns the length of the audio in seconds.
func (s *Samples) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(len(s.Values)) / float64(s.SampleRate)
}

// DecodeWAV reads a PCM WAV stream and mixes it down to mono.
func DecodeWAV(r io.ReadSeeker) (*Samples, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.Validation("recording is not a valid WAV file")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "failed to decode WAV recording", err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(d.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		return nil, errors.Validation(fmt.Sprintf("unsupported WAV bit depth %d", bitDepth))
	}
	scale := float64(int64(1) << (bitDepth - 1))
	// 8-bit PCM is unsigned.
	bias := 0
	if bitDepth == 8 {
		bias = 128
	}

	frames := len(buf.Data) / channels
	out := &Samples{
		Values:     make([]float64, frames),
		SampleRate: int(d.SampleRate),
	}
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c] - bias
		}
		out.Values[i] = float64(sum) / float64(channels) / scale
	}
	if out.SampleRate <= 0 {
		return nil, errors.Validation("WAV recording has no sample rate")
	}
	return out, nil
}
