package visualization

import (
	"math"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/errors"
)

const (
	WaveformTitle = "音声の波形と発音評価"

	// maxWaveformPoints bounds the number of points kept per line.
	maxWaveformPoints = 2000

	waveWidth  = 960.0
	waveHeight = 420.0
	wavePad    = 48.0
)

// WordSegment is the stretch of waveform covered by one word, coloured by
// the word's accuracy.
type WordSegment struct {
	Word     string  `json:"word"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Accuracy float64 `json:"accuracy"`
	Color    string  `json:"color"`
	Points   []Point `json:"points"`
}

// PhonemeLabel marks a phoneme at its start time.
type PhonemeLabel struct {
	Symbol   string  `json:"symbol"`
	Time     float64 `json:"time"`
	Accuracy float64 `json:"accuracy"`
	Color    string  `json:"color"`
}

// WaveformChart is the amplitude plot annotated with word and phoneme scores.
// Times are in seconds; Y values are amplitudes in [-1, 1].
type WaveformChart struct {
	Title      string         `json:"title"`
	Duration   float64        `json:"duration"`
	Trace      []Point        `json:"trace"`
	Segments   []WordSegment  `json:"segments"`
	Phonemes   []PhonemeLabel `json:"phonemes"`
	Separators []float64      `json:"separators"`
}

// Waveform builds the annotated waveform. Omitted words have no audio and
// are skipped, as are words the service did not assess. Each scored word gets a dashed separator at its start and end.
func Waveform(samples *Samples, words []assessment.WordResult) (*WaveformChart, error) {
	if samples == nil || samples.SampleRate <= 0 {
		return nil, errors.Validation("waveform needs decoded audio")
	}
	if err := (&assessment.Result{Words: words}).Validate(); err != nil {
		return nil, err
	}

	sr := float64(samples.SampleRate)
	c := &WaveformChart{
		Title:      WaveformTitle,
		Duration:   samples.Duration(),
		Trace:      downsample(samples.Values, 0, sr, maxWaveformPoints),
		Segments:   []WordSegment{},
		Phonemes:   []PhonemeLabel{},
		Separators: []float64{},
	}

	for _, w := range words {
		if w.Error == assessment.ErrorOmission || w.Unassessed {
			continue
		}

		start := w.Offset.Seconds()
		end := w.End().Seconds()
		lo := clampIndex(int(start*sr), len(samples.Values))
		hi := clampIndex(int(end*sr), len(samples.Values))

		c.Segments = append(c.Segments, WordSegment{
			Word:     w.Text,
			Start:    start,
			End:      end,
			Accuracy: w.Accuracy,
			Color:    Color(w.Accuracy),
			Points:   downsample(samples.Values[lo:hi], lo, sr, maxWaveformPoints/4),
		})
		c.Separators = append(c.Separators, start)

		for _, p := range w.Phonemes {
			if p.Unscored {
				continue
			}
			c.Phonemes = append(c.Phonemes, PhonemeLabel{
				Symbol:   p.Symbol,
				Time:     p.Offset.Seconds(),
				Accuracy: p.Accuracy,
				Color:    Color(p.Accuracy),
			})
		}
		c.Separators = append(c.Separators, end)
	}

	return c, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// downsample keeps at most limit points, choosing the sample with the
// largest magnitude in each bucket so peaks survive. offset is the index of
// values[0] in the full recording.
func downsample(values []float64, offset int, sr float64, limit int) []Point {
	if len(values) == 0 {
		return []Point{}
	}
	step := 1
	if len(values) > limit {
		step = int(math.Ceil(float64(len(values)) / float64(limit)))
	}

	out := make([]Point, 0, len(values)/step+1)
	for i := 0; i < len(values); i += step {
		end := i + step
		if end > len(values) {
			end = len(values)
		}
		peak := i
		for j := i + 1; j < end; j++ {
			if math.Abs(values[j]) > math.Abs(values[peak]) {
				peak = j
			}
		}
		out = append(out, Point{X: float64(offset+peak) / sr, Y: values[peak]})
	}
	return out
}

type waveView struct {
	Width, Height float64
	Title         string
	Trace         []Point
	Segments      []waveSegmentView
	Labels        []waveLabelView
	Separators    []float64
	Phonemes      []waveLabelView
	Top, Bottom   float64
	Left, Right   float64
}

type waveSegmentView struct {
	Points []Point
	Color  string
}

type waveLabelView struct {
	X, Y  float64
	Text  string
	Color string
}

// SVG renders the chart.
func (c *WaveformChart) SVG() (string, error) {
	left, right := wavePad, waveWidth-wavePad/2
	top, bottom := wavePad, waveHeight-wavePad
	duration := c.Duration
	if duration <= 0 {
		duration = 1
	}
	x := func(t float64) float64 { return left + (right-left)*t/duration }
	y := func(a float64) float64 { return top + (bottom-top)*(1-a)/2 }
	project := func(pts []Point) []Point {
		out := make([]Point, len(pts))
		for i, p := range pts {
			out[i] = Point{X: x(p.X), Y: y(p.Y)}
		}
		return out
	}

	v := waveView{
		Width: waveWidth, Height: waveHeight, Title: c.Title,
		Top: top, Bottom: bottom, Left: left, Right: right,
		Trace: project(c.Trace),
	}
	for _, s := range c.Segments {
		v.Segments = append(v.Segments, waveSegmentView{Points: project(s.Points), Color: s.Color})
		v.Labels = append(v.Labels, waveLabelView{X: x((s.Start + s.End) / 2), Y: bottom - 4, Text: s.Word})
	}
	for _, t := range c.Separators {
		v.Separators = append(v.Separators, x(t))
	}
	for _, p := range c.Phonemes {
		v.Phonemes = append(v.Phonemes, waveLabelView{X: x(p.Time), Y: top + 12, Text: p.Symbol, Color: p.Color})
	}
	return render("waveform.svg.tmpl", v)
}
