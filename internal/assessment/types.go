// Package assessment models pronunciation assessment results and the error
// taxonomy derived from them.
package assessment

// TicksPerSecond is the number of 100-nanosecond ticks in one second.
const TicksPerSecond = 10_000_000

// Ticks is a time offset or duration in 100-nanosecond units.
type Ticks int64

// Seconds converts the tick count to seconds.
func (t Ticks) Seconds() float64 {
	return float64(t) / TicksPerSecond
}

// ErrorType is the per-word error classification reported by the assessment service.
type ErrorType string

const (
	ErrorNone             ErrorType = "None"
	ErrorOmission         ErrorType = "Omission"
	ErrorInsertion        ErrorType = "Insertion"
	ErrorMispronunciation ErrorType = "Mispronunciation"
	ErrorUnexpectedBreak  ErrorType = "UnexpectedBreak"
	ErrorMissingBreak     ErrorType = "MissingBreak"
	ErrorMonotone         ErrorType = "Monotone"
)

// Scores holds the five utterance-level scores, each in [0,100].
type Scores struct {
	Pronunciation float64 `json:"PronScore"`
	Accuracy      float64 `json:"AccuracyScore"`
	Fluency       float64 `json:"FluencyScore"`
	Completeness  float64 `json:"CompletenessScore"`
	Prosody       float64 `json:"ProsodyScore"`
}

// PhonemeResult is one phoneme within a word. Unscored is set when the
// service sent no accuracy for the phoneme.
type PhonemeResult struct {
	Symbol   string  `json:"phoneme"`
	Offset   Ticks   `json:"offset"`
	Duration Ticks   `json:"duration"`
	Accuracy float64 `json:"accuracy"`
	Unscored bool    `json:"unscored,omitempty"`
}

// WordResult is one recognized (or omitted, or inserted) word.
// Unassessed is set when the service sent no assessment for the word; its
// Accuracy is then meaningless and Error is None.
type WordResult struct {
	Text       string          `json:"word"`
	Offset     Ticks           `json:"offset"`
	Duration   Ticks           `json:"duration"`
	Accuracy   float64         `json:"accuracy"`
	Error      ErrorType       `json:"error_type"`
	Unassessed bool            `json:"unassessed,omitempty"`
	Phonemes   []PhonemeResult `json:"phonemes,omitempty"`
}

// End returns the tick at which the word ends.
func (w WordResult) End() Ticks {
	return w.Offset + w.Duration
}

// Result is one scored attempt at reading a lesson text. It is immutable
// after decoding.
type Result struct {
	Display string       `json:"display"`
	Scores  Scores       `json:"scores"`
	Words   []WordResult `json:"words"`
}
