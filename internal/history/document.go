package history

import (
	"fmt"

	"github.com/windfall/phonoecho/internal/assessment"
)

// ScoreSeries is the persisted score trajectory of one lesson: parallel
// arrays where index i belongs to attempt i+1.
type ScoreSeries struct {
	Accuracy      []float64 `json:"AccuracyScore"`
	Fluency       []float64 `json:"FluencyScore"`
	Completeness  []float64 `json:"CompletenessScore"`
	Prosody       []float64 `json:"ProsodyScore"`
	Pronunciation []float64 `json:"PronScore"`
}

// ErrorEntry is the persisted error tallies of one lesson.
type ErrorEntry struct {
	Current assessment.Tallies `json:"current"`
	Total   assessment.Tallies `json:"total"`
}

// ScoreDocument is the per-user score file, keyed by LessonKey.
type ScoreDocument map[string]ScoreSeries

// ErrorDocument is the per-user error file, keyed by LessonKey.
type ErrorDocument map[string]ErrorEntry

// SeriesFrom flattens attempts into parallel arrays.
func SeriesFrom(attempts []ScoreRecord) ScoreSeries {
	s := ScoreSeries{
		Accuracy:      make([]float64, 0, len(attempts)),
		Fluency:       make([]float64, 0, len(attempts)),
		Completeness:  make([]float64, 0, len(attempts)),
		Prosody:       make([]float64, 0, len(attempts)),
		Pronunciation: make([]float64, 0, len(attempts)),
	}
	for _, a := range attempts {
		s.Accuracy = append(s.Accuracy, a.Accuracy)
		s.Fluency = append(s.Fluency, a.Fluency)
		s.Completeness = append(s.Completeness, a.Completeness)
		s.Prosody = append(s.Prosody, a.Prosody)
		s.Pronunciation = append(s.Pronunciation, a.Pronunciation)
	}
	return s
}

// Records rebuilds attempts from parallel arrays. The arrays must have equal
// length.
func (s ScoreSeries) Records() ([]ScoreRecord, error) {
	n := len(s.Pronunciation)
	for name, arr := range map[string][]float64{
		"AccuracyScore":     s.Accuracy,
		"FluencyScore":      s.Fluency,
		"CompletenessScore": s.Completeness,
		"ProsodyScore":      s.Prosody,
	} {
		if len(arr) != n {
			return nil, fmt.Errorf("%s has %d entries, PronScore has %d", name, len(arr), n)
		}
	}

	out := make([]ScoreRecord, n)
	for i := range out {
		out[i] = ScoreRecord{
			Accuracy:      s.Accuracy[i],
			Fluency:       s.Fluency[i],
			Completeness:  s.Completeness[i],
			Prosody:       s.Prosody[i],
			Pronunciation: s.Pronunciation[i],
		}
	}
	return out, nil
}

// Apply writes h into both documents, replacing the lesson's entries as a
// whole.
func Apply(scores ScoreDocument, errs ErrorDocument, h *LessonHistory) {
	key := LessonKey(h.LessonIndex)
	scores[key] = SeriesFrom(h.Attempts)
	errs[key] = ErrorEntry{
		Current: h.CurrentErrors.Normalize(),
		Total:   h.TotalErrors.Normalize(),
	}
}

// Extract rebuilds the history of one lesson from both documents. A lesson
// absent from both documents yields an empty history.
func Extract(scores ScoreDocument, errs ErrorDocument, lesson int) (*LessonHistory, error) {
	h := New(lesson)
	key := LessonKey(lesson)

	if series, ok := scores[key]; ok {
		records, err := series.Records()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		h.Attempts = records
	}
	if entry, ok := errs[key]; ok {
		h.CurrentErrors = entry.Current.Normalize()
		h.TotalErrors = entry.Total.Normalize()
	}
	return h, nil
}
