// Package history holds per-lesson score trajectories and cumulative error
// tallies, and converts them to and from their persisted document shapes.
package history

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/windfall/phonoecho/internal/assessment"
)

// ScoreRecord is the five overall scores of one attempt.
type ScoreRecord struct {
	Accuracy      float64 `json:"accuracy"`
	Fluency       float64 `json:"fluency"`
	Completeness  float64 `json:"completeness"`
	Prosody       float64 `json:"prosody"`
	Pronunciation float64 `json:"pronunciation"`
}

// RecordFromScores converts assessment scores into a history record.
func RecordFromScores(s assessment.Scores) ScoreRecord {
	return ScoreRecord{
		Accuracy:      s.Accuracy,
		Fluency:       s.Fluency,
		Completeness:  s.Completeness,
		Prosody:       s.Prosody,
		Pronunciation: s.Pronunciation,
	}
}

// LessonHistory is one user's history for one lesson. Attempts are in
// submission order; attempt n is Attempts[n-1].
type LessonHistory struct {
	LessonIndex   int                `json:"lesson_index"`
	Attempts      []ScoreRecord      `json:"attempts"`
	CurrentErrors assessment.Tallies `json:"current_errors"`
	TotalErrors   assessment.Tallies `json:"total_errors"`
}

// New returns an empty history for a lesson.
func New(lesson int) *LessonHistory {
	return &LessonHistory{
		LessonIndex:   lesson,
		Attempts:      []ScoreRecord{},
		CurrentErrors: assessment.NewTallies(),
		TotalErrors:   assessment.NewTallies(),
	}
}

// RecordAttempt appends an attempt's scores and folds its tallies into the
// cumulative total. The current tally is replaced by the attempt's own.
func (h *LessonHistory) RecordAttempt(scores assessment.Scores, tallies assessment.Tallies) {
	h.Attempts = append(h.Attempts, RecordFromScores(scores))
	h.CurrentErrors = tallies.Normalize()
	if h.TotalErrors == nil {
		h.TotalErrors = assessment.NewTallies()
	}
	h.TotalErrors = h.TotalErrors.Merge(tallies)
}

// Clone returns a deep copy.
func (h *LessonHistory) Clone() *LessonHistory {
	out := &LessonHistory{
		LessonIndex:   h.LessonIndex,
		Attempts:      append([]ScoreRecord{}, h.Attempts...),
		CurrentErrors: assessment.NewTallies().Merge(h.CurrentErrors),
		TotalErrors:   assessment.NewTallies().Merge(h.TotalErrors),
	}
	return out
}

// LessonKey is the stable key used for a lesson inside persisted documents.
func LessonKey(lesson int) string {
	return "lesson_" + strconv.Itoa(lesson)
}

// ParseLessonKey is the inverse of LessonKey.
func ParseLessonKey(key string) (int, error) {
	s, ok := strings.CutPrefix(key, "lesson_")
	if !ok {
		return 0, fmt.Errorf("invalid lesson key %q", key)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid lesson key %q", key)
	}
	return n, nil
}
