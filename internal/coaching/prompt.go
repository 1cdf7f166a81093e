package coaching

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/errors"
)

const (
	maxMispronounced   = 5
	maxProblemPhonemes = 3

	// Words and phonemes scoring below this are considered problematic.
	problemThreshold = 60.0
)

// Locale selects the feedback language.
type Locale string

const (
	LocaleJA Locale = "ja"
	LocaleZH Locale = "zh"
	LocaleEN Locale = "en"
)

// ParseLocale validates a locale name. An empty name selects Japanese.
func ParseLocale(s string) (Locale, error) {
	switch l := Locale(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LocaleJA, nil
	case LocaleJA, LocaleZH, LocaleEN:
		return l, nil
	default:
		return "", errors.Validation(fmt.Sprintf("unsupported coaching locale %q", s))
	}
}

// Tier is the qualitative framing chosen from the pronunciation score.
type Tier string

const (
	TierExcellent           Tier = "excellent"
	TierVeryGood            Tier = "very_good"
	TierGood                Tier = "good"
	TierNeedsPractice       Tier = "needs_practice"
	TierSignificantPractice Tier = "significant_practice"
)

var tierContext = map[Tier]string{
	TierExcellent:           "The student performed excellently!",
	TierVeryGood:            "The student performed very well with minor areas for improvement.",
	TierGood:                "The student performed well but has some areas to work on.",
	TierNeedsPractice:       "The student needs practice in several areas.",
	TierSignificantPractice: "The student needs significant practice and support.",
}

// TierFor maps a pronunciation score to its tier.
func TierFor(pronScore float64) Tier {
	switch {
	case pronScore >= 90:
		return TierExcellent
	case pronScore >= 80:
		return TierVeryGood
	case pronScore >= 70:
		return TierGood
	case pronScore >= 60:
		return TierNeedsPractice
	default:
		return TierSignificantPractice
	}
}

// Context returns the framing sentence for the tier.
func (t Tier) Context() string {
	return tierContext[t]
}

// PhonemeIssue is a phoneme that scored below the problem threshold.
type PhonemeIssue struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

// WordIssue is a mispronounced word with its worst phonemes.
type WordIssue struct {
	Word     string         `json:"word"`
	Score    float64        `json:"score"`
	Phonemes []PhonemeIssue `json:"phonemes,omitempty"`
}

// Analysis is everything the prompt says about one attempt.
type Analysis struct {
	Display       string            `json:"display"`
	Scores        assessment.Scores `json:"scores"`
	Mispronounced []WordIssue       `json:"mispronounced"`
	Omitted       []string          `json:"omitted"`
	Tier          Tier              `json:"tier"`
}

// Context returns the framing sentence for the analysis tier.
func (a *Analysis) Context() string {
	return a.Tier.Context()
}

// Analyze extracts the mispronounced and omitted words of a result.
// Mispronounced words keep sentence order and are capped at five.
func Analyze(r *assessment.Result) (*Analysis, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	a := &Analysis{
		Display:       r.Display,
		Scores:        r.Scores,
		Mispronounced: []WordIssue{},
		Omitted:       []string{},
		Tier:          TierFor(r.Scores.Pronunciation),
	}

	for _, w := range r.Words {
		if w.Unassessed {
			continue
		}
		if w.Error == assessment.ErrorOmission {
			a.Omitted = append(a.Omitted, w.Text)
			continue
		}
		if w.Error != assessment.ErrorMispronunciation && w.Accuracy >= problemThreshold {
			continue
		}
		if len(a.Mispronounced) == maxMispronounced {
			continue
		}

		issue := WordIssue{Word: w.Text, Score: w.Accuracy}
		for _, p := range w.Phonemes {
			if !p.Unscored && p.Accuracy < problemThreshold && len(issue.Phonemes) < maxProblemPhonemes {
				issue.Phonemes = append(issue.Phonemes, PhonemeIssue{Symbol: p.Symbol, Score: p.Accuracy})
			}
		}
		a.Mispronounced = append(a.Mispronounced, issue)
	}

	return a, nil
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("coaching").Funcs(template.FuncMap{
	"fmt1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"join": strings.Join,
	"phonemes": func(ps []PhonemeIssue) string {
		parts := make([]string, len(ps))
		for i, p := range ps {
			parts[i] = fmt.Sprintf("%s(%.0f)", p.Symbol, p.Score)
		}
		return strings.Join(parts, ", ")
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// Render renders the user prompt for an analysis: the shared statistics
// block followed by the locale's task section.
func Render(locale Locale, a *Analysis) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "prompt", a); err != nil {
		return "", errors.InternalWrap("failed to render coaching prompt", err)
	}
	if err := templates.ExecuteTemplate(&buf, "task_"+string(locale), nil); err != nil {
		return "", errors.InternalWrap("failed to render coaching task", err)
	}
	return buf.String(), nil
}

// BuildPrompt analyzes a result and renders the user prompt. The task
// section is always present, so an attempt without errors still asks for
// advanced-technique feedback.
func BuildPrompt(locale Locale, r *assessment.Result) (string, error) {
	a, err := Analyze(r)
	if err != nil {
		return "", err
	}
	return Render(locale, a)
}

// SystemPrompt returns the system message for a locale.
func SystemPrompt(locale Locale) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "system_"+string(locale), nil); err != nil {
		return "", errors.InternalWrap("failed to render coaching system prompt", err)
	}
	return buf.String(), nil
}
