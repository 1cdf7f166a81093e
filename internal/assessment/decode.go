package assessment

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/windfall/phonoecho/internal/errors"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "schema://assessment.json"

var responseSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return c.Compile(schemaURL)
})

// The wire structs accept both the nested SDK shape and the flat REST shape,
// where word and utterance scores sit directly on the object. Presence and
// ranges are already enforced by schema.json when these are filled.
type wireResult struct {
	RecognitionStatus string      `json:"RecognitionStatus"`
	NBest             []wireNBest `json:"NBest"`
}

type wireNBest struct {
	Display                 string       `json:"Display"`
	PronunciationAssessment *wireOverall `json:"PronunciationAssessment"`
	Words                   []wireWord   `json:"Words"`

	wireOverall
}

type wireOverall struct {
	PronScore         float64  `json:"PronScore"`
	AccuracyScore     float64  `json:"AccuracyScore"`
	FluencyScore      float64  `json:"FluencyScore"`
	CompletenessScore float64  `json:"CompletenessScore"`
	ProsodyScore      *float64 `json:"ProsodyScore"`
}

type wireWordAssessment struct {
	AccuracyScore *float64 `json:"AccuracyScore"`
	ErrorType     *string  `json:"ErrorType"`
}

type wireWord struct {
	Word                    string              `json:"Word"`
	Offset                  int64               `json:"Offset"`
	Duration                int64               `json:"Duration"`
	PronunciationAssessment *wireWordAssessment `json:"PronunciationAssessment"`
	Phonemes                []wirePhoneme       `json:"Phonemes"`

	wireWordAssessment
}

type wirePhoneme struct {
	Phoneme                 string `json:"Phoneme"`
	Offset                  int64  `json:"Offset"`
	Duration                int64  `json:"Duration"`
	PronunciationAssessment *struct {
		AccuracyScore *float64 `json:"AccuracyScore"`
	} `json:"PronunciationAssessment"`
	AccuracyScore *float64 `json:"AccuracyScore"`
}

// Decode parses an assessment service response into a Result. Any shape
// mismatch yields an ErrMalformedAssessment AppError.
func Decode(raw []byte) (*Result, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformedAssessment, "assessment response is not valid JSON", err)
	}

	if obj, ok := inst.(map[string]any); ok {
		if status, _ := obj["RecognitionStatus"].(string); status != "" && status != "Success" {
			return nil, errors.Malformed(fmt.Sprintf("no speech recognized (%s), try recording again", status)).
				WithDetails(map[string]interface{}{"recognition_status": status})
		}
	}

	schema, err := responseSchema()
	if err != nil {
		return nil, errors.InternalWrap("assessment schema failed to compile", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedAssessment, "assessment response does not match the expected shape", err)
	}

	var w wireResult
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedAssessment, "assessment response does not match the expected shape", err)
	}

	best := w.NBest[0]
	overall := best.PronunciationAssessment
	if overall == nil {
		overall = &best.wireOverall
	}

	res := &Result{
		Display: best.Display,
		Scores:  decodeScores(overall),
		Words:   make([]WordResult, 0, len(best.Words)),
	}
	for _, ww := range best.Words {
		res.Words = append(res.Words, decodeWord(ww))
	}
	return res, nil
}

func decodeScores(o *wireOverall) Scores {
	s := Scores{
		Pronunciation: o.PronScore,
		Accuracy:      o.AccuracyScore,
		Fluency:       o.FluencyScore,
		Completeness:  o.CompletenessScore,
	}
	// Prosody is only present when prosody assessment was enabled.
	if o.ProsodyScore != nil {
		s.Prosody = *o.ProsodyScore
	}
	return s
}

func decodeWord(ww wireWord) WordResult {
	word := WordResult{
		Text:     ww.Word,
		Offset:   Ticks(ww.Offset),
		Duration: Ticks(ww.Duration),
		Error:    ErrorNone,
	}

	pa := ww.PronunciationAssessment
	if pa == nil && (ww.AccuracyScore != nil || ww.ErrorType != nil) {
		pa = &ww.wireWordAssessment
	}
	if pa == nil {
		word.Unassessed = true
	} else {
		if pa.AccuracyScore != nil {
			word.Accuracy = *pa.AccuracyScore
		}
		if pa.ErrorType != nil && *pa.ErrorType != "" {
			word.Error = ErrorType(*pa.ErrorType)
		}
	}

	if len(ww.Phonemes) > 0 {
		word.Phonemes = make([]PhonemeResult, 0, len(ww.Phonemes))
		for _, wp := range ww.Phonemes {
			ph := PhonemeResult{
				Symbol:   wp.Phoneme,
				Offset:   Ticks(wp.Offset),
				Duration: Ticks(wp.Duration),
			}
			switch {
			case wp.PronunciationAssessment != nil && wp.PronunciationAssessment.AccuracyScore != nil:
				ph.Accuracy = *wp.PronunciationAssessment.AccuracyScore
			case wp.AccuracyScore != nil:
				ph.Accuracy = *wp.AccuracyScore
			default:
				ph.Unscored = true
			}
			word.Phonemes = append(word.Phonemes, ph)
		}
	}

	return word
}

// Validate checks the invariants every downstream builder relies on. Decode
// output already satisfies them; Validate guards results built in process.
func (r *Result) Validate() error {
	if r == nil {
		return errors.Malformed("assessment result is nil")
	}
	for _, s := range []struct {
		name  string
		value float64
	}{
		{"PronScore", r.Scores.Pronunciation},
		{"AccuracyScore", r.Scores.Accuracy},
		{"FluencyScore", r.Scores.Fluency},
		{"CompletenessScore", r.Scores.Completeness},
		{"ProsodyScore", r.Scores.Prosody},
	} {
		if !inRange(s.value) {
			return errors.Malformed(fmt.Sprintf("overall %s %.2f is outside [0,100]", s.name, s.value))
		}
	}
	for i, w := range r.Words {
		if w.Offset < 0 || w.Duration < 0 {
			return errors.Malformed(fmt.Sprintf("word %d (%q) has a negative offset or duration", i, w.Text))
		}
		if !inRange(w.Accuracy) {
			return errors.Malformed(fmt.Sprintf("word %d (%q) accuracy %.2f is outside [0,100]", i, w.Text, w.Accuracy))
		}
		for _, p := range w.Phonemes {
			if p.Offset < 0 || p.Duration < 0 || !inRange(p.Accuracy) {
				return errors.Malformed(fmt.Sprintf("phoneme %q of word %q is out of range", p.Symbol, w.Text))
			}
		}
	}
	return nil
}

func inRange(v float64) bool {
	return v >= 0 && v <= 100
}
