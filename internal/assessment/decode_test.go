package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/phonoecho/internal/errors"
)

func TestDecodeNestedShape(t *testing.T) {
	r, err := Decode([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "I think so.", r.Display)
	assert.Equal(t, 72.4, r.Scores.Pronunciation)
	assert.Equal(t, 65.5, r.Scores.Prosody)
	require.Len(t, r.Words, 4)

	think := r.Words[1]
	assert.Equal(t, "think", think.Text)
	assert.Equal(t, ErrorMispronunciation, think.Error)
	assert.Equal(t, Ticks(7000000), think.Offset)
	assert.Equal(t, Ticks(11000000), think.End())
	require.Len(t, think.Phonemes, 4)
	assert.Equal(t, "θ", think.Phonemes[0].Symbol)
	assert.Equal(t, 35.0, think.Phonemes[0].Accuracy)

	assert.Equal(t, ErrorOmission, r.Words[2].Error)
	assert.Empty(t, r.Words[2].Phonemes)

	// A word without an assessment sub-object is treated as None.
	assert.Equal(t, ErrorNone, r.Words[3].Error)
	assert.True(t, r.Words[3].Unassessed)
	assert.False(t, think.Unassessed)
}

func TestDecodeFlatShape(t *testing.T) {
	raw := `{
	  "RecognitionStatus": "Success",
	  "NBest": [{
	    "Display": "Book.",
	    "PronScore": 95, "AccuracyScore": 96, "FluencyScore": 94, "CompletenessScore": 100,
	    "Words": [{"Word": "book", "Offset": 100, "Duration": 200, "AccuracyScore": 95, "ErrorType": "None",
	               "Phonemes": [{"Phoneme": "b", "Offset": 100, "Duration": 50, "AccuracyScore": 97}]}]
	  }]
	}`
	r, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 95.0, r.Scores.Pronunciation)
	assert.Equal(t, 0.0, r.Scores.Prosody)
	require.Len(t, r.Words, 1)
	assert.Equal(t, 95.0, r.Words[0].Accuracy)
	assert.Equal(t, ErrorNone, r.Words[0].Error)
	assert.Equal(t, 97.0, r.Words[0].Phonemes[0].Accuracy)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"NBest":`},
		{"missing NBest", `{"RecognitionStatus":"Success"}`},
		{"empty NBest", `{"NBest":[]}`},
		{"missing words", `{"NBest":[{"PronunciationAssessment":{"PronScore":1,"AccuracyScore":1,"FluencyScore":1,"CompletenessScore":1}}]}`},
		{"missing overall score", `{"NBest":[{"PronunciationAssessment":{"PronScore":1},"Words":[]}]}`},
		{"no speech", `{"RecognitionStatus":"InitialSilenceTimeout"}`},
		{"word without text", `{"NBest":[{"PronunciationAssessment":{"PronScore":1,"AccuracyScore":1,"FluencyScore":1,"CompletenessScore":1},"Words":[{"Offset":1}]}]}`},
		{"score out of range", `{"NBest":[{"PronunciationAssessment":{"PronScore":101,"AccuracyScore":1,"FluencyScore":1,"CompletenessScore":1},"Words":[]}]}`},
		{"flat word score out of range", `{"NBest":[{"PronScore":1,"AccuracyScore":1,"FluencyScore":1,"CompletenessScore":1,"Words":[{"Word":"a","AccuracyScore":140}]}]}`},
		{"flat overall incomplete", `{"NBest":[{"PronScore":1,"AccuracyScore":1,"Words":[]}]}`},
		{"phoneme without symbol", `{"NBest":[{"PronunciationAssessment":{"PronScore":1,"AccuracyScore":1,"FluencyScore":1,"CompletenessScore":1},"Words":[{"Word":"a","Phonemes":[{"Offset":1}]}]}]}`},
		{"negative offset", `{"NBest":[{"PronunciationAssessment":{"PronScore":1,"AccuracyScore":1,"FluencyScore":1,"CompletenessScore":1},"Words":[{"Word":"a","Offset":-1}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrMalformedAssessment), "got %v", err)
		})
	}
}

func TestDecodeUnscoredPhoneme(t *testing.T) {
	raw := `{"NBest":[{"PronunciationAssessment":{"PronScore":80,"AccuracyScore":80,"FluencyScore":80,"CompletenessScore":80},
	  "Words":[{"Word":"think","PronunciationAssessment":{"AccuracyScore":60,"ErrorType":"Mispronunciation"},
	    "Phonemes":[{"Phoneme":"θ"},{"Phoneme":"ɪ","PronunciationAssessment":{"AccuracyScore":40}}]}]}]}`
	r, err := Decode([]byte(raw))
	require.NoError(t, err)

	ph := r.Words[0].Phonemes
	require.Len(t, ph, 2)
	assert.True(t, ph[0].Unscored)
	assert.False(t, ph[1].Unscored)
	assert.Equal(t, 40.0, ph[1].Accuracy)
}

func TestValidateReportsFirstScoreInOrder(t *testing.T) {
	r := &Result{Scores: Scores{Pronunciation: 150, Accuracy: -1, Fluency: 200, Completeness: 300}}
	for i := 0; i < 20; i++ {
		err := r.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PronScore")
	}
}

func TestTicks(t *testing.T) {
	assert.Equal(t, 1.5, Ticks(15_000_000).Seconds())
}
