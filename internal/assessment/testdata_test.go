package assessment

// sampleJSON follows the nested response schema of the assessment service.
const sampleJSON = `{
  "RecognitionStatus": "Success",
  "NBest": [{
    "Display": "I think so.",
    "PronunciationAssessment": {"PronScore": 72.4, "AccuracyScore": 70, "FluencyScore": 80, "CompletenessScore": 100, "ProsodyScore": 65.5},
    "Words": [
      {"Word": "i", "Offset": 5000000, "Duration": 2000000,
       "PronunciationAssessment": {"AccuracyScore": 98, "ErrorType": "None"},
       "Phonemes": [{"Phoneme": "aɪ", "Offset": 5000000, "Duration": 2000000, "PronunciationAssessment": {"AccuracyScore": 98}}]},
      {"Word": "think", "Offset": 7000000, "Duration": 4000000,
       "PronunciationAssessment": {"AccuracyScore": 65, "ErrorType": "Mispronunciation"},
       "Phonemes": [
         {"Phoneme": "θ", "Offset": 7000000, "Duration": 1000000, "PronunciationAssessment": {"AccuracyScore": 35}},
         {"Phoneme": "ɪ", "Offset": 8000000, "Duration": 1000000, "PronunciationAssessment": {"AccuracyScore": 90}},
         {"Phoneme": "ŋ", "Offset": 9000000, "Duration": 1000000, "PronunciationAssessment": {"AccuracyScore": 80}},
         {"Phoneme": "k", "Offset": 10000000, "Duration": 1000000, "PronunciationAssessment": {"AccuracyScore": 70}}
       ]},
      {"Word": "so", "Offset": 0, "Duration": 0,
       "PronunciationAssessment": {"AccuracyScore": 0, "ErrorType": "Omission"}},
      {"Word": "really", "Offset": 11000000, "Duration": 3000000}
    ]
  }]
}`
