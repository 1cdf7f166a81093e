package visualization

import (
	"html/template"

	"github.com/windfall/phonoecho/internal/assessment"
)

// PhonemeCell is one phoneme symbol coloured by its own score.
type PhonemeCell struct {
	Symbol   string  `json:"symbol"`
	Accuracy float64 `json:"accuracy"`
	Color    string  `json:"color"`
}

// TableRow is one word of the score table.
type TableRow struct {
	Word     string        `json:"word"`
	Accuracy float64       `json:"accuracy"`
	Color    string        `json:"color"`
	Phonemes []PhonemeCell `json:"phonemes,omitempty"`
}

// ScoreTable lists every word with its accuracy and phoneme breakdown.
type ScoreTable struct {
	Rows []TableRow `json:"rows"`
}

// Table builds the score table for a word sequence.
func Table(words []assessment.WordResult) (*ScoreTable, error) {
	if err := (&assessment.Result{Words: words}).Validate(); err != nil {
		return nil, err
	}

	t := &ScoreTable{Rows: make([]TableRow, 0, len(words))}
	for _, w := range words {
		row := TableRow{
			Word:     w.Text,
			Accuracy: w.Accuracy,
			Color:    Color(w.Accuracy),
		}
		for _, p := range w.Phonemes {
			row.Phonemes = append(row.Phonemes, PhonemeCell{
				Symbol:   p.Symbol,
				Accuracy: p.Accuracy,
				Color:    Color(p.Accuracy),
			})
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// HTML renders the table. Words without phoneme data show the word itself
// in the pronunciation column.
func (t *ScoreTable) HTML() (template.HTML, error) {
	out, err := render("table.html.tmpl", t)
	if err != nil {
		return "", err
	}
	return template.HTML(out), nil
}
