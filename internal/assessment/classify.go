package assessment

import (
	"github.com/windfall/phonoecho/internal/errors"
)

// Category is one of the six fixed error categories. Its value is the
// user-facing label, which is also the key used in persisted tallies.
type Category string

const (
	CategoryOmission         Category = "省略 (Omission)"
	CategoryInsertion        Category = "挿入 (Insertion)"
	CategoryMispronunciation Category = "発音ミス (Mispronunciation)"
	CategoryUnexpectedBreak  Category = "不適切な間 (UnexpectedBreak)"
	CategoryMissingBreak     Category = "間の欠如 (MissingBreak)"
	CategoryMonotone         Category = "単調 (Monotone)"
)

var categories = []Category{
	CategoryOmission,
	CategoryInsertion,
	CategoryMispronunciation,
	CategoryUnexpectedBreak,
	CategoryMissingBreak,
	CategoryMonotone,
}

var categoryByError = map[ErrorType]Category{
	ErrorOmission:         CategoryOmission,
	ErrorInsertion:        CategoryInsertion,
	ErrorMispronunciation: CategoryMispronunciation,
	ErrorUnexpectedBreak:  CategoryUnexpectedBreak,
	ErrorMissingBreak:     CategoryMissingBreak,
	ErrorMonotone:         CategoryMonotone,
}

// Categories returns the six categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryFor maps an error type to its category. ok is false for None and
// for error types outside the taxonomy.
func CategoryFor(t ErrorType) (Category, bool) {
	c, ok := categoryByError[t]
	return c, ok
}

// Tally is the count and offending words for one category.
// Count always equals len(Words).
type Tally struct {
	Count int      `json:"count"`
	Words []string `json:"words"`
}

// Tallies maps every category to its tally. Values produced by this package
// always contain all six categories.
type Tallies map[Category]Tally

// NewTallies returns a zero tally for every category.
func NewTallies() Tallies {
	t := make(Tallies, len(categories))
	for _, c := range categories {
		t[c] = Tally{Words: []string{}}
	}
	return t
}

// Add records one occurrence of word under category c.
func (t Tallies) Add(c Category, word string) {
	cur := t[c]
	if cur.Words == nil {
		cur.Words = []string{}
	}
	cur.Words = append(cur.Words, word)
	cur.Count = len(cur.Words)
	t[c] = cur
}

// Merge returns the category-wise sum of t and other. Neither input is modified.
func (t Tallies) Merge(other Tallies) Tallies {
	out := NewTallies()
	for _, src := range []Tallies{t, other} {
		for c, tally := range src {
			for _, w := range tally.Words {
				out.Add(c, w)
			}
		}
	}
	return out
}

// Total returns the number of classified words across all categories.
func (t Tallies) Total() int {
	n := 0
	for _, tally := range t {
		n += tally.Count
	}
	return n
}

// NonZero returns the counts of categories that have at least one word.
func (t Tallies) NonZero() map[Category]int {
	out := make(map[Category]int)
	for _, c := range categories {
		if n := t[c].Count; n > 0 {
			out[c] = n
		}
	}
	return out
}

// Normalize fills in missing categories and repairs count/word drift, as
// found in hand-edited or older persisted tallies.
func (t Tallies) Normalize() Tallies {
	out := NewTallies()
	for c, tally := range t {
		if _, known := out[c]; !known {
			continue
		}
		for _, w := range tally.Words {
			out.Add(c, w)
		}
	}
	return out
}

// Classify tallies the error types of a result's words in a single pass.
// Words classified None, or with an error type outside the taxonomy,
// contribute to no tally.
func Classify(r *Result) (Tallies, error) {
	if r == nil || r.Words == nil {
		return nil, errors.Malformed("cannot classify an assessment result without words")
	}
	return ClassifyWords(r.Words), nil
}

// ClassifyWords is Classify over a bare word sequence.
func ClassifyWords(words []WordResult) Tallies {
	t := NewTallies()
	for _, w := range words {
		if c, ok := CategoryFor(w.Error); ok {
			t.Add(c, w.Text)
		}
	}
	return t
}
