package visualization

import (
	"math"

	"github.com/windfall/phonoecho/internal/assessment"
)

const (
	CurrentErrorsTitle = "今回の発音エラー"
	TotalErrorsTitle   = "レッスン総合エラー"

	doughnutSize = 300.0
	doughnutHole = 50.0
)

var doughnutPalette = []string{"#FF4B4B", "#FFC000", "#00B050", "#2F75B5", "#7030A0", "#000000"}

// Slice is one category of a doughnut chart.
type Slice struct {
	Category assessment.Category `json:"category"`
	Count    int                 `json:"count"`
	Color    string              `json:"color"`
}

// DoughnutChart shows the share of each error category. Categories with no
// errors are left out.
type DoughnutChart struct {
	Title  string  `json:"title"`
	Slices []Slice `json:"slices"`
}

// Doughnut builds a doughnut chart from tallies. Each category keeps the same
// colour across charts.
func Doughnut(title string, t assessment.Tallies) *DoughnutChart {
	c := &DoughnutChart{Title: title, Slices: []Slice{}}
	for i, cat := range assessment.Categories() {
		if n := t[cat].Count; n > 0 {
			c.Slices = append(c.Slices, Slice{Category: cat, Count: n, Color: doughnutPalette[i%len(doughnutPalette)]})
		}
	}
	return c
}

// Empty reports whether there is nothing to draw.
func (c *DoughnutChart) Empty() bool {
	return len(c.Slices) == 0
}

type arcView struct {
	Path  string
	Color string
	Label string
	Count int
}

type doughnutView struct {
	Size  float64
	Title string
	Arcs  []arcView
}

// SVG renders the chart.
func (c *DoughnutChart) SVG() (string, error) {
	total := 0
	for _, s := range c.Slices {
		total += s.Count
	}

	v := doughnutView{Size: doughnutSize, Title: c.Title}
	cx, cy := doughnutSize/2, doughnutSize/2+12
	outer := doughnutSize/2 - 24
	start := 0.0
	for _, s := range c.Slices {
		sweep := 2 * math.Pi * float64(s.Count) / float64(total)
		v.Arcs = append(v.Arcs, arcView{
			Path:  arcPath(cx, cy, outer, doughnutHole, start, start+sweep),
			Color: s.Color,
			Label: string(s.Category),
			Count: s.Count,
		})
		start += sweep
	}
	return render("doughnut.svg.tmpl", v)
}

// arcPath draws a ring sector between angles a0 and a1, measured clockwise
// from 12 o'clock.
func arcPath(cx, cy, outer, inner, a0, a1 float64) string {
	// A full circle cannot be drawn with one arc command.
	if a1-a0 >= 2*math.Pi-1e-9 {
		a1 = a0 + 2*math.Pi - 1e-4
	}
	at := func(r, a float64) Point { return Point{X: cx + r*math.Sin(a), Y: cy - r*math.Cos(a)} }
	large := 0
	if a1-a0 > math.Pi {
		large = 1
	}
	p0, p1 := at(outer, a0), at(outer, a1)
	q1, q0 := at(inner, a1), at(inner, a0)
	return "M " + formatPoints([]Point{p0}) +
		" A " + num(outer) + " " + num(outer) + " 0 " + itoa(large) + " 1 " + formatPoints([]Point{p1}) +
		" L " + formatPoints([]Point{q1}) +
		" A " + num(inner) + " " + num(inner) + " 0 " + itoa(large) + " 0 " + formatPoints([]Point{q0}) +
		" Z"
}
