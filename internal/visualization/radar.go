package visualization

import (
	"fmt"
	"math"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/errors"
)

const (
	RadarTitle = "発音評価レーダーチャート"
	radarMax   = 100.0
	radarSize  = 480.0
)

// RadarAxis is one spoke of the radar chart.
type RadarAxis struct {
	Label string  `json:"label"`
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// RadarChart plots the five overall scores on a closed polygon, scale 0-100,
// with the first axis at 12 o'clock and the rest clockwise.
type RadarChart struct {
	Title string      `json:"title"`
	Max   float64     `json:"max"`
	Axes  []RadarAxis `json:"axes"`
}

// Radar builds the radar chart for an attempt's overall scores.
func Radar(s assessment.Scores) (*RadarChart, error) {
	axes := []RadarAxis{
		{Label: "総合", Key: "PronScore", Value: s.Pronunciation},
		{Label: "正確性", Key: "AccuracyScore", Value: s.Accuracy},
		{Label: "流暢性", Key: "FluencyScore", Value: s.Fluency},
		{Label: "完全性", Key: "CompletenessScore", Value: s.Completeness},
		{Label: "韻律", Key: "ProsodyScore", Value: s.Prosody},
	}
	for _, a := range axes {
		if a.Value < 0 || a.Value > radarMax || math.IsNaN(a.Value) {
			return nil, errors.Malformed(fmt.Sprintf("radar chart: %s %.2f is outside [0,100]", a.Key, a.Value))
		}
	}
	return &RadarChart{Title: RadarTitle, Max: radarMax, Axes: axes}, nil
}

// angle returns the angle of axis i, measured clockwise from 12 o'clock.
func (c *RadarChart) angle(i int) float64 {
	return 2 * math.Pi * float64(i) / float64(len(c.Axes))
}

// at returns the SVG position of value v on axis i for a chart centred on
// (cx, cy) with the given radius. SVG y grows downwards.
func (c *RadarChart) at(i int, v, cx, cy, radius float64) Point {
	r := radius * v / c.Max
	a := c.angle(i)
	return Point{X: cx + r*math.Sin(a), Y: cy - r*math.Cos(a)}
}

// Vertices returns the polygon vertices, one per axis, without repeating
// the first.
func (c *RadarChart) Vertices(cx, cy, radius float64) []Point {
	pts := make([]Point, len(c.Axes))
	for i, a := range c.Axes {
		pts[i] = c.at(i, a.Value, cx, cy, radius)
	}
	return pts
}

type radarView struct {
	Size     float64
	Center   Point
	Title    string
	Rings    []radarRing
	Spokes   []radarSpoke
	Polygon  []Point
	Vertices []radarVertex
}

type radarRing struct {
	Points []Point
	Label  string
	At     Point
}

type radarSpoke struct {
	End   Point
	Label string
	At    Point
}

type radarVertex struct {
	Point
	Value float64
	At    Point
}

// SVG renders the chart.
func (c *RadarChart) SVG() (string, error) {
	cx, cy := radarSize/2, radarSize/2+10
	radius := radarSize/2 - 70

	v := radarView{Size: radarSize, Center: Point{X: cx, Y: cy}, Title: c.Title}
	for _, level := range []float64{20, 40, 60, 80, 100} {
		ring := radarRing{Label: fmt.Sprintf("%.0f", level), At: c.at(0, level, cx, cy, radius)}
		for i := range c.Axes {
			ring.Points = append(ring.Points, c.at(i, level, cx, cy, radius))
		}
		v.Rings = append(v.Rings, ring)
	}
	for i, a := range c.Axes {
		v.Spokes = append(v.Spokes, radarSpoke{
			End:   c.at(i, c.Max, cx, cy, radius),
			Label: a.Label,
			At:    c.at(i, c.Max+18, cx, cy, radius),
		})
		v.Vertices = append(v.Vertices, radarVertex{
			Point: c.at(i, a.Value, cx, cy, radius),
			Value: a.Value,
			At:    c.at(i, a.Value+8, cx, cy, radius),
		})
	}
	v.Polygon = c.Vertices(cx, cy, radius)
	return render("radar.svg.tmpl", v)
}
