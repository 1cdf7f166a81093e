package visualization

import (
	"math"

	"github.com/windfall/phonoecho/internal/history"
)

const (
	OverallHistoryTitle = "総合点スコア"
	DetailHistoryTitle  = "詳細スコア"
	historyXTitle       = "練習回数"
	historyYTitle       = "スコア"
	historyLegendTitle  = "評価指標"
	historyMaxAttempts  = 10
)

// Series is one line of a line chart. Point X is the 1-based attempt number.
type Series struct {
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Points []Point `json:"points"`
}

// LineChart plots scores over attempts.
type LineChart struct {
	Title   string     `json:"title"`
	XTitle  string     `json:"x_title"`
	YTitle  string     `json:"y_title"`
	XDomain [2]float64 `json:"x_domain"`
	YDomain [2]float64 `json:"y_domain"`
	Series  []Series   `json:"series"`
}

// HistoryCharts builds the overall and detail score charts of a lesson. The
// x axis always spans attempts 1-10; the y axis is padded by 5 around the
// observed scores and clamped to [0, 100].
func HistoryCharts(h *history.LessonHistory) (overall, detail *LineChart) {
	var attempts []history.ScoreRecord
	if h != nil {
		attempts = h.Attempts
	}

	pick := func(name, color string, f func(history.ScoreRecord) float64) Series {
		s := Series{Name: name, Color: color, Points: make([]Point, len(attempts))}
		for i, a := range attempts {
			s.Points[i] = Point{X: float64(i + 1), Y: f(a)}
		}
		return s
	}

	overall = &LineChart{
		Title:   OverallHistoryTitle,
		XTitle:  historyXTitle,
		YTitle:  historyYTitle,
		XDomain: [2]float64{1, historyMaxAttempts},
		Series: []Series{
			pick("PronScore", "#FF4B4B", func(r history.ScoreRecord) float64 { return r.Pronunciation }),
		},
	}
	overall.YDomain = paddedDomain(overall.Series)

	detail = &LineChart{
		Title:   DetailHistoryTitle,
		XTitle:  historyXTitle,
		YTitle:  historyYTitle,
		XDomain: [2]float64{1, historyMaxAttempts},
		Series: []Series{
			pick("AccuracyScore", "#00C957", func(r history.ScoreRecord) float64 { return r.Accuracy }),
			pick("FluencyScore", "#4169E1", func(r history.ScoreRecord) float64 { return r.Fluency }),
			pick("CompletenessScore", "#FFD700", func(r history.ScoreRecord) float64 { return r.Completeness }),
			pick("ProsodyScore", "#FF69B4", func(r history.ScoreRecord) float64 { return r.Prosody }),
		},
	}
	detail.YDomain = paddedDomain(detail.Series)

	return overall, detail
}

func paddedDomain(series []Series) [2]float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, p := range s.Points {
			lo = math.Min(lo, p.Y)
			hi = math.Max(hi, p.Y)
		}
	}
	if math.IsInf(lo, 1) {
		return [2]float64{0, 100}
	}
	return [2]float64{math.Max(0, lo-5), math.Min(100, hi+5)}
}

// VegaLite returns the chart as a Vega-Lite specification.
func (c *LineChart) VegaLite() map[string]any {
	values := make([]map[string]any, 0)
	colors := make([]string, 0, len(c.Series))
	names := make([]string, 0, len(c.Series))
	for _, s := range c.Series {
		names = append(names, s.Name)
		colors = append(colors, s.Color)
		for _, p := range s.Points {
			values = append(values, map[string]any{"Attempt": int(p.X), "Metric": s.Name, "Score": p.Y})
		}
	}

	ticks := make([]int, 0, historyMaxAttempts)
	for i := 1; i <= historyMaxAttempts; i++ {
		ticks = append(ticks, i)
	}

	spec := map[string]any{
		"$schema": "https://vega.github.io/schema/vega-lite/v5.json",
		"title":   c.Title,
		"width":   "container",
		"height":  300,
		"data":    map[string]any{"values": values},
		"mark":    map[string]any{"type": "line", "point": true},
		"params":  []map[string]any{{"name": "grid", "select": "interval", "bind": "scales"}},
		"encoding": map[string]any{
			"x": map[string]any{
				"field": "Attempt", "type": "quantitative",
				"scale": map[string]any{"domain": c.XDomain},
				"axis":  map[string]any{"title": c.XTitle, "values": ticks, "format": "d", "tickMinStep": 1, "grid": true},
			},
			"y": map[string]any{
				"field": "Score", "type": "quantitative", "title": c.YTitle,
				"scale": map[string]any{"domain": c.YDomain},
			},
			"color": map[string]any{
				"field": "Metric", "type": "nominal",
				"scale":  map[string]any{"domain": names, "range": colors},
				"legend": map[string]any{"title": historyLegendTitle, "orient": "right"},
			},
			"tooltip": []map[string]any{{"field": "Attempt"}, {"field": "Score"}, {"field": "Metric"}},
		},
	}
	return spec
}
