package visualization

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"fmt1": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 1, 64)
	},
	"fmt2": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
	"px": func(v float64) string {
		return strconv.FormatFloat(round2(v), 'f', -1, 64)
	},
	"sub": func(a, b float64) float64 {
		return a - b
	},
	"points": formatPoints,
}).ParseFS(templateFS, "templates/*.tmpl"))

// Point is a position in chart space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatPoints(pts []Point) string {
	var b strings.Builder
	for i, p := range pts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(round2(p.X), 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(round2(p.Y), 'f', -1, 64))
	}
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func num(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
