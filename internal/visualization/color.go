// Package visualization builds the chart and table models shown after an
// attempt. Every builder is a pure function of its inputs and renders to
// SVG or HTML through the embedded templates.
package visualization

// Bucket is one of the four score bands shared by every chart and table.
type Bucket int

const (
	BucketGreen Bucket = iota
	BucketYellow
	BucketOrange
	BucketRed
)

var bucketHex = [...]string{
	BucketGreen:  "#00ff00",
	BucketYellow: "#ffc000",
	BucketOrange: "#ff4b4b",
	BucketRed:    "#ff0000",
}

var bucketNames = [...]string{
	BucketGreen:  "green",
	BucketYellow: "yellow",
	BucketOrange: "orange",
	BucketRed:    "red",
}

// BucketFor maps a score to its band: >=90 green, >=70 yellow, >=60 orange,
// anything lower red.
func BucketFor(score float64) Bucket {
	switch {
	case score >= 90:
		return BucketGreen
	case score >= 70:
		return BucketYellow
	case score >= 60:
		return BucketOrange
	default:
		return BucketRed
	}
}

// Hex returns the band's display colour.
func (b Bucket) Hex() string {
	return bucketHex[b]
}

func (b Bucket) String() string {
	return bucketNames[b]
}

// Color returns the display colour for a score.
func Color(score float64) string {
	return BucketFor(score).Hex()
}
