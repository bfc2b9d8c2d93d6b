// Package scoring maps reveal progress to points. It is pure on
// purpose: every session controller runs it locally against the reveal
// state it observed when its own guess was accepted, so the host never
// has to compute anyone else's score.
package scoring

import "math"

const (
	// MinScore is awarded even on a fully revealed image.
	MinScore = 100
	// MaxScore is awarded for a correct guess before any timed reveals.
	MaxScore = 1000
)

// Score returns the points for a correct guess submitted while
// revealPercent of the image was visible. Fewer revealed cells mean a
// higher score. The result is clamped to [MinScore, MaxScore] for any
// input, including out-of-range percentages.
func Score(revealPercent int) int {
	raw := int(math.Round(100 * float64(100-revealPercent) / 10))
	if raw < MinScore {
		return MinScore
	}
	if raw > MaxScore {
		return MaxScore
	}
	return raw
}
