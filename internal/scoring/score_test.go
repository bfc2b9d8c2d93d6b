package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreBoundaries(t *testing.T) {
	assert.Equal(t, 1000, Score(0))
	assert.Equal(t, 100, Score(100))
}

func TestScoreClamped(t *testing.T) {
	assert.Equal(t, MaxScore, Score(-50))
	assert.Equal(t, MinScore, Score(150))
}

func TestScoreMonotoneNonIncreasing(t *testing.T) {
	prev := Score(0)
	for r := 1; r <= 100; r++ {
		cur := Score(r)
		assert.LessOrEqual(t, cur, prev, "score must not increase as reveal grows, r=%d", r)
		assert.GreaterOrEqual(t, cur, MinScore)
		assert.LessOrEqual(t, cur, MaxScore)
		prev = cur
	}
}

func TestScoreTable(t *testing.T) {
	tests := []struct {
		revealPercent int
		want          int
	}{
		{0, 1000},
		{10, 900},
		{20, 800},
		{50, 500},
		{90, 100},
		{100, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Score(tt.revealPercent), "reveal=%d", tt.revealPercent)
	}
}
