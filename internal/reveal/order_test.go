package reveal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderIsPermutation(t *testing.T) {
	order := Order(42, GridCells)
	assert.Len(t, order, GridCells)

	seen := make(map[int]bool, GridCells)
	for _, cell := range order {
		assert.GreaterOrEqual(t, cell, 0)
		assert.Less(t, cell, GridCells)
		assert.False(t, seen[cell], "cell %d revealed twice", cell)
		seen[cell] = true
	}
}

func TestOrderDeterministicPerSeed(t *testing.T) {
	assert.Equal(t, Order(7, GridCells), Order(7, GridCells))
	assert.NotEqual(t, Order(7, GridCells), Order(8, GridCells))
}
