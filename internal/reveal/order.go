// Package reveal drives progressive disclosure of a grid-partitioned
// question image over the duration of a question.
package reveal

import "math/rand"

const (
	// GridCells is the fixed 5x5 partition of a question image.
	GridCells = 25
	// InitialCells is the random subset revealed immediately on
	// question start (20% of the grid) so players never stare at a
	// blank image.
	InitialCells = 5
)

// Order returns a random permutation of cell indices [0, totalCells).
// It is deterministic for a given seed so a reveal sequence can be
// reproduced and tested.
func Order(seed int64, totalCells int) []int {
	rng := rand.New(rand.NewSource(seed))
	cells := make([]int, totalCells)
	for i := range cells {
		cells[i] = i
	}
	rng.Shuffle(len(cells), func(i, j int) {
		cells[i], cells[j] = cells[j], cells[i]
	})
	return cells
}
