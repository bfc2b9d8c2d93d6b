package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateExactMatchIsCorrect(t *testing.T) {
	answers := []string{"Eiffel Tower", "tower"}

	eval := Evaluate("eiffel tower", answers)
	assert.True(t, eval.IsCorrect)
	assert.False(t, eval.IsClose)
}

func TestEvaluateTrimsAndLowercases(t *testing.T) {
	eval := Evaluate("  EIFFEL TOWER  ", []string{"eiffel tower"})
	assert.True(t, eval.IsCorrect)
}

func TestEvaluateSubstringIsClose(t *testing.T) {
	eval := Evaluate("tower", []string{"eiffel tower"})
	assert.False(t, eval.IsCorrect)
	assert.True(t, eval.IsClose)
}

func TestEvaluateExactBeatsClose(t *testing.T) {
	// "tower" is a substring of the first answer but equals the second;
	// equality wins.
	eval := Evaluate("tower", []string{"eiffel tower", "Tower"})
	assert.True(t, eval.IsCorrect)
	assert.False(t, eval.IsClose)
}

func TestEvaluatePlainMiss(t *testing.T) {
	eval := Evaluate("pyramid", []string{"eiffel tower"})
	assert.False(t, eval.IsCorrect)
	assert.False(t, eval.IsClose)
}

func TestEvaluateEmptyGuessNeverMatches(t *testing.T) {
	eval := Evaluate("   ", []string{"eiffel tower"})
	assert.False(t, eval.IsCorrect)
	assert.False(t, eval.IsClose)
}
