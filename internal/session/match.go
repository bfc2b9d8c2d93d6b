package session

import "strings"

// Evaluation classifies a guess against the accepted-answer set.
type Evaluation struct {
	IsCorrect bool
	IsClose   bool
}

// Normalize prepares a guess or answer for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Evaluate matches a guess against the accepted answers. Exact match
// (after normalization) is correct; a guess that is a substring of some
// accepted answer without equaling any is close; anything else is a
// plain miss.
func Evaluate(guess string, answers []string) Evaluation {
	g := Normalize(guess)
	if g == "" {
		return Evaluation{}
	}

	isClose := false
	for _, answer := range answers {
		a := Normalize(answer)
		if g == a {
			return Evaluation{IsCorrect: true}
		}
		if strings.Contains(a, g) {
			isClose = true
		}
	}
	return Evaluation{IsClose: isClose}
}
