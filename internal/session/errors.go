package session

import "errors"

var (
	// ErrEmptyGuess rejects a blank guess submission.
	ErrEmptyGuess = errors.New("guess is empty")
	// ErrQuestionNotLoaded rejects a guess arriving before the current
	// question (or its answer set) is available locally.
	ErrQuestionNotLoaded = errors.New("question not loaded yet")
	// ErrTooManyGuesses rejects a guess over the per-session rate limit.
	ErrTooManyGuesses = errors.New("too many guesses, slow down")
	// ErrChatDisabled rejects chat in a room with chat turned off.
	ErrChatDisabled = errors.New("chat is disabled in this room")
	// ErrSessionClosed is returned from operations on a controller that
	// has already left its room.
	ErrSessionClosed = errors.New("session closed")
)
