package room

import "errors"

var (
	// ErrNotHost is returned when a host-gated operation is attempted
	// without holding host authority for the room.
	ErrNotHost = errors.New("not the host of this room")
	// ErrRoomFull rejects a join at or above the max player count.
	ErrRoomFull = errors.New("room is full")
	// ErrGameInProgress rejects a join while the game is being played.
	ErrGameInProgress = errors.New("game already started")
	// ErrNotEnoughPlayers rejects a start below the minimum player
	// count; the room state is left unchanged.
	ErrNotEnoughPlayers = errors.New("waiting for more players")
	// ErrInvalidSettings rejects a settings update that fails validation.
	ErrInvalidSettings = errors.New("invalid room settings")
	// ErrTransferWhilePlaying rejects a host transfer outside the
	// waiting state.
	ErrTransferWhilePlaying = errors.New("host can only be transferred before the game starts")
	// ErrKickHost rejects kicking the player who holds host authority.
	ErrKickHost = errors.New("the host cannot be kicked")
	// ErrWrongStatus rejects an operation not allowed in the room's
	// current lifecycle state.
	ErrWrongStatus = errors.New("operation not allowed in current room status")
	// ErrNoQuestions rejects starting a room whose test has no questions.
	ErrNoQuestions = errors.New("test has no questions")
)
