package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus defines the lifecycle state of a game room.
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "WAITING"
	RoomStatusCountdown RoomStatus = "COUNTDOWN"
	RoomStatusPlaying   RoomStatus = "PLAYING"
	RoomStatusFinished  RoomStatus = "FINISHED"
)

// RoomSettings holds the host-configurable rules of a room.
type RoomSettings struct {
	QuestionTimeSec int  `json:"question_time_sec"`
	MinPlayers      int  `json:"min_players"`
	MaxPlayers      int  `json:"max_players"`
	AllowChat       bool `json:"allow_chat"`
	ShowLeaderboard bool `json:"show_leaderboard"`
}

// DefaultRoomSettings returns the settings applied to a freshly created room.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		QuestionTimeSec: 60,
		MinPlayers:      2,
		MaxPlayers:      8,
		AllowChat:       true,
		ShowLeaderboard: true,
	}
}

// Room is the shared document every session controller reads and
// conditionally writes. Host-gated fields (status, countdown, question
// index, current question) are only written by the controller holding
// host authority; that discipline is advisory, not enforced.
type Room struct {
	ID                   uuid.UUID    `json:"id"`
	Name                 string       `json:"name"`
	HostID               string       `json:"host_id,omitempty"`
	Status               RoomStatus   `json:"status"`
	Settings             RoomSettings `json:"settings"`
	TestID               string       `json:"test_id"`
	CurrentQuestionIndex int          `json:"current_question_index"`
	TotalQuestions       int          `json:"total_questions"`
	Countdown            int          `json:"countdown"`
	CurrentQuestion      *Question    `json:"current_question,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}
