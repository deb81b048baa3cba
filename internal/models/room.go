package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomEnded  RoomStatus = "ended"
)

// CorrectOptionNone marks a poll with no designated correct answer.
const CorrectOptionNone = -1

// DefaultPollTimerSec is the answer-window hint attached to new polls.
const DefaultPollTimerSec = 30

// Room is a teacher-owned session container with a short join code and an
// append-only list of polls.
type Room struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	TeacherID uuid.UUID  `json:"teacher_id"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	Polls     []*Poll    `json:"polls"`
}

// Poll is a single multiple-choice question in a room.
type Poll struct {
	ID            uuid.UUID    `json:"id"`
	Question      string       `json:"question"`
	Options       []string     `json:"options"`
	CorrectOption int          `json:"correct_option"` // index into Options, or CorrectOptionNone
	TimerSec      int          `json:"timer_sec"`      // advisory answer window for the UI; not enforced server-side
	CreatedAt     time.Time    `json:"created_at"`
	Answers       []PollAnswer `json:"answers"`
}

// PollAnswer is one submitted response. Immutable once appended. AnswerIndex
// may be out of the options range; aggregation filters those out.
type PollAnswer struct {
	UserID      uuid.UUID `json:"user_id"`
	AnswerIndex int       `json:"answer_index"`
	AnsweredAt  time.Time `json:"answered_at"`
}
