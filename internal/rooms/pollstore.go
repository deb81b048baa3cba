package rooms

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// PollStore owns per-room poll documents and their append-only answer
// sequences. All mutations go through the owning room's mutex, so the Ended
// check and the append are a single atomic step.
type PollStore struct {
	registry *Registry
	logger   *zap.Logger
}

// NewPollStore creates a poll store backed by the given registry.
func NewPollStore(registry *Registry, logger *zap.Logger) *PollStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollStore{registry: registry, logger: logger}
}

// CreatePoll validates and appends a poll to the room. Append order is the
// order calls pass the Ended check.
func (s *PollStore) CreatePoll(ctx context.Context, roomCode, question string, options []string, correctOption, timerSec int) (*models.Poll, error) {
	if len(options) < 2 || strings.TrimSpace(question) == "" {
		return nil, ErrInvalidPoll
	}
	if correctOption >= len(options) {
		return nil, ErrInvalidPoll
	}
	if correctOption < 0 {
		correctOption = models.CorrectOptionNone
	}
	if timerSec <= 0 {
		timerSec = models.DefaultPollTimerSec
	}

	state, err := s.registry.state(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	poll := &models.Poll{
		ID:            uuid.New(),
		Question:      question,
		Options:       append([]string(nil), options...),
		CorrectOption: correctOption,
		TimerSec:      timerSec,
		CreatedAt:     time.Now(),
	}

	state.mu.Lock()
	if state.room.Status == models.RoomEnded {
		state.mu.Unlock()
		return nil, ErrRoomEnded
	}
	state.room.Polls = append(state.room.Polls, poll)
	out := *poll
	out.Options = append([]string(nil), poll.Options...)
	state.mu.Unlock()

	if s.registry.store != nil {
		if err := s.registry.store.AppendPoll(ctx, roomCode, &out); err != nil {
			s.logger.Warn("poll write-through failed", zap.String("room", roomCode), zap.Error(err))
		}
	}
	s.logger.Info("poll created", zap.String("room", roomCode), zap.String("poll_id", poll.ID.String()))
	return &out, nil
}

// SubmitAnswer appends one answer to the poll and returns the answer count
// after the append. The room's Ended status is re-checked under the room
// lock, so a submit concurrent with EndRoom lands cleanly on one side of the
// transition. Out-of-range answer indexes are stored as-is; aggregation
// filters them. Repeat submissions by the same user are separate appends.
func (s *PollStore) SubmitAnswer(ctx context.Context, roomCode string, pollID, userID uuid.UUID, answerIndex int) (int, error) {
	state, err := s.registry.state(ctx, roomCode)
	if err != nil {
		return 0, err
	}

	answer := models.PollAnswer{
		UserID:      userID,
		AnswerIndex: answerIndex,
		AnsweredAt:  time.Now(),
	}

	state.mu.Lock()
	if state.room.Status == models.RoomEnded {
		state.mu.Unlock()
		return 0, ErrRoomEnded
	}
	var poll *models.Poll
	for _, p := range state.room.Polls {
		if p.ID == pollID {
			poll = p
			break
		}
	}
	if poll == nil {
		state.mu.Unlock()
		return 0, ErrPollNotFound
	}
	poll.Answers = append(poll.Answers, answer)
	count := len(poll.Answers)
	state.mu.Unlock()

	if s.registry.store != nil {
		if err := s.registry.store.AppendAnswer(ctx, roomCode, pollID, answer); err != nil {
			s.logger.Warn("answer write-through failed", zap.String("room", roomCode), zap.Error(err))
		}
	}
	return count, nil
}
