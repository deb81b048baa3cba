// Package session is the composition root for the room/poll lifecycle: it
// coordinates the registry, poll store, aggregator and broadcast hub so that
// every externally visible mutation lands before its broadcast goes out.
package session

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/results"
	"github.com/classpulse/backend/internal/rooms"
)

// Broadcaster pushes a named event to every participant of a room, locally
// and across instances, with exactly one delivery per client.
type Broadcaster interface {
	PublishToRoom(roomCode, event string, payload interface{})
}

// ReportQueue enqueues a results-report job for an ended room.
type ReportQueue interface {
	EnqueueResultsReport(ctx context.Context, roomCode string) error
}

// Session orchestrates end-to-end request handling. One shared instance is
// injected into both the HTTP handlers and the socket layer.
type Session struct {
	registry *rooms.Registry
	polls    *rooms.PollStore
	agg      *results.Aggregator
	hub      Broadcaster
	reports  ReportQueue
	logger   *zap.Logger
}

// New creates the session coordinator. hub and reports may be nil in tests.
func New(registry *rooms.Registry, polls *rooms.PollStore, agg *results.Aggregator, hub Broadcaster, reports ReportQueue, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		registry: registry,
		polls:    polls,
		agg:      agg,
		hub:      hub,
		reports:  reports,
		logger:   logger,
	}
}

// CreateRoom opens a new room for the teacher.
func (s *Session) CreateRoom(ctx context.Context, name string, teacherID uuid.UUID) (*models.Room, error) {
	return s.registry.CreateRoom(ctx, name, teacherID)
}

// GetRoomByCode returns a snapshot of the room.
func (s *Session) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return s.registry.GetByCode(ctx, code)
}

// CreatePoll appends a poll to the room and then pushes it to all joined
// participants as a new-poll event.
func (s *Session) CreatePoll(ctx context.Context, roomCode, question string, options []string, correctOption, timerSec int) (*models.Poll, error) {
	poll, err := s.polls.CreatePoll(ctx, roomCode, question, options, correctOption, timerSec)
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.PublishToRoom(roomCode, realtime.EventNewPoll, poll)
	}
	return poll, nil
}

// SubmitAnswer records one answer and then pushes the updated answer count
// as a poll-updated event. Implements realtime.AnswerSubmitter.
func (s *Session) SubmitAnswer(ctx context.Context, roomCode string, pollID, userID uuid.UUID, answerIndex int) error {
	count, err := s.polls.SubmitAnswer(ctx, roomCode, pollID, userID, answerIndex)
	if err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.PublishToRoom(roomCode, realtime.EventPollUpdated, map[string]interface{}{
			"poll_id":      pollID,
			"answer_count": count,
		})
	}
	return nil
}

// EndRoom transitions the room to Ended, tells every joined participant, and
// queues the results report. The transition happens strictly before the
// broadcast so a client reacting to room-ended observes the final state.
func (s *Session) EndRoom(ctx context.Context, roomCode string) error {
	if err := s.registry.EndRoom(ctx, roomCode); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.PublishToRoom(roomCode, realtime.EventRoomEnded, map[string]string{
			"room_code": roomCode,
		})
	}
	if s.reports != nil {
		if err := s.reports.EnqueueResultsReport(ctx, roomCode); err != nil {
			s.logger.Warn("enqueue results report failed", zap.String("room", roomCode), zap.Error(err))
		}
	}
	return nil
}

// GetResults returns the aggregated per-option tallies for the room.
func (s *Session) GetResults(ctx context.Context, roomCode string) (results.RoomResults, error) {
	return s.agg.GetResults(ctx, roomCode)
}
