package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// PostgresStore is the pgx-backed persistence collaborator for rooms.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres room store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Load returns the room with its polls and answers, or (nil, nil) when the
// code is unknown.
func (s *PostgresStore) Load(ctx context.Context, code string) (*models.Room, error) {
	const roomQ = `SELECT code, name, teacher_id, status, created_at FROM rooms WHERE code = $1`
	var room models.Room
	err := s.pool.QueryRow(ctx, roomQ, code).
		Scan(&room.Code, &room.Name, &room.TeacherID, &room.Status, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}

	const pollQ = `SELECT id, question, options, correct_option, timer_sec, created_at
		FROM polls WHERE room_code = $1 ORDER BY position`
	rows, err := s.pool.Query(ctx, pollQ, code)
	if err != nil {
		return nil, fmt.Errorf("select polls: %w", err)
	}
	defer rows.Close()
	byID := make(map[uuid.UUID]*models.Poll)
	for rows.Next() {
		var p models.Poll
		if err := rows.Scan(&p.ID, &p.Question, &p.Options, &p.CorrectOption, &p.TimerSec, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		room.Polls = append(room.Polls, &p)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const answerQ = `SELECT a.poll_id, a.user_id, a.answer_index, a.answered_at
		FROM poll_answers a JOIN polls p ON p.id = a.poll_id
		WHERE p.room_code = $1 ORDER BY a.id`
	arows, err := s.pool.Query(ctx, answerQ, code)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var pollID uuid.UUID
		var a models.PollAnswer
		if err := arows.Scan(&pollID, &a.UserID, &a.AnswerIndex, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if p, ok := byID[pollID]; ok {
			p.Answers = append(p.Answers, a)
		}
	}
	return &room, arows.Err()
}

// Save upserts the room row. Polls and answers are written by their own
// append calls.
func (s *PostgresStore) Save(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (code, name, teacher_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET status = EXCLUDED.status`
	_, err := s.pool.Exec(ctx, q, room.Code, room.Name, room.TeacherID, room.Status, room.CreatedAt)
	return err
}

// AppendPoll inserts one poll at the next position for the room.
func (s *PostgresStore) AppendPoll(ctx context.Context, code string, poll *models.Poll) error {
	const q = `INSERT INTO polls (id, room_code, position, question, options, correct_option, timer_sec, created_at)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position), 0) + 1 FROM polls WHERE room_code = $2), $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, q, poll.ID, code, poll.Question, poll.Options, poll.CorrectOption, poll.TimerSec, poll.CreatedAt)
	return err
}

// AppendAnswer inserts one answer row. No dedup by (poll_id, user_id): every
// accepted submission is its own row.
func (s *PostgresStore) AppendAnswer(ctx context.Context, code string, pollID uuid.UUID, answer models.PollAnswer) error {
	const q = `INSERT INTO poll_answers (poll_id, user_id, answer_index, answered_at)
		VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, q, pollID, answer.UserID, answer.AnswerIndex, answer.AnsweredAt)
	return err
}
