package rooms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

func newTestRoom(t *testing.T) (*Registry, *PollStore, *models.Room) {
	t.Helper()
	reg := NewRegistry(nil, nil)
	store := NewPollStore(reg, nil)
	room, err := reg.CreateRoom(context.Background(), "Math", uuid.New())
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	return reg, store, room
}

func TestCreatePollValidation(t *testing.T) {
	_, store, room := newTestRoom(t)

	cases := []struct {
		name    string
		q       string
		options []string
		correct int
	}{
		{"one option", "2+2?", []string{"4"}, 0},
		{"no options", "2+2?", nil, -1},
		{"blank question", "  ", []string{"3", "4"}, 0},
		{"correct index out of range", "2+2?", []string{"3", "4"}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreatePoll(context.Background(), room.Code, tc.q, tc.options, tc.correct, 0); !errors.Is(err, ErrInvalidPoll) {
				t.Errorf("CreatePoll err = %v, want ErrInvalidPoll", err)
			}
		})
	}
}

func TestCreatePollDefaults(t *testing.T) {
	_, store, room := newTestRoom(t)

	poll, err := store.CreatePoll(context.Background(), room.Code, "2+2?", []string{"3", "4"}, -5, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}
	if poll.TimerSec != models.DefaultPollTimerSec {
		t.Errorf("timer = %d, want default %d", poll.TimerSec, models.DefaultPollTimerSec)
	}
	if poll.CorrectOption != models.CorrectOptionNone {
		t.Errorf("correct option = %d, want sentinel %d", poll.CorrectOption, models.CorrectOptionNone)
	}
	if poll.ID == uuid.Nil {
		t.Error("poll id not assigned")
	}
}

func TestCreatePollUnknownRoom(t *testing.T) {
	reg := NewRegistry(nil, nil)
	store := NewPollStore(reg, nil)
	if _, err := store.CreatePoll(context.Background(), "ABC123", "q", []string{"a", "b"}, -1, 0); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("CreatePoll err = %v, want ErrRoomNotFound", err)
	}
}

func TestCreatePollOnEndedRoom(t *testing.T) {
	reg, store, room := newTestRoom(t)
	if err := reg.EndRoom(context.Background(), room.Code); err != nil {
		t.Fatalf("EndRoom failed: %v", err)
	}
	if _, err := store.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b"}, -1, 0); !errors.Is(err, ErrRoomEnded) {
		t.Errorf("CreatePoll err = %v, want ErrRoomEnded", err)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	reg, store, room := newTestRoom(t)
	poll, err := store.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b"}, -1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	if _, err := store.SubmitAnswer(context.Background(), "ABC123", poll.ID, uuid.New(), 0); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("unknown room err = %v, want ErrRoomNotFound", err)
	}
	if _, err := store.SubmitAnswer(context.Background(), room.Code, uuid.New(), uuid.New(), 0); !errors.Is(err, ErrPollNotFound) {
		t.Errorf("unknown poll err = %v, want ErrPollNotFound", err)
	}

	// The Ended check happens at submit time, not when the caller last read
	// the room.
	if err := reg.EndRoom(context.Background(), room.Code); err != nil {
		t.Fatalf("EndRoom failed: %v", err)
	}
	if _, err := store.SubmitAnswer(context.Background(), room.Code, poll.ID, uuid.New(), 0); !errors.Is(err, ErrRoomEnded) {
		t.Errorf("ended room err = %v, want ErrRoomEnded", err)
	}
}

func TestSubmitAnswerOutOfRangeStored(t *testing.T) {
	reg, store, room := newTestRoom(t)
	poll, err := store.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b"}, -1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	count, err := store.SubmitAnswer(context.Background(), room.Code, poll.ID, uuid.New(), 99)
	if err != nil {
		t.Fatalf("out-of-range submit should be stored, got %v", err)
	}
	if count != 1 {
		t.Errorf("answer count = %d, want 1", count)
	}

	got, err := reg.GetByCode(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.Polls[0].Answers[0].AnswerIndex != 99 {
		t.Errorf("stored index = %d, want 99", got.Polls[0].Answers[0].AnswerIndex)
	}
}

func TestSubmitAnswerNoDedup(t *testing.T) {
	_, store, room := newTestRoom(t)
	poll, err := store.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b"}, -1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		if _, err := store.SubmitAnswer(context.Background(), room.Code, poll.ID, userID, i%2); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	count, err := store.SubmitAnswer(context.Background(), room.Code, poll.ID, userID, 0)
	if err != nil {
		t.Fatalf("final submit failed: %v", err)
	}
	if count != 4 {
		t.Errorf("answer count = %d, want 4 (no dedup by user)", count)
	}
}

// Concurrent submissions against the same poll must each land as a distinct
// append with none lost.
func TestConcurrentSubmitAnswers(t *testing.T) {
	reg, store, room := newTestRoom(t)
	poll, err := store.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b", "c"}, -1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	const submitters = 50
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.SubmitAnswer(context.Background(), room.Code, poll.ID, uuid.New(), n%3); err == nil {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != submitters {
		t.Fatalf("successes = %d, want %d", successes.Load(), submitters)
	}
	got, err := reg.GetByCode(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if len(got.Polls[0].Answers) != submitters {
		t.Errorf("stored answers = %d, want %d", len(got.Polls[0].Answers), submitters)
	}
}

// A submit racing EndRoom must either succeed cleanly or fail with
// ErrRoomEnded; the stored answers must equal the successes exactly.
func TestConcurrentEndRoomAndSubmit(t *testing.T) {
	reg, store, room := newTestRoom(t)
	poll, err := store.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b"}, -1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	const submitters = 40
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SubmitAnswer(context.Background(), room.Code, poll.ID, uuid.New(), 0)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrRoomEnded):
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reg.EndRoom(context.Background(), room.Code); err != nil {
			t.Errorf("EndRoom failed: %v", err)
		}
	}()
	wg.Wait()

	got, err := reg.GetByCode(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if len(got.Polls[0].Answers) != int(successes.Load()) {
		t.Errorf("stored answers = %d, want %d successful submits", len(got.Polls[0].Answers), successes.Load())
	}
}

// Poll order is the order creations pass the Ended check.
func TestPollAppendOrder(t *testing.T) {
	reg, store, room := newTestRoom(t)
	questions := []string{"first", "second", "third"}
	for _, q := range questions {
		if _, err := store.CreatePoll(context.Background(), room.Code, q, []string{"a", "b"}, -1, 0); err != nil {
			t.Fatalf("CreatePoll %q failed: %v", q, err)
		}
	}
	got, err := reg.GetByCode(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	for i, q := range questions {
		if got.Polls[i].Question != q {
			t.Errorf("poll[%d] = %q, want %q", i, got.Polls[i].Question, q)
		}
	}
}
