package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/results"
	"github.com/classpulse/backend/internal/rooms"
)

type emitted struct {
	roomCode string
	event    string
	payload  interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeHub) PublishToRoom(roomCode, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{roomCode: roomCode, event: event, payload: payload})
}

func (f *fakeHub) byEvent(event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeReports struct {
	mu    sync.Mutex
	codes []string
}

func (f *fakeReports) EnqueueResultsReport(ctx context.Context, roomCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, roomCode)
	return nil
}

type staticResolver map[uuid.UUID]string

func (r staticResolver) ResolveDisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	for _, id := range ids {
		if name, ok := r[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func newTestSession(resolver staticResolver) (*Session, *fakeHub, *fakeReports) {
	registry := rooms.NewRegistry(nil, nil)
	polls := rooms.NewPollStore(registry, nil)
	agg := results.NewAggregator(registry, resolver, nil)
	hub := &fakeHub{}
	reports := &fakeReports{}
	return New(registry, polls, agg, hub, reports, nil), hub, reports
}

func TestCreatePollBroadcastsAfterMutation(t *testing.T) {
	sess, hub, _ := newTestSession(nil)
	room, err := sess.CreateRoom(context.Background(), "Math", uuid.New())
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	poll, err := sess.CreatePoll(context.Background(), room.Code, "2+2?", []string{"3", "4"}, 1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	events := hub.byEvent(realtime.EventNewPoll)
	if len(events) != 1 {
		t.Fatalf("new-poll broadcasts = %d, want 1", len(events))
	}
	if events[0].roomCode != room.Code {
		t.Errorf("broadcast room = %q, want %q", events[0].roomCode, room.Code)
	}
	// The payload is the full poll.
	got, ok := events[0].payload.(*models.Poll)
	if !ok || got.ID != poll.ID {
		t.Errorf("broadcast payload = %#v, want poll %s", events[0].payload, poll.ID)
	}

	// A client reacting to the broadcast by querying state sees the poll.
	snap, err := sess.GetRoomByCode(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("GetRoomByCode failed: %v", err)
	}
	if len(snap.Polls) != 1 {
		t.Errorf("room polls = %d, want 1", len(snap.Polls))
	}
}

func TestSubmitAnswerBroadcastsPollUpdated(t *testing.T) {
	sess, hub, _ := newTestSession(nil)
	room, _ := sess.CreateRoom(context.Background(), "Math", uuid.New())
	poll, err := sess.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b"}, -1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}

	if err := sess.SubmitAnswer(context.Background(), room.Code, poll.ID, uuid.New(), 0); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}

	events := hub.byEvent(realtime.EventPollUpdated)
	if len(events) != 1 {
		t.Fatalf("poll-updated broadcasts = %d, want 1", len(events))
	}
	payload := events[0].payload.(map[string]interface{})
	if payload["answer_count"] != 1 {
		t.Errorf("answer_count = %v, want 1", payload["answer_count"])
	}
}

func TestSubmitAnswerFailureDoesNotBroadcast(t *testing.T) {
	sess, hub, _ := newTestSession(nil)
	room, _ := sess.CreateRoom(context.Background(), "Math", uuid.New())

	err := sess.SubmitAnswer(context.Background(), room.Code, uuid.New(), uuid.New(), 0)
	if !errors.Is(err, rooms.ErrPollNotFound) {
		t.Fatalf("err = %v, want ErrPollNotFound", err)
	}
	if events := hub.byEvent(realtime.EventPollUpdated); len(events) != 0 {
		t.Errorf("broadcasts after failed submit = %d, want 0", len(events))
	}
}

func TestEndRoomBroadcastsAndEnqueuesOnce(t *testing.T) {
	sess, hub, reports := newTestSession(nil)
	room, _ := sess.CreateRoom(context.Background(), "Math", uuid.New())

	if err := sess.EndRoom(context.Background(), room.Code); err != nil {
		t.Fatalf("EndRoom failed: %v", err)
	}
	if err := sess.EndRoom(context.Background(), room.Code); !errors.Is(err, rooms.ErrRoomEnded) {
		t.Errorf("second EndRoom err = %v, want ErrRoomEnded", err)
	}

	if events := hub.byEvent(realtime.EventRoomEnded); len(events) != 1 {
		t.Errorf("room-ended broadcasts = %d, want 1 (failed end must not broadcast)", len(events))
	}
	if len(reports.codes) != 1 || reports.codes[0] != room.Code {
		t.Errorf("enqueued reports = %v, want [%s]", reports.codes, room.Code)
	}
}

// Full lifecycle: create room, push a poll, two students answer, aggregate.
func TestEndToEndScenario(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	sess, _, _ := newTestSession(staticResolver{alice: "Alice", bob: "Bob"})

	room, err := sess.CreateRoom(context.Background(), "Math", uuid.New())
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	poll, err := sess.CreatePoll(context.Background(), room.Code, "2+2?", []string{"A", "B", "C"}, -1, 0)
	if err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}
	if err := sess.SubmitAnswer(context.Background(), room.Code, poll.ID, alice, 0); err != nil {
		t.Fatalf("alice submit failed: %v", err)
	}
	if err := sess.SubmitAnswer(context.Background(), room.Code, poll.ID, bob, 1); err != nil {
		t.Fatalf("bob submit failed: %v", err)
	}

	res, err := sess.GetResults(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	byOption := res["2+2?"]
	if byOption["A"].Count != 1 || byOption["B"].Count != 1 || byOption["C"].Count != 0 {
		t.Errorf("counts = A:%d B:%d C:%d, want 1/1/0",
			byOption["A"].Count, byOption["B"].Count, byOption["C"].Count)
	}
	if byOption["A"].Users[0] != "Alice" || byOption["B"].Users[0] != "Bob" {
		t.Errorf("users = A:%v B:%v, want Alice/Bob", byOption["A"].Users, byOption["B"].Users)
	}
}

func TestCreatePollAfterEndRoomFails(t *testing.T) {
	sess, _, _ := newTestSession(nil)
	room, err := sess.CreateRoom(context.Background(), "Math", uuid.New())
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if err := sess.EndRoom(context.Background(), room.Code); err != nil {
		t.Fatalf("EndRoom failed: %v", err)
	}
	if _, err := sess.CreatePoll(context.Background(), room.Code, "q", []string{"a", "b"}, -1, 0); !errors.Is(err, rooms.ErrRoomEnded) {
		t.Errorf("CreatePoll after end err = %v, want ErrRoomEnded", err)
	}
}
