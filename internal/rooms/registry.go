package rooms

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

// Store is the durable persistence collaborator, keyed by room code.
// Load returns (nil, nil) when the code is unknown.
type Store interface {
	Load(ctx context.Context, code string) (*models.Room, error)
	Save(ctx context.Context, room *models.Room) error
	AppendPoll(ctx context.Context, code string, poll *models.Poll) error
	AppendAnswer(ctx context.Context, code string, pollID uuid.UUID, answer models.PollAnswer) error
}

// roomState pairs a room with the mutex that serializes all writes to it.
// The mutex is never held across persistence I/O.
type roomState struct {
	mu   sync.Mutex
	room *models.Room
}

// snapshot returns a deep copy of the room so callers never observe a
// partially appended poll or answer.
func (s *roomState) snapshot() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRoom(s.room)
}

func copyRoom(r *models.Room) *models.Room {
	out := *r
	out.Polls = make([]*models.Poll, len(r.Polls))
	for i, p := range r.Polls {
		cp := *p
		cp.Options = append([]string(nil), p.Options...)
		cp.Answers = append([]models.PollAnswer(nil), p.Answers...)
		out.Polls[i] = &cp
	}
	return &out
}

// Registry owns room identity, join-code generation and lifecycle state.
// The in-memory map is the linearization point for every room invariant;
// the Store is written through after each mutation and consulted on cache
// miss so a restarted instance can still serve existing rooms.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*roomState
	store  Store
	logger *zap.Logger
}

// NewRegistry creates a room registry. store may be nil (memory only).
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:  make(map[string]*roomState),
		store:  store,
		logger: logger,
	}
}

// CreateRoom allocates a unique join code, stores the room as Active and
// returns it. The room is visible to lookups as soon as this returns.
func (r *Registry) CreateRoom(ctx context.Context, name string, teacherID uuid.UUID) (*models.Room, error) {
	room := &models.Room{
		Name:      name,
		TeacherID: teacherID,
		Status:    models.RoomActive,
		CreatedAt: time.Now(),
	}

	allocated := false
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		r.mu.Lock()
		if _, taken := r.rooms[code]; !taken {
			room.Code = code
			r.rooms[code] = &roomState{room: room}
			allocated = true
		}
		r.mu.Unlock()
		if allocated {
			break
		}
	}
	if !allocated {
		return nil, fmt.Errorf("allocate room code: exhausted %d attempts", maxCodeAttempts)
	}

	r.persist(ctx, room)
	r.logger.Info("room created",
		zap.String("code", room.Code),
		zap.String("teacher_id", teacherID.String()),
	)
	return copyRoom(room), nil
}

// GetByCode returns a consistent snapshot of the room, or ErrRoomNotFound.
func (r *Registry) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	state, err := r.state(ctx, code)
	if err != nil {
		return nil, err
	}
	return state.snapshot(), nil
}

// IsActive reports whether the code resolves to a room that has not ended.
// Unknown codes are inactive.
func (r *Registry) IsActive(code string) bool {
	state, err := r.state(context.Background(), code)
	if err != nil {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.room.Status == models.RoomActive
}

// EndRoom transitions Active -> Ended exactly once. Ending an already-ended
// room fails with ErrRoomEnded; the status stays Ended.
func (r *Registry) EndRoom(ctx context.Context, code string) error {
	state, err := r.state(ctx, code)
	if err != nil {
		return err
	}

	state.mu.Lock()
	if state.room.Status == models.RoomEnded {
		state.mu.Unlock()
		return ErrRoomEnded
	}
	state.room.Status = models.RoomEnded
	snap := copyRoom(state.room)
	state.mu.Unlock()

	r.persist(ctx, snap)
	r.logger.Info("room ended", zap.String("code", code))
	return nil
}

// state resolves a room's mutable state, hydrating from the store on miss.
func (r *Registry) state(ctx context.Context, code string) (*roomState, error) {
	r.mu.RLock()
	state, ok := r.rooms[code]
	r.mu.RUnlock()
	if ok {
		return state, nil
	}
	if r.store == nil {
		return nil, ErrRoomNotFound
	}

	room, err := r.store.Load(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", code, err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rooms[code]; ok {
		return existing, nil
	}
	state = &roomState{room: room}
	r.rooms[code] = state
	return state, nil
}

// persist writes a room through to the store. Memory stays authoritative;
// failures are logged, not propagated.
func (r *Registry) persist(ctx context.Context, room *models.Room) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, room); err != nil {
		r.logger.Warn("room write-through failed", zap.String("code", room.Code), zap.Error(err))
	}
}

func newRoomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
