package session

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/rooms"
	"github.com/classpulse/backend/pkg/response"
)

// CreateRoomRequest is the body for POST /rooms.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreatePollRequest is the body for POST /rooms/:code/polls.
type CreatePollRequest struct {
	Question      string   `json:"question" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2"`
	CorrectOption *int     `json:"correct_option"`
	TimerSec      int      `json:"timer_sec"`
}

// SubmitAnswerRequest is the body for POST /rooms/:code/polls/:pollId/answers.
type SubmitAnswerRequest struct {
	AnswerIndex *int `json:"answer_index" binding:"required"`
}

// Handler exposes the room lifecycle over HTTP.
type Handler struct {
	svc *Session
}

// NewHandler creates a session handler.
func NewHandler(svc *Session) *Handler {
	return &Handler{svc: svc}
}

// CreateRoom handles POST /rooms (teacher).
func (h *Handler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	room, err := h.svc.CreateRoom(c.Request.Context(), req.Name, teacherID)
	if err != nil {
		response.Internal(c, "failed to create room")
		return
	}
	response.Created(c, room)
}

// GetRoom handles GET /rooms/:code.
func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.svc.GetRoomByCode(c.Request.Context(), roomCode(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, room)
}

// EndRoom handles POST /rooms/:code/end (owning teacher).
func (h *Handler) EndRoom(c *gin.Context) {
	code := roomCode(c)
	if !h.requireOwner(c, code) {
		return
	}
	if err := h.svc.EndRoom(c.Request.Context(), code); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"code": code, "ended": true})
}

// CreatePoll handles POST /rooms/:code/polls (owning teacher).
func (h *Handler) CreatePoll(c *gin.Context) {
	code := roomCode(c)
	if !h.requireOwner(c, code) {
		return
	}
	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	correct := -1
	if req.CorrectOption != nil {
		correct = *req.CorrectOption
	}
	poll, err := h.svc.CreatePoll(c.Request.Context(), code, req.Question, req.Options, correct, req.TimerSec)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, poll)
}

// SubmitAnswer handles POST /rooms/:code/polls/:pollId/answers.
func (h *Handler) SubmitAnswer(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("pollId"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.svc.SubmitAnswer(c.Request.Context(), roomCode(c), pollID, userID, *req.AnswerIndex); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"poll_id": pollID, "answer_index": *req.AnswerIndex})
}

// GetResults handles GET /rooms/:code/results.
func (h *Handler) GetResults(c *gin.Context) {
	res, err := h.svc.GetResults(c.Request.Context(), roomCode(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, res)
}

// requireOwner ensures the caller is the teacher who opened the room.
func (h *Handler) requireOwner(c *gin.Context, code string) bool {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	room, err := h.svc.GetRoomByCode(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return false
	}
	if room.TeacherID != userID {
		response.Forbidden(c, "only the room's teacher can do this")
		return false
	}
	return true
}

func roomCode(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("code")))
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrPollNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, rooms.ErrRoomEnded):
		response.Conflict(c, err.Error())
	case errors.Is(err, rooms.ErrInvalidPoll):
		response.BadRequest(c, err.Error())
	default:
		response.Internal(c, "internal error")
	}
}
