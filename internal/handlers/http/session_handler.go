package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pairview/internal/core/domain"
	"pairview/internal/core/ports"
	"pairview/pkg/utils"
)

// SessionHandler is the HTTP surface of the collaborator contract: the
// external scheduler pushes session records in, and the time-authorization
// UI reads the window data back out.
type SessionHandler struct {
	sessions  ports.SessionRepository
	lifecycle ports.LifecycleService
}

func NewSessionHandler(sessions ports.SessionRepository, lifecycle ports.LifecycleService) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		lifecycle: lifecycle,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine, authRequired gin.HandlerFunc) {
	api := router.Group("/api/v1")
	{
		api.GET("/sessions/:id", h.GetSession)
		api.PUT("/sessions/:id", authRequired, h.PutSession)
	}
}

// GetSession returns the record plus the derived window phase, which is
// all the before/during/after UI needs to render.
func (h *SessionHandler) GetSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))

	session, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	start, end := session.Window()
	c.JSON(http.StatusOK, gin.H{
		"session":      session,
		"phase":        session.Phase(utils.Now()).String(),
		"window_start": start.Format(time.RFC3339),
		"window_end":   end.Format(time.RFC3339),
	})
}

// PutSession upserts a session record. This is the scheduler's side of the
// contract; the id in the path doubles as the signaling room key.
func (h *SessionHandler) PutSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))

	var req struct {
		Position        string    `json:"position"`
		InterviewType   string    `json:"interview_type"`
		ScheduledStart  time.Time `json:"scheduled_start" binding:"required"`
		DurationMinutes int       `json:"duration_minutes" binding:"required,min=1,max=480"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := &domain.Session{
		ID:              id,
		Position:        req.Position,
		InterviewType:   req.InterviewType,
		ScheduledStart:  req.ScheduledStart,
		DurationMinutes: req.DurationMinutes,
		Status:          domain.StatusScheduled,
	}

	// An existing record keeps its lifecycle state; only scheduling
	// metadata is replaced.
	if current, err := h.sessions.Get(c.Request.Context(), id); err == nil {
		session.Status = current.Status
		session.StartedAt = current.StartedAt
		session.EndedAt = current.EndedAt
	}

	if err := h.sessions.Put(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}
