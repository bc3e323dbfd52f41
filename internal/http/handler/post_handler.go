package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"postflow/internal/service"

	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	svc *service.PostService
}

func NewPostHandler(svc *service.PostService) *PostHandler {
	return &PostHandler{svc: svc}
}

type schedulePostRequest struct {
	OwnerID      int64     `json:"owner_id" binding:"required"`
	Title        string    `json:"title" binding:"required"`
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

// POST /api/v1/posts
func (h *PostHandler) SchedulePost(c *gin.Context) {
	var req schedulePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	post, err := h.svc.SchedulePost(c.Request.Context(), req.OwnerID, req.Title, req.ScheduledFor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "schedule post failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// GET /api/v1/posts/:id
func (h *PostHandler) GetPost(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	post, err := h.svc.GetPost(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

type reschedulePostRequest struct {
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

// POST /api/v1/posts/:id/reschedule
func (h *PostHandler) ReschedulePost(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req reschedulePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := h.svc.ReschedulePost(c.Request.Context(), id, req.ScheduledFor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reschedule failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

type setPreferenceRequest struct {
	Enabled *bool           `json:"enabled"`
	Times   json.RawMessage `json:"times" binding:"required"`
}

// PUT /api/v1/owners/:id/preference
func (h *PostHandler) SetPreference(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner id"})
		return
	}
	var req setPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.svc.SetPreference(c.Request.Context(), ownerID, enabled, req.Times); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "enabled": enabled})
}
