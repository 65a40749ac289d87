package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/admission"
	"github.com/aman-churiwal/chat-admission/internal/middleware"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/gin-gonic/gin"
)

type AdmissionHandler struct {
	pipeline *admission.Pipeline
}

func NewAdmissionHandler(pipeline *admission.Pipeline) *AdmissionHandler {
	return &AdmissionHandler{pipeline: pipeline}
}

type commandRequest struct {
	CommunityID string    `json:"community_id" binding:"required"`
	ChannelID   string    `json:"channel_id" binding:"required"`
	UserID      string    `json:"user_id" binding:"required"`
	MessageID   string    `json:"message_id"`
	Kind        string    `json:"kind"`
	Content     string    `json:"content"`
	IsAdmin     bool      `json:"is_admin"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Handles POST /v1/requests. The outcome's reply has already been delivered
// to the channel; the response tells the adapter what happened.
func (h *AdmissionHandler) Submit(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if key := middleware.APIKeyFrom(c); key != nil && !key.Allows(req.CommunityID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "API key is not valid for this community"})
		return
	}

	kind := models.CommandKind(req.Kind)
	if kind == "" {
		kind = models.KindAsk
	}

	outcome, err := h.pipeline.Handle(c.Request.Context(), admission.Request{
		CommunityID: req.CommunityID,
		ChannelID:   req.ChannelID,
		UserID:      req.UserID,
		MessageID:   req.MessageID,
		Kind:        kind,
		Content:     req.Content,
		IsAdmin:     req.IsAdmin,
		ReceivedAt:  req.ReceivedAt,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "outcome": outcome})
		return
	}

	status := http.StatusOK
	if outcome.Kind == admission.OutcomeQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, outcome)
}
