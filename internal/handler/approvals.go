package handler

import (
	"fmt"
	"net/http"

	"github.com/aman-churiwal/chat-admission/internal/admission"
	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ApprovalHandler struct {
	approvals *admission.Approvals
}

func NewApprovalHandler(approvals *admission.Approvals) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// Handles GET /api/communities/:id/pending
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	pending, err := h.approvals.ListPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}

// Handles GET /api/requests/:id
func (h *ApprovalHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	record, err := h.approvals.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Handles POST /api/approvals/:id
func (h *ApprovalHandler) Decide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	var req struct {
		Decision string `json:"decision" binding:"required"`
		// Manual reply text, or the rejection reason
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reviewerID := c.GetString("user_id")
	record, err := h.approvals.Decide(c.Request.Context(), id, reviewerID, models.Decision(req.Decision), req.Text)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, record)
	case record != nil && apperrors.IsBackend(err):
		// The decision stands; the record ended in error
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "record": record})
	case record != nil:
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "record": record})
	default:
		respondError(c, fmt.Errorf("decide %s: %w", id, err))
	}
}
