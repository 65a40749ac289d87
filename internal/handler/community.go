package handler

import (
	"net/http"
	"strconv"

	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/service"
	"github.com/gin-gonic/gin"
)

type CommunityHandler struct {
	service   *service.CommunityService
	ledger    *ledger.Ledger
	analytics *service.AnalyticsService
}

func NewCommunityHandler(service *service.CommunityService, ledger *ledger.Ledger, analytics *service.AnalyticsService) *CommunityHandler {
	return &CommunityHandler{service: service, ledger: ledger, analytics: analytics}
}

// Handles GET /api/communities
func (h *CommunityHandler) List(c *gin.Context) {
	configs, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

// Handles GET /api/communities/:id/config
func (h *CommunityHandler) GetConfig(c *gin.Context) {
	cfg, err := h.service.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Handles PUT /api/communities/:id/config
func (h *CommunityHandler) UpdateConfig(c *gin.Context) {
	var patch service.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.service.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Handles GET /api/communities/:id/operators
func (h *CommunityHandler) ListOperators(c *gin.Context) {
	ops, err := h.service.ListOperators(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ops)
}

// Handles POST /api/communities/:id/operators
func (h *CommunityHandler) AddOperator(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Role   string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.service.AddOperator(c.Request.Context(), c.Param("id"), req.UserID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

// Handles DELETE /api/communities/:id/operators/:user
func (h *CommunityHandler) RemoveOperator(c *gin.Context) {
	if err := h.service.RemoveOperator(c.Request.Context(), c.Param("id"), c.Param("user")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Operator removed"})
}

// Handles GET /api/communities/:id/usage?user_id=&day=
func (h *CommunityHandler) Usage(c *gin.Context) {
	communityID := c.Param("id")
	day := c.Query("day")

	if userID := c.Query("user_id"); userID != "" {
		usage, err := h.ledger.GetUsage(c.Request.Context(), communityID, userID, day)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, usage)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	top, err := h.analytics.TopUsers(c.Request.Context(), communityID, day, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": dayOrToday(h.ledger, day), "top_users": top})
}

func dayOrToday(l *ledger.Ledger, day string) string {
	if day == "" {
		return l.Today()
	}
	return day
}
