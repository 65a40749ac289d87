package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/records"
	"github.com/aman-churiwal/chat-admission/internal/service"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	service *service.AnalyticsService
}

func NewAnalyticsHandler(service *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Handles GET /api/communities/:id/analytics
func (h *AnalyticsHandler) GetSummary(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Handles GET /api/communities/:id/analytics/hourly
func (h *AnalyticsHandler) GetTimeSeries(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeSeriesData, err := h.service.GetTimeSeriesData(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, timeSeriesData)
}

// Handles GET /api/communities/:id/history
func (h *AnalyticsHandler) GetHistory(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, offset := parsePage(c)

	q := records.Query{
		CommunityID: c.Param("id"),
		UserID:      c.Query("user_id"),
		Status:      models.RecordStatus(c.Query("status")),
		Kind:        models.CommandKind(c.Query("kind")),
		From:        from,
		To:          to,
		Limit:       limit,
		Offset:      offset,
	}

	history, err := h.service.GetHistory(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": history,
		"limit":   q.PageSize(),
		"offset":  offset,
	})
}

// Handles GET /api/communities/:id/rejections
func (h *AnalyticsHandler) GetRejections(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, offset := parsePage(c)

	entries, err := h.service.GetRejections(c.Request.Context(), c.Param("id"), from, to, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rejections": entries,
		"limit":      limit,
		"offset":     offset,
	})
}

func parsePage(c *gin.Context) (int, int) {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

// Parses 'from' and 'to' query parameters
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	// Default: last 24 hours
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := parseTime(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}

	if toStr := c.Query("to"); toStr != "" {
		parsed, err := parseTime(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}

	return from, to, nil
}

// RFC 3339 or Unix seconds
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	if timestamp, convErr := strconv.ParseInt(s, 10, 64); convErr == nil {
		return time.Unix(timestamp, 0).UTC(), nil
	}
	return time.Time{}, err
}
