package handler

import (
	"net/http"

	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/gin-gonic/gin"
)

type MessagesHandler struct {
	catalog *messages.Catalog
}

func NewMessagesHandler(catalog *messages.Catalog) *MessagesHandler {
	return &MessagesHandler{catalog: catalog}
}

// Handles GET /api/messages
func (h *MessagesHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Snapshot())
}

// Handles PUT /api/messages
func (h *MessagesHandler) Update(c *gin.Context) {
	var patch messages.Document
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.catalog.Update(patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
