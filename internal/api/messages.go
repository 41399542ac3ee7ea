package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/models"
)

// ListMessages returns recent messages, newest first. Optional filters:
// phone, direction, status, conversation_id, limit (default 50, max 500).
func (h *Handler) ListMessages(c *gin.Context) {
	query := h.store.DB().Model(&models.Message{}).Order("created_at DESC")

	if phone := c.Query("phone"); phone != "" {
		query = query.Where("phone = ?", phone)
	}
	if direction := c.Query("direction"); direction != "" {
		query = query.Where("direction = ?", direction)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if convID := c.Query("conversation_id"); convID != "" {
		query = query.Where("conversation_id = ?", convID)
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	var messages []models.Message
	if err := query.Limit(limit).Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

func (h *Handler) ListConversations(c *gin.Context) {
	var conversations []models.Conversation
	if err := h.store.DB().Order("updated_at DESC").Find(&conversations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *Handler) ConversationMessages(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var messages []models.Message
	if err := h.store.DB().Where("conversation_id = ?", id).Order("created_at").Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}
