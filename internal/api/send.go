package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/whatsapp"
)

type sendTextRequest struct {
	To         string `json:"to" binding:"required"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}

func (h *Handler) SendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.sender.SendText(req.To, req.Message, req.PreviewURL)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": result.MessageID, "message": result.Message})
}

type sendTemplateRequest struct {
	To           string                  `json:"to" binding:"required"`
	TemplateName string                  `json:"template_name" binding:"required"`
	LanguageCode string                  `json:"language_code"`
	Components   []whatsapp.ComponentObj `json:"components"`
}

func (h *Handler) SendTemplate(c *gin.Context) {
	var req sendTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.sender.SendTemplate(req.To, req.TemplateName, req.LanguageCode, req.Components)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": result.MessageID, "message": result.Message})
}

type interactiveButton struct {
	ID    string `json:"id" binding:"required"`
	Title string `json:"title" binding:"required"`
}

type sendInteractiveRequest struct {
	To      string              `json:"to" binding:"required"`
	Message string              `json:"message" binding:"required"`
	Buttons []interactiveButton `json:"buttons" binding:"required"`
}

func (h *Handler) SendInteractive(c *gin.Context) {
	var req sendInteractiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buttons := make([]whatsapp.ButtonObj, 0, len(req.Buttons))
	for _, b := range req.Buttons {
		buttons = append(buttons, whatsapp.ButtonObj{
			Type:  "reply",
			Reply: whatsapp.ReplyObj{ID: b.ID, Title: b.Title},
		})
	}

	result, err := h.sender.SendInteractive(req.To, req.Message, buttons)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": result.MessageID, "message": result.Message})
}

type sendMediaRequest struct {
	To       string `json:"to" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	MediaID  string `json:"media_id"`
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

func (h *Handler) SendMedia(c *gin.Context) {
	var req sendMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.sender.SendMedia(req.To, req.Kind, req.MediaID, req.Link, req.Filename, req.Caption)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": result.MessageID, "message": result.Message})
}

type sendLocationRequest struct {
	To        string  `json:"to" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

func (h *Handler) SendLocation(c *gin.Context) {
	var req sendLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.sender.SendLocation(req.To, req.Latitude, req.Longitude, req.Name, req.Address)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": result.MessageID, "message": result.Message})
}
