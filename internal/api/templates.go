package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/models"
)

func (h *Handler) ListTemplates(c *gin.Context) {
	var templates []models.Template
	if err := h.store.DB().Order("wa_name").Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// SyncTemplates pulls the template list from the business account and
// upserts the local cache, so sends can warn about unapproved templates.
func (h *Handler) SyncTemplates(c *gin.Context) {
	remote, err := h.client.FetchTemplates()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	synced := 0
	for _, tmpl := range remote {
		err := h.store.UpsertTemplate(models.Template{
			Name:         tmpl.Name,
			WaName:       tmpl.Name,
			LanguageCode: tmpl.Language,
			Category:     tmpl.Category,
			Status:       tmpl.Status,
			Components:   string(tmpl.Components),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		synced++
	}
	c.JSON(http.StatusOK, gin.H{"synced": synced})
}
