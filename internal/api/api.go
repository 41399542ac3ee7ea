// Package api exposes the REST surface of the gateway: outbound sends,
// message history, contacts, templates, button configuration and the ERP
// workflow triggers.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/actions"
	"erp-whatsapp-bridge/internal/config"
	"erp-whatsapp-bridge/internal/sender"
	"erp-whatsapp-bridge/internal/store"
	"erp-whatsapp-bridge/internal/whatsapp"
	"erp-whatsapp-bridge/internal/workflow"
)

type Handler struct {
	cfg        *config.Config
	store      *store.Store
	sender     *sender.Sender
	client     *whatsapp.Client
	dispatcher *actions.Dispatcher
	workflow   *workflow.Service
}

func NewHandler(cfg *config.Config, st *store.Store, snd *sender.Sender, client *whatsapp.Client, dispatcher *actions.Dispatcher, wf *workflow.Service) *Handler {
	return &Handler{
		cfg:        cfg,
		store:      st,
		sender:     snd,
		client:     client,
		dispatcher: dispatcher,
		workflow:   wf,
	}
}

// RegisterRoutes mounts all API endpoints under the given group.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	send := api.Group("/send")
	{
		send.POST("/text", h.SendText)
		send.POST("/template", h.SendTemplate)
		send.POST("/interactive", h.SendInteractive)
		send.POST("/media", h.SendMedia)
		send.POST("/location", h.SendLocation)
	}

	api.GET("/messages", h.ListMessages)
	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:id/messages", h.ConversationMessages)

	api.GET("/contacts", h.ListContacts)
	api.POST("/contacts", h.CreateContact)
	api.GET("/contacts/:id", h.GetContact)
	api.PUT("/contacts/:id", h.UpdateContact)
	api.DELETE("/contacts/:id", h.DeleteContact)

	api.GET("/templates", h.ListTemplates)
	api.POST("/templates/sync", h.SyncTemplates)

	api.GET("/actions", h.ListButtonActions)
	api.POST("/actions", h.CreateButtonAction)
	api.PUT("/actions/:id", h.UpdateButtonAction)
	api.DELETE("/actions/:id", h.DeleteButtonAction)

	api.GET("/scenarios", h.ListScenarios)
	api.POST("/scenarios", h.CreateScenario)
	api.POST("/scenarios/:id/send", h.SendScenario)
	api.DELETE("/scenarios/:id", h.DeleteScenario)

	api.POST("/invoices", h.RegisterInvoice)
	api.POST("/invoices/:id/notify", h.NotifyInvoice)
	api.POST("/invoices/:id/payment", h.RecordInvoicePayment)
	api.POST("/orders", h.RegisterOrder)
	api.POST("/orders/:id/notify", h.NotifyOrder)
	api.POST("/reminders/run", h.RunReminders)
	api.GET("/notifications", h.ListNotifications)

	api.GET("/health", h.Health)
}

// respondSendError maps send failures onto HTTP: caller mistakes are 400,
// provider rejections are 502 so ERP callers can tell them apart.
func respondSendError(c *gin.Context, err error) {
	var verr *sender.ValidationError
	var perr *sender.ProviderError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{"error": perr.Reason})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) Health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if err := h.client.VerifyConnection(); err != nil {
		status["status"] = "degraded"
		status["whatsapp"] = err.Error()
		c.JSON(http.StatusOK, status)
		return
	}
	status["whatsapp"] = "connected"
	c.JSON(http.StatusOK, status)
}
