package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/models"
)

type invoiceRequest struct {
	Number         string  `json:"number" binding:"required"`
	ContactID      uint    `json:"contact_id" binding:"required"`
	AmountTotal    float64 `json:"amount_total" binding:"required"`
	AmountResidual float64 `json:"amount_residual"`
	InvoiceDate    string  `json:"invoice_date"`
	DueDate        string  `json:"due_date"`
	State          string  `json:"state"`
	PaymentState   string  `json:"payment_state"`
	PDFURL         string  `json:"pdf_url"`
}

// RegisterInvoice records an ERP invoice. Posted invoices are notified
// immediately when auto-send is on; the response carries the notification
// outcome so the ERP can surface it.
func (h *Handler) RegisterInvoice(c *gin.Context) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv := models.Invoice{
		Number:         req.Number,
		ContactID:      &req.ContactID,
		AmountTotal:    req.AmountTotal,
		AmountResidual: req.AmountResidual,
		State:          req.State,
		PaymentState:   req.PaymentState,
		PDFURL:         req.PDFURL,
	}
	if inv.State == "" {
		inv.State = "draft"
	}
	if inv.PaymentState == "" {
		inv.PaymentState = "not_paid"
	}
	if inv.AmountResidual == 0 && inv.PaymentState == "not_paid" {
		inv.AmountResidual = inv.AmountTotal
	}
	if req.InvoiceDate != "" {
		if parsed, err := time.Parse("2006-01-02", req.InvoiceDate); err == nil {
			inv.InvoiceDate = &parsed
		}
	}
	if req.DueDate != "" {
		if parsed, err := time.Parse("2006-01-02", req.DueDate); err == nil {
			inv.DueDate = &parsed
		}
	}

	if err := h.store.DB().Create(&inv).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"invoice": inv}
	if h.cfg.AutoSendInvoices && inv.State == "posted" {
		if err := h.workflow.NotifyInvoicePosted(inv.ID); err != nil {
			response["notification_error"] = err.Error()
		} else {
			response["notified"] = true
		}
	}
	c.JSON(http.StatusCreated, response)
}

func (h *Handler) NotifyInvoice(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}
	if err := h.workflow.NotifyInvoicePosted(uint(id)); err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notified": true})
}

type paymentRequest struct {
	AmountResidual float64 `json:"amount_residual"`
	PaymentState   string  `json:"payment_state"`
}

// RecordInvoicePayment updates the open amount and triggers the payment
// confirmation when it dropped.
func (h *Handler) RecordInvoicePayment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var inv models.Invoice
	if err := h.store.DB().First(&inv, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}

	oldResidual := inv.AmountResidual
	inv.AmountResidual = req.AmountResidual
	if req.PaymentState != "" {
		inv.PaymentState = req.PaymentState
	}
	if err := h.store.DB().Save(&inv).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"invoice": inv}
	if err := h.workflow.NotifyInvoiceResidual(inv.ID, oldResidual, req.AmountResidual); err != nil {
		response["notification_error"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

type orderRequest struct {
	Number      string  `json:"number" binding:"required"`
	ContactID   uint    `json:"contact_id" binding:"required"`
	AmountTotal float64 `json:"amount_total" binding:"required"`
	Details     string  `json:"details"`
	State       string  `json:"state"`
}

func (h *Handler) RegisterOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := models.SaleOrder{
		Number:      req.Number,
		ContactID:   &req.ContactID,
		AmountTotal: req.AmountTotal,
		Details:     req.Details,
		State:       req.State,
	}
	if order.State == "" {
		order.State = "draft"
	}
	if err := h.store.DB().Create(&order).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"order": order}
	if h.cfg.AutoSendOrders {
		if err := h.workflow.NotifyOrderCreated(order.ID); err != nil {
			response["notification_error"] = err.Error()
		} else {
			response["notified"] = true
		}
	}
	c.JSON(http.StatusCreated, response)
}

type notifyOrderRequest struct {
	State     string `json:"state"`
	InvoiceID *uint  `json:"invoice_id"`
}

// NotifyOrder updates the order state when given and sends the matching
// state notification.
func (h *Handler) NotifyOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	var req notifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.State != "" {
		if err := h.store.DB().Model(&models.SaleOrder{}).Where("id = ?", id).Update("state", req.State).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.workflow.NotifyOrderState(uint(id), req.InvoiceID); err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notified": true})
}

func (h *Handler) RunReminders(c *gin.Context) {
	summary, err := h.workflow.SendUnpaidReminders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	query := h.store.DB().Model(&models.NotificationLedger{}).Order("created_at DESC").Limit(200)
	if entityType := c.Query("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityID := c.Query("entity_id"); entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}

	var entries []models.NotificationLedger
	if err := query.Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": entries})
}
