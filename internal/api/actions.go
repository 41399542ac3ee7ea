package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/models"
)

func (h *Handler) ListButtonActions(c *gin.Context) {
	var buttonActions []models.ButtonAction
	if err := h.store.DB().Order("sequence, id").Find(&buttonActions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": buttonActions})
}

var actionTypes = map[string]bool{
	models.ActionSendMessage:   true,
	models.ActionUpdateContact: true,
	models.ActionCreateTicket:  true,
	models.ActionHandler:       true,
}

type buttonActionRequest struct {
	Name          string `json:"name" binding:"required"`
	ButtonID      string `json:"button_id" binding:"required"`
	ActionType    string `json:"action_type" binding:"required"`
	MessageToSend string `json:"message_to_send"`
	ContactField  string `json:"contact_field"`
	ContactValue  string `json:"contact_value"`
	HandlerName   string `json:"handler_name"`
	Active        *bool  `json:"active"`
	Sequence      int    `json:"sequence"`
	Description   string `json:"description"`
}

func (h *Handler) CreateButtonAction(c *gin.Context) {
	var req buttonActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !actionTypes[req.ActionType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action type " + req.ActionType})
		return
	}

	action := models.ButtonAction{
		Name:          req.Name,
		ButtonID:      req.ButtonID,
		ActionType:    req.ActionType,
		MessageToSend: req.MessageToSend,
		ContactField:  req.ContactField,
		ContactValue:  req.ContactValue,
		HandlerName:   req.HandlerName,
		Active:        true,
		Sequence:      req.Sequence,
		Description:   req.Description,
	}
	if req.Active != nil {
		action.Active = *req.Active
	}
	if err := h.store.DB().Create(&action).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, action)
}

func (h *Handler) UpdateButtonAction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return
	}

	var action models.ButtonAction
	if err := h.store.DB().First(&action, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "action not found"})
		return
	}

	var req buttonActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !actionTypes[req.ActionType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action type " + req.ActionType})
		return
	}

	action.Name = req.Name
	action.ButtonID = req.ButtonID
	action.ActionType = req.ActionType
	action.MessageToSend = req.MessageToSend
	action.ContactField = req.ContactField
	action.ContactValue = req.ContactValue
	action.HandlerName = req.HandlerName
	action.Sequence = req.Sequence
	action.Description = req.Description
	if req.Active != nil {
		action.Active = *req.Active
	}
	if err := h.store.DB().Save(&action).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, action)
}

func (h *Handler) DeleteButtonAction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return
	}
	if err := h.store.DB().Delete(&models.ButtonAction{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) ListScenarios(c *gin.Context) {
	var scenarios []models.Scenario
	if err := h.store.DB().Preload("Buttons").Order("sequence, name").Find(&scenarios).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": scenarios})
}

type scenarioButtonRequest struct {
	ButtonID       string `json:"button_id" binding:"required"`
	Title          string `json:"title" binding:"required,max=20"`
	Response       string `json:"response"`
	NextScenarioID *uint  `json:"next_scenario_id"`
}

type scenarioRequest struct {
	Name           string                  `json:"name" binding:"required"`
	InitialMessage string                  `json:"initial_message" binding:"required"`
	Description    string                  `json:"description"`
	Sequence       int                     `json:"sequence"`
	Buttons        []scenarioButtonRequest `json:"buttons" binding:"required,min=1,max=3"`
}

func (h *Handler) CreateScenario(c *gin.Context) {
	var req scenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scenario := models.Scenario{
		Name:           req.Name,
		InitialMessage: req.InitialMessage,
		Description:    req.Description,
		Sequence:       req.Sequence,
		Active:         true,
	}
	for _, b := range req.Buttons {
		scenario.Buttons = append(scenario.Buttons, models.ScenarioButton{
			ButtonID:       b.ButtonID,
			Title:          b.Title,
			Response:       b.Response,
			NextScenarioID: b.NextScenarioID,
		})
	}
	if err := h.store.DB().Create(&scenario).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, scenario)
}

type sendScenarioRequest struct {
	To string `json:"to" binding:"required"`
}

// SendScenario pushes a scenario's interactive message to a number.
func (h *Handler) SendScenario(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scenario id"})
		return
	}
	var req sendScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.dispatcher.SendScenario(uint(id), req.To); err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (h *Handler) DeleteScenario(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scenario id"})
		return
	}
	if err := h.store.DB().Select("Buttons").Delete(&models.Scenario{ID: uint(id)}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
