package models

import (
	"time"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Internal message lifecycle statuses. They form a one-way lattice
// received/sent -> delivered -> read, with "error" absorbing from any state.
const (
	StatusReceived  = "received"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusError     = "error"
)

// Message is one row of the append-only message log. Rows are never deleted;
// only the status fields and the conversation/contact links are updated after
// creation.
type Message struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Direction      string `gorm:"type:varchar(3);not null;index" json:"direction"`
	WaMessageID    string `gorm:"type:varchar(255);index" json:"wa_message_id"`
	ConversationID *uint  `gorm:"index" json:"conversation_id"`
	ContactID      *uint  `gorm:"index" json:"contact_id"`
	ContactName    string `gorm:"type:varchar(255)" json:"contact_name"`
	Phone          string `gorm:"type:varchar(50);index" json:"phone"`
	Content        string `gorm:"type:text" json:"content"`
	MessageType    string `gorm:"type:varchar(20);default:'text'" json:"message_type"`
	Status         string `gorm:"type:varchar(20);default:'received'" json:"status"`
	WaStatus       string `gorm:"type:text" json:"wa_status"`

	MediaID       string `gorm:"type:varchar(255)" json:"media_id"`
	MediaURL      string `gorm:"type:text" json:"media_url"`
	MediaMimeType string `gorm:"type:varchar(100)" json:"media_mime_type"`
	Caption       string `gorm:"type:text" json:"caption"`

	TemplateName       string `gorm:"type:varchar(255)" json:"template_name"`
	TemplateLanguage   string `gorm:"type:varchar(20)" json:"template_language"`
	TemplateComponents string `gorm:"type:text" json:"template_components"`

	RawPayload  string `gorm:"type:text" json:"raw_payload"`
	RawResponse string `gorm:"type:text" json:"raw_response"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Conversation groups messages by (phone, contact) for display purposes.
// Deleting a conversation must not delete its messages, the FK is set-null.
type Conversation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Phone       string    `gorm:"type:varchar(50);index" json:"phone"`
	ContactID   *uint     `gorm:"index" json:"contact_id"`
	ContactName string    `gorm:"type:varchar(255)" json:"contact_name"`
	Messages    []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:SET NULL;" json:"messages,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Contact is the external identity a message may be linked to. The link is
// best-effort: messages with no matching contact keep a null contact_id.
type Contact struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"type:varchar(255)" json:"name"`
	Phone          string    `gorm:"type:varchar(50);index" json:"phone"`
	Mobile         string    `gorm:"type:varchar(50)" json:"mobile"`
	Tags           string    `gorm:"type:text" json:"tags"`
	WhatsappStatus string    `gorm:"type:varchar(50)" json:"whatsapp_status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Template mirrors an approved Meta message template so sends can be
// pre-validated before the provider rejects them.
type Template struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	WaName       string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"wa_name"`
	LanguageCode string    `gorm:"type:varchar(20);default:'fr'" json:"language_code"`
	Category     string    `gorm:"type:varchar(50);default:'UNKNOWN'" json:"category"`
	Status       string    `gorm:"type:varchar(50);default:'UNKNOWN'" json:"status"`
	Components   string    `gorm:"type:text" json:"components"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

// ButtonAction action types. "handler" runs a function registered in the
// dispatcher's handler registry; there is no free-form code execution.
const (
	ActionSendMessage   = "send_message"
	ActionUpdateContact = "update_contact"
	ActionCreateTicket  = "create_ticket"
	ActionHandler       = "handler"
)

// ButtonAction maps a button/list reply id (exact, or a stable prefix before
// a dynamic entity-id suffix) to a configured side effect.
type ButtonAction struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"type:varchar(255);not null" json:"name"`
	ButtonID      string `gorm:"type:varchar(255);not null;index" json:"button_id"`
	ActionType    string `gorm:"type:varchar(50);not null;default:'send_message'" json:"action_type"`
	MessageToSend string `gorm:"type:text" json:"message_to_send"`
	ContactField  string `gorm:"type:varchar(100)" json:"contact_field"`
	ContactValue  string `gorm:"type:varchar(255)" json:"contact_value"`
	HandlerName   string `gorm:"type:varchar(100)" json:"handler_name"`
	Active        bool   `gorm:"default:true" json:"active"`
	Sequence      int    `gorm:"default:10" json:"sequence"`
	Description   string `gorm:"type:text" json:"description"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ButtonAction) TableName() string {
	return "button_actions"
}

// Scenario is an interactive message with up to three reply buttons and a
// canned response (or a follow-up scenario) per button.
type Scenario struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	Name           string           `gorm:"type:varchar(255);not null" json:"name"`
	Active         bool             `gorm:"default:true" json:"active"`
	Sequence       int              `gorm:"default:10" json:"sequence"`
	Description    string           `gorm:"type:text" json:"description"`
	InitialMessage string           `gorm:"type:text;not null" json:"initial_message"`
	Buttons        []ScenarioButton `gorm:"foreignKey:ScenarioID;constraint:OnDelete:CASCADE;" json:"buttons"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Scenario) TableName() string {
	return "scenarios"
}

type ScenarioButton struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ScenarioID     uint   `gorm:"index;not null" json:"scenario_id"`
	ButtonID       string `gorm:"type:varchar(255);not null" json:"button_id"`
	Title          string `gorm:"type:varchar(20);not null" json:"title"`
	Response       string `gorm:"type:text" json:"response"`
	NextScenarioID *uint  `json:"next_scenario_id"`
}

func (ScenarioButton) TableName() string {
	return "scenario_buttons"
}

// Ticket is a minimal support ticket created by the create_ticket action.
type Ticket struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	ContactID   *uint     `gorm:"index" json:"contact_id"`
	Phone       string    `gorm:"type:varchar(50)" json:"phone"`
	Description string    `gorm:"type:text" json:"description"`
	Status      string    `gorm:"type:varchar(20);default:'new'" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// NotificationLedger is an append-only record of every workflow notification
// attempt, keyed by uuid so batch runs can be audited per item.
type NotificationLedger struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	EntityType string    `gorm:"type:varchar(50);index:idx_ledger_entity" json:"entity_type"`
	EntityID   uint      `gorm:"index:idx_ledger_entity" json:"entity_id"`
	Trigger    string    `gorm:"type:varchar(50)" json:"trigger"`
	Success    bool      `json:"success"`
	Error      string    `gorm:"type:text" json:"error"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (NotificationLedger) TableName() string {
	return "notification_ledger"
}

// Invoice mirrors the ERP invoice fields the notification workflows need,
// including the sent-flag/timestamp pairs used as idempotency guards.
type Invoice struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Number         string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"number"`
	ContactID      *uint      `gorm:"index" json:"contact_id"`
	AmountTotal    float64    `json:"amount_total"`
	AmountResidual float64    `json:"amount_residual"`
	InvoiceDate    *time.Time `json:"invoice_date"`
	DueDate        *time.Time `json:"due_date"`
	State          string     `gorm:"type:varchar(20);default:'draft'" json:"state"`
	PaymentState   string     `gorm:"type:varchar(20);default:'not_paid'" json:"payment_state"`
	PDFURL         string     `gorm:"type:text" json:"pdf_url"`

	WhatsappInvoiceSent      bool       `gorm:"default:false" json:"whatsapp_invoice_sent"`
	WhatsappInvoiceSentAt    *time.Time `json:"whatsapp_invoice_sent_at"`
	WhatsappResidualSent     bool       `gorm:"default:false" json:"whatsapp_residual_sent"`
	WhatsappResidualSentAt   *time.Time `json:"whatsapp_residual_sent_at"`
	WhatsappValidationSent   bool       `gorm:"default:false" json:"whatsapp_validation_sent"`
	WhatsappValidationSentAt *time.Time `json:"whatsapp_validation_sent_at"`
	WhatsappValidated        bool       `gorm:"default:false" json:"whatsapp_validated"`
	WhatsappRejected         bool       `gorm:"default:false" json:"whatsapp_rejected"`
	UnpaidReminderSent       bool       `gorm:"default:false" json:"unpaid_reminder_sent"`
	UnpaidReminderSentAt     *time.Time `json:"unpaid_reminder_sent_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// SaleOrder mirrors the ERP sale order fields used by order notifications.
type SaleOrder struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Number      string  `gorm:"type:varchar(100);not null;uniqueIndex" json:"number"`
	ContactID   *uint   `gorm:"index" json:"contact_id"`
	AmountTotal float64 `json:"amount_total"`
	Details     string  `gorm:"type:text" json:"details"`
	State       string  `gorm:"type:varchar(20);default:'draft'" json:"state"`

	WhatsappCreationSent   bool       `gorm:"default:false" json:"whatsapp_creation_sent"`
	WhatsappCreationSentAt *time.Time `json:"whatsapp_creation_sent_at"`
	WhatsappStateSent      bool       `gorm:"default:false" json:"whatsapp_state_sent"`
	WhatsappStateSentAt    *time.Time `json:"whatsapp_state_sent_at"`
	WhatsappDetailsSent    bool       `gorm:"default:false" json:"whatsapp_details_sent"`
	WhatsappDetailsSentAt  *time.Time `json:"whatsapp_details_sent_at"`
	WhatsappValidated      bool       `gorm:"default:false" json:"whatsapp_validated"`
	WhatsappRejected       bool       `gorm:"default:false" json:"whatsapp_rejected"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SaleOrder) TableName() string {
	return "sale_orders"
}

// SystemSetting mirrors selected config keys into the database so a stored
// value survives restarts and overrides the environment.
type SystemSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
