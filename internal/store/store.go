// Package store wraps the database with the gateway's persistence
// operations: the append-only message log, the lazy conversation index,
// contact lookup and the workflow idempotency claims.
package store

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"erp-whatsapp-bridge/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only API queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// --- Message log ---

func (s *Store) CreateMessage(m *models.Message) error {
	return s.db.Create(m).Error
}

func (s *Store) SaveMessage(m *models.Message) error {
	return s.db.Save(m).Error
}

// statusRank orders the one-way status lattice. "error" is handled
// separately because it absorbs from any state.
var statusRank = map[string]int{
	models.StatusReceived:  0,
	models.StatusSent:      1,
	models.StatusDelivered: 2,
	models.StatusRead:      3,
}

var providerStatusMap = map[string]string{
	"sent":      models.StatusSent,
	"delivered": models.StatusDelivered,
	"read":      models.StatusRead,
	"failed":    models.StatusError,
	"deleted":   models.StatusError,
}

// MapProviderStatus maps a provider status keyword onto the internal
// vocabulary. Unknown keywords map to "sent" so history is never lost.
func MapProviderStatus(providerStatus string) string {
	if internal, ok := providerStatusMap[providerStatus]; ok {
		return internal
	}
	return models.StatusSent
}

// ApplyStatus updates the outbound message matching the provider message id
// with a status event. It returns (nil, false, nil) when no row matches so
// the caller can synthesize one. Transitions never move backwards on the
// lattice; failed/deleted override any non-error state, and a row already in
// error keeps it.
func (s *Store) ApplyStatus(waMessageID, providerStatus, errorPayload string) (*models.Message, bool, error) {
	var msg models.Message
	err := s.db.Where("wa_message_id = ?", waMessageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if msg.Status == models.StatusError {
		// error is terminal, late delivered/read events never resurrect it
		return &msg, true, nil
	}

	internal := MapProviderStatus(providerStatus)

	msg.WaStatus = providerStatus
	if internal == models.StatusError || statusRank[internal] > statusRank[msg.Status] {
		msg.Status = internal
	}
	if errorPayload != "" {
		msg.RawResponse = errorPayload
	}
	if providerStatus == "failed" && !strings.HasPrefix(msg.Content, "[FAILED]") {
		content := msg.Content
		if content == "" {
			content = "message not delivered"
		}
		msg.Content = "[FAILED] " + content
	}

	if err := s.db.Save(&msg).Error; err != nil {
		return nil, true, err
	}
	return &msg, true, nil
}

// --- Contact lookup ---

// FindContactByPhone looks up a contact whose phone or mobile contains the
// normalized number, retrying without the leading "+" because stored numbers
// are not guaranteed to be canonical. A miss is not an error.
func (s *Store) FindContactByPhone(phone string) (*models.Contact, error) {
	if phone == "" {
		return nil, nil
	}

	var contact models.Contact
	err := s.db.Where("phone LIKE ? OR mobile LIKE ?", "%"+phone+"%", "%"+phone+"%").First(&contact).Error
	if err == nil {
		return &contact, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if strings.HasPrefix(phone, "+") {
		bare := phone[1:]
		err = s.db.Where("phone LIKE ? OR mobile LIKE ?", "%"+bare+"%", "%"+bare+"%").First(&contact).Error
		if err == nil {
			return &contact, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *Store) GetContact(id uint) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.First(&contact, id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// UpdateContactField sets one of the closed set of writable contact fields.
var writableContactFields = map[string]string{
	"name":            "name",
	"tags":            "tags",
	"whatsapp_status": "whatsapp_status",
}

func (s *Store) UpdateContactField(contactID uint, field, value string) error {
	column, ok := writableContactFields[field]
	if !ok {
		return fmt.Errorf("contact field %q is not writable", field)
	}
	return s.db.Model(&models.Contact{}).Where("id = ?", contactID).Update(column, value).Error
}

// --- Conversation index ---

// FindOrCreateConversation resolves the (phone, contact) grouping, creating
// it lazily and back-filling the contact link when it was unknown at
// creation time.
func (s *Store) FindOrCreateConversation(phone string, contact *models.Contact, contactName string) (*models.Conversation, error) {
	if phone == "" {
		return nil, nil
	}

	var conv models.Conversation
	err := s.db.Where("phone = ?", phone).Order("contact_id IS NULL").First(&conv).Error
	if err == nil {
		if contact != nil && conv.ContactID == nil {
			conv.ContactID = &contact.ID
			if contact.Name != "" {
				conv.ContactName = contact.Name
			}
			if err := s.db.Save(&conv).Error; err != nil {
				return nil, err
			}
		}
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	name := contactName
	if name == "" && contact != nil {
		name = contact.Name
	}
	if name == "" {
		name = phone
	}
	conv = models.Conversation{
		Name:        fmt.Sprintf("%s - %s", name, phone),
		Phone:       phone,
		ContactName: contactName,
	}
	if contact != nil {
		conv.ContactID = &contact.ID
		if conv.ContactName == "" {
			conv.ContactName = contact.Name
		}
	}
	if err := s.db.Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// LinkMessage stamps the conversation and contact links onto a logged
// message after creation.
func (s *Store) LinkMessage(msg *models.Message, conv *models.Conversation, contact *models.Contact) error {
	if msg == nil {
		return nil
	}
	changed := false
	if conv != nil && msg.ConversationID == nil {
		msg.ConversationID = &conv.ID
		changed = true
	}
	if contact != nil && msg.ContactID == nil {
		msg.ContactID = &contact.ID
		if msg.ContactName == "" {
			msg.ContactName = contact.Name
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return s.db.Save(msg).Error
}

// --- Rules ---

func (s *Store) ActiveScenarios() ([]models.Scenario, error) {
	var scenarios []models.Scenario
	err := s.db.Preload("Buttons").Where("active = ?", true).Order("sequence, name").Find(&scenarios).Error
	return scenarios, err
}

func (s *Store) ActiveButtonActions() ([]models.ButtonAction, error) {
	var actions []models.ButtonAction
	err := s.db.Where("active = ?", true).Order("sequence, id").Find(&actions).Error
	return actions, err
}

func (s *Store) GetScenario(id uint) (*models.Scenario, error) {
	var scenario models.Scenario
	if err := s.db.Preload("Buttons").First(&scenario, id).Error; err != nil {
		return nil, err
	}
	return &scenario, nil
}

// --- Template cache ---

func (s *Store) TemplateByName(waName string) (*models.Template, error) {
	var tmpl models.Template
	err := s.db.Where("wa_name = ?", waName).First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *Store) UpsertTemplate(tmpl models.Template) error {
	return s.db.Where(models.Template{WaName: tmpl.WaName}).
		Assign(models.Template{
			Name:         tmpl.Name,
			LanguageCode: tmpl.LanguageCode,
			Category:     tmpl.Category,
			Status:       tmpl.Status,
			Components:   tmpl.Components,
		}).
		FirstOrCreate(&models.Template{}).Error
}

// --- Workflow idempotency claims ---

// claimFlag atomically flips a boolean guard from false to true, stamping
// the companion timestamp. It reports whether this caller won the claim; a
// concurrent second trigger sees zero rows affected.
func (s *Store) claimFlag(model interface{}, id uint, flagColumn, dateColumn string) (bool, error) {
	res := s.db.Model(model).
		Where("id = ? AND "+flagColumn+" = ?", id, false).
		Updates(map[string]interface{}{
			flagColumn: true,
			dateColumn: time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) releaseFlag(model interface{}, id uint, flagColumn, dateColumn string) error {
	return s.db.Model(model).Where("id = ?", id).
		Updates(map[string]interface{}{
			flagColumn: false,
			dateColumn: nil,
		}).Error
}

func (s *Store) ClaimInvoiceSend(id uint) (bool, error) {
	return s.claimFlag(&models.Invoice{}, id, "whatsapp_invoice_sent", "whatsapp_invoice_sent_at")
}

func (s *Store) ReleaseInvoiceSend(id uint) error {
	return s.releaseFlag(&models.Invoice{}, id, "whatsapp_invoice_sent", "whatsapp_invoice_sent_at")
}

func (s *Store) ClaimInvoiceResidual(id uint) (bool, error) {
	return s.claimFlag(&models.Invoice{}, id, "whatsapp_residual_sent", "whatsapp_residual_sent_at")
}

func (s *Store) ClaimInvoiceValidation(id uint) (bool, error) {
	return s.claimFlag(&models.Invoice{}, id, "whatsapp_validation_sent", "whatsapp_validation_sent_at")
}

func (s *Store) ClaimUnpaidReminder(id uint) (bool, error) {
	return s.claimFlag(&models.Invoice{}, id, "unpaid_reminder_sent", "unpaid_reminder_sent_at")
}

func (s *Store) ReleaseUnpaidReminder(id uint) error {
	return s.releaseFlag(&models.Invoice{}, id, "unpaid_reminder_sent", "unpaid_reminder_sent_at")
}

func (s *Store) ClaimOrderCreation(id uint) (bool, error) {
	return s.claimFlag(&models.SaleOrder{}, id, "whatsapp_creation_sent", "whatsapp_creation_sent_at")
}

func (s *Store) ReleaseOrderCreation(id uint) error {
	return s.releaseFlag(&models.SaleOrder{}, id, "whatsapp_creation_sent", "whatsapp_creation_sent_at")
}

func (s *Store) ClaimOrderState(id uint) (bool, error) {
	return s.claimFlag(&models.SaleOrder{}, id, "whatsapp_state_sent", "whatsapp_state_sent_at")
}

func (s *Store) ClaimOrderDetails(id uint) (bool, error) {
	return s.claimFlag(&models.SaleOrder{}, id, "whatsapp_details_sent", "whatsapp_details_sent_at")
}

// RecordNotification appends one attempt to the notification ledger.
// Ledger failures are logged, never propagated: audit must not break sends.
func (s *Store) RecordNotification(entityType string, entityID uint, trigger string, success bool, errMsg string) {
	entry := models.NotificationLedger{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Trigger:    trigger,
		Success:    success,
		Error:      errMsg,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		log.Printf("Error recording notification ledger entry: %v", err)
	}
}
