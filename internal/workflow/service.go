// Package workflow drives ERP-triggered notifications: invoice delivery
// with its fallback chain, sale order updates, validation requests and the
// unpaid invoice reminder batch.
package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"erp-whatsapp-bridge/internal/config"
	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/sender"
	"erp-whatsapp-bridge/internal/store"
)

const invoiceTemplateName = "invoice_with_download"

type Service struct {
	cfg    *config.Config
	store  *store.Store
	sender *sender.Sender

	// Pause between reminder sends so a batch does not trip rate limits.
	delay time.Duration
}

func New(cfg *config.Config, st *store.Store, snd *sender.Sender) *Service {
	return &Service{
		cfg:    cfg,
		store:  st,
		sender: snd,
		delay:  cfg.ReminderDelay,
	}
}

// recipient resolves the contact and the phone number to notify for an
// entity. Mobile wins over the landline field.
func (s *Service) recipient(contactID *uint) (*models.Contact, string, error) {
	if contactID == nil {
		return nil, "", fmt.Errorf("no contact attached")
	}
	contact, err := s.store.GetContact(*contactID)
	if err != nil {
		return nil, "", fmt.Errorf("loading contact %d: %w", *contactID, err)
	}
	phone := contact.Mobile
	if phone == "" {
		phone = contact.Phone
	}
	if phone == "" {
		return nil, "", fmt.Errorf("contact %q has no phone number", contact.Name)
	}
	return contact, phone, nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 0, 64) + " FCFA"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("02/01/2006")
}

// EnsureDefaultActions seeds the button action rows that route workflow
// button presses to the built-in handlers. Existing rows are left untouched
// so operators can deactivate or reorder them.
func (s *Service) EnsureDefaultActions() error {
	defaults := []models.ButtonAction{
		{Name: "Order details", ButtonID: "btn_view_order_details", ActionType: models.ActionHandler, HandlerName: "order_details", Active: true, Sequence: 10},
		{Name: "Validate invoice", ButtonID: "btn_validate_invoice", ActionType: models.ActionHandler, HandlerName: "invoice_validate", Active: true, Sequence: 10},
		{Name: "Reject invoice", ButtonID: "btn_reject_invoice", ActionType: models.ActionHandler, HandlerName: "invoice_reject", Active: true, Sequence: 10},
		{Name: "Resend invoice", ButtonID: "btn_resend_invoice", ActionType: models.ActionHandler, HandlerName: "invoice_resend", Active: true, Sequence: 10},
	}
	for _, action := range defaults {
		err := s.store.DB().
			Where(models.ButtonAction{ButtonID: action.ButtonID}).
			Attrs(action).
			FirstOrCreate(&models.ButtonAction{}).Error
		if err != nil {
			return fmt.Errorf("seeding action %s: %w", action.ButtonID, err)
		}
	}
	return nil
}

// idSuffix extracts the numeric entity id from a composed button id like
// "btn_view_order_details_42".
func idSuffix(buttonID, prefix string) (uint, bool) {
	rest := strings.TrimPrefix(buttonID, prefix+"_")
	if rest == buttonID {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
