package workflow

import (
	"fmt"
	"log"
	"time"

	"erp-whatsapp-bridge/internal/models"
)

// ReminderSummary reports one reminder batch run.
type ReminderSummary struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// SendUnpaidReminders walks posted invoices still carrying an open amount
// whose due date passed more than the configured number of days ago, and
// sends one reminder per invoice. Sends are sequential with a pause so a
// large batch stays under the provider rate limit. Each invoice is claimed
// before its send; a failed send releases the claim for the next run.
func (s *Service) SendUnpaidReminders() (*ReminderSummary, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.UnpaidReminderDays)

	var invoices []models.Invoice
	err := s.store.DB().
		Where("state = ?", "posted").
		Where("payment_state IN ?", []string{"not_paid", "partial"}).
		Where("amount_residual > 0").
		Where("unpaid_reminder_sent = ?", false).
		Where("due_date IS NOT NULL AND due_date <= ?", cutoff).
		Order("due_date").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("querying overdue invoices: %w", err)
	}

	summary := &ReminderSummary{Scanned: len(invoices)}
	for i, inv := range invoices {
		if i > 0 && s.delay > 0 {
			time.Sleep(s.delay)
		}
		if err := s.sendReminder(&inv); err != nil {
			log.Printf("Reminder for invoice %s failed: %v", inv.Number, err)
			summary.Failed++
			continue
		}
		summary.Sent++
	}
	summary.Skipped = summary.Scanned - summary.Sent - summary.Failed
	return summary, nil
}

func (s *Service) sendReminder(inv *models.Invoice) error {
	contact, phone, err := s.recipient(inv.ContactID)
	if err != nil {
		return err
	}

	won, err := s.store.ClaimUnpaidReminder(inv.ID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	overdue := 0
	if inv.DueDate != nil {
		overdue = int(time.Since(*inv.DueDate).Hours() / 24)
	}
	body := fmt.Sprintf(
		"Bonjour %s, votre facture %s de %s est échue depuis %d jours. Montant restant dû: %s. Merci de procéder au règlement.",
		contact.Name, inv.Number, formatAmount(inv.AmountTotal), overdue, formatAmount(inv.AmountResidual))

	if _, sendErr := s.sender.SendText(phone, body, false); sendErr != nil {
		if err := s.store.ReleaseUnpaidReminder(inv.ID); err != nil {
			log.Printf("Error releasing reminder claim for %s: %v", inv.Number, err)
		}
		s.store.RecordNotification("invoice", inv.ID, "unpaid_reminder", false, sendErr.Error())
		return sendErr
	}
	s.store.RecordNotification("invoice", inv.ID, "unpaid_reminder", true, "")
	return nil
}
