package workflow

import (
	"fmt"
	"log"
	"math"
	"strings"

	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/whatsapp"
)

// NotifyInvoicePosted sends a posted invoice to its contact. The claim is
// taken before any provider call so concurrent triggers send at most once;
// it is released only when the whole fallback chain fails, so the next
// trigger can retry.
//
// Chain: approved template with a download button, then the PDF as a
// document, then an interactive retry prompt, then plain text with the link.
func (s *Service) NotifyInvoicePosted(invoiceID uint) error {
	var inv models.Invoice
	if err := s.store.DB().First(&inv, invoiceID).Error; err != nil {
		return fmt.Errorf("loading invoice %d: %w", invoiceID, err)
	}
	if inv.State != "posted" {
		return fmt.Errorf("invoice %s is %s, only posted invoices are sent", inv.Number, inv.State)
	}

	contact, phone, err := s.recipient(inv.ContactID)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.Number, err)
	}

	won, err := s.store.ClaimInvoiceSend(inv.ID)
	if err != nil {
		return err
	}
	if !won {
		log.Printf("Invoice %s already sent, skipping", inv.Number)
		return nil
	}

	sendErr := s.sendInvoiceChain(&inv, contact.Name, phone)
	if sendErr != nil {
		if err := s.store.ReleaseInvoiceSend(inv.ID); err != nil {
			log.Printf("Error releasing invoice send claim for %s: %v", inv.Number, err)
		}
		s.store.RecordNotification("invoice", inv.ID, "invoice_posted", false, sendErr.Error())
		return sendErr
	}
	s.store.RecordNotification("invoice", inv.ID, "invoice_posted", true, "")
	return nil
}

func (s *Service) sendInvoiceChain(inv *models.Invoice, contactName, phone string) error {
	pdfURL := s.invoicePDFURL(inv)
	var failures []string

	if pdfURL != "" {
		components := []whatsapp.ComponentObj{
			{
				Type: "body",
				Parameters: []whatsapp.ParameterObj{
					{Type: "text", Text: contactName},
					{Type: "text", Text: inv.Number},
					{Type: "text", Text: formatAmount(inv.AmountTotal)},
					{Type: "text", Text: formatDate(inv.DueDate)},
				},
			},
			{
				Type:    "button",
				SubType: "url",
				Index:   "0",
				Parameters: []whatsapp.ParameterObj{
					{Type: "text", Text: pdfURL},
				},
			},
		}
		if _, err := s.sender.SendTemplate(phone, invoiceTemplateName, "fr", components); err == nil {
			return nil
		} else {
			failures = append(failures, "template: "+err.Error())
		}

		caption := fmt.Sprintf("Facture %s\nMontant: %s\nÉchéance: %s",
			inv.Number, formatAmount(inv.AmountTotal), formatDate(inv.DueDate))
		if _, err := s.sender.SendMedia(phone, "document", "", pdfURL, inv.Number+".pdf", caption); err == nil {
			return nil
		} else {
			failures = append(failures, "document: "+err.Error())
		}
	}

	body := fmt.Sprintf("Bonjour %s, votre facture %s de %s est disponible.",
		contactName, inv.Number, formatAmount(inv.AmountTotal))
	buttons := []whatsapp.ButtonObj{{
		Type:  "reply",
		Reply: whatsapp.ReplyObj{ID: fmt.Sprintf("btn_resend_invoice_%d", inv.ID), Title: "Renvoyer"},
	}}
	if _, err := s.sender.SendInteractive(phone, body, buttons); err == nil {
		return nil
	} else {
		failures = append(failures, "interactive: "+err.Error())
	}

	text := body
	if pdfURL != "" {
		text += "\nTélécharger: " + pdfURL
	}
	if _, err := s.sender.SendText(phone, text, true); err == nil {
		return nil
	} else {
		failures = append(failures, "text: "+err.Error())
	}

	return fmt.Errorf("all delivery attempts failed: %s", strings.Join(failures, "; "))
}

func (s *Service) invoicePDFURL(inv *models.Invoice) string {
	if inv.PDFURL != "" {
		return inv.PDFURL
	}
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/invoices/%d/pdf", strings.TrimRight(s.cfg.PublicBaseURL, "/"), inv.ID)
	}
	return ""
}

// NotifyInvoiceResidual sends a payment confirmation when the open amount
// drops. Changes under one cent of the currency are ignored, as are fully
// settled invoices handled by the payment flow itself.
func (s *Service) NotifyInvoiceResidual(invoiceID uint, oldResidual, newResidual float64) error {
	if math.Abs(oldResidual-newResidual) <= 0.01 || newResidual >= oldResidual {
		return nil
	}

	var inv models.Invoice
	if err := s.store.DB().First(&inv, invoiceID).Error; err != nil {
		return fmt.Errorf("loading invoice %d: %w", invoiceID, err)
	}
	contact, phone, err := s.recipient(inv.ContactID)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.Number, err)
	}

	won, err := s.store.ClaimInvoiceResidual(inv.ID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	paid := oldResidual - newResidual
	var body string
	if newResidual <= 0.01 {
		body = fmt.Sprintf("Bonjour %s, nous avons bien reçu votre paiement de %s. La facture %s est soldée. Merci !",
			contact.Name, formatAmount(paid), inv.Number)
	} else {
		body = fmt.Sprintf("Bonjour %s, paiement de %s reçu sur la facture %s. Montant restant: %s.",
			contact.Name, formatAmount(paid), inv.Number, formatAmount(newResidual))
	}

	_, sendErr := s.sender.SendText(phone, body, false)
	if sendErr != nil {
		s.store.RecordNotification("invoice", inv.ID, "payment_received", false, sendErr.Error())
		return sendErr
	}
	s.store.RecordNotification("invoice", inv.ID, "payment_received", true, "")
	return nil
}

// RequestInvoiceValidation asks the contact to approve or reject an invoice
// before it is finalized.
func (s *Service) RequestInvoiceValidation(invoiceID uint) error {
	var inv models.Invoice
	if err := s.store.DB().First(&inv, invoiceID).Error; err != nil {
		return fmt.Errorf("loading invoice %d: %w", invoiceID, err)
	}
	contact, phone, err := s.recipient(inv.ContactID)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.Number, err)
	}

	won, err := s.store.ClaimInvoiceValidation(inv.ID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	body := fmt.Sprintf("Bonjour %s, merci de confirmer la facture %s d'un montant de %s.",
		contact.Name, inv.Number, formatAmount(inv.AmountTotal))
	buttons := []whatsapp.ButtonObj{
		{Type: "reply", Reply: whatsapp.ReplyObj{ID: fmt.Sprintf("btn_validate_invoice_%d", inv.ID), Title: "Valider"}},
		{Type: "reply", Reply: whatsapp.ReplyObj{ID: fmt.Sprintf("btn_reject_invoice_%d", inv.ID), Title: "Rejeter"}},
	}
	_, sendErr := s.sender.SendInteractive(phone, body, buttons)
	if sendErr != nil {
		s.store.RecordNotification("invoice", inv.ID, "validation_request", false, sendErr.Error())
		return sendErr
	}
	s.store.RecordNotification("invoice", inv.ID, "validation_request", true, "")
	return nil
}
