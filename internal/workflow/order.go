package workflow

import (
	"fmt"
	"log"

	"erp-whatsapp-bridge/internal/actions"
	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/whatsapp"
)

// NotifyOrderCreated confirms a new sale order with a details button the
// contact can press to get the order lines back.
func (s *Service) NotifyOrderCreated(orderID uint) error {
	var order models.SaleOrder
	if err := s.store.DB().First(&order, orderID).Error; err != nil {
		return fmt.Errorf("loading order %d: %w", orderID, err)
	}
	contact, phone, err := s.recipient(order.ContactID)
	if err != nil {
		return fmt.Errorf("order %s: %w", order.Number, err)
	}

	won, err := s.store.ClaimOrderCreation(order.ID)
	if err != nil {
		return err
	}
	if !won {
		log.Printf("Order %s creation already notified, skipping", order.Number)
		return nil
	}

	body := fmt.Sprintf("Bonjour %s, votre commande %s de %s a bien été enregistrée.",
		contact.Name, order.Number, formatAmount(order.AmountTotal))
	buttons := []whatsapp.ButtonObj{{
		Type:  "reply",
		Reply: whatsapp.ReplyObj{ID: fmt.Sprintf("btn_view_order_details_%d", order.ID), Title: "Voir détails"},
	}}
	_, sendErr := s.sender.SendInteractive(phone, body, buttons)
	if sendErr != nil {
		if err := s.store.ReleaseOrderCreation(order.ID); err != nil {
			log.Printf("Error releasing order creation claim for %s: %v", order.Number, err)
		}
		s.store.RecordNotification("sale_order", order.ID, "order_created", false, sendErr.Error())
		return sendErr
	}
	s.store.RecordNotification("sale_order", order.ID, "order_created", true, "")
	return nil
}

// NotifyOrderState announces a state change. Confirmation is a plain text;
// completion asks the contact to validate or reject the final invoice when
// one is attached.
func (s *Service) NotifyOrderState(orderID uint, invoiceID *uint) error {
	var order models.SaleOrder
	if err := s.store.DB().First(&order, orderID).Error; err != nil {
		return fmt.Errorf("loading order %d: %w", orderID, err)
	}
	contact, phone, err := s.recipient(order.ContactID)
	if err != nil {
		return fmt.Errorf("order %s: %w", order.Number, err)
	}

	switch order.State {
	case "sale":
		won, err := s.store.ClaimOrderState(order.ID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		body := fmt.Sprintf("Bonjour %s, votre commande %s est confirmée et en cours de préparation.",
			contact.Name, order.Number)
		_, sendErr := s.sender.SendText(phone, body, false)
		if sendErr != nil {
			s.store.RecordNotification("sale_order", order.ID, "order_confirmed", false, sendErr.Error())
			return sendErr
		}
		s.store.RecordNotification("sale_order", order.ID, "order_confirmed", true, "")
		return nil

	case "done":
		if invoiceID == nil {
			body := fmt.Sprintf("Bonjour %s, votre commande %s est terminée. Merci de votre confiance.",
				contact.Name, order.Number)
			_, sendErr := s.sender.SendText(phone, body, false)
			return sendErr
		}
		return s.RequestInvoiceValidation(*invoiceID)

	case "cancel":
		body := fmt.Sprintf("Bonjour %s, votre commande %s a été annulée.", contact.Name, order.Number)
		_, sendErr := s.sender.SendText(phone, body, false)
		return sendErr
	}

	return fmt.Errorf("order %s: no notification for state %q", order.Number, order.State)
}

// RegisterBuiltins wires the workflow button handlers into the dispatcher:
// order detail replies and invoice validation decisions.
func (s *Service) RegisterBuiltins(dispatcher *actions.Dispatcher) {
	dispatcher.RegisterHandler("order_details", s.handleOrderDetails)
	dispatcher.RegisterHandler("invoice_validate", s.handleInvoiceDecision(true))
	dispatcher.RegisterHandler("invoice_reject", s.handleInvoiceDecision(false))
	dispatcher.RegisterHandler("invoice_resend", s.handleInvoiceResend)
}

func (s *Service) handleOrderDetails(msg *models.Message, contact *models.Contact, buttonID string) actions.ActionResult {
	orderID, ok := idSuffix(buttonID, "btn_view_order_details")
	if !ok {
		return actions.ActionResult{Success: false, Message: "malformed order button " + buttonID}
	}

	var order models.SaleOrder
	if err := s.store.DB().First(&order, orderID).Error; err != nil {
		return actions.ActionResult{Success: false, Message: fmt.Sprintf("order %d not found", orderID)}
	}

	// A details reply may be requested once per order.
	won, err := s.store.ClaimOrderDetails(order.ID)
	if err != nil {
		return actions.ActionResult{Success: false, Message: err.Error()}
	}
	if !won {
		return actions.ActionResult{Success: true, Message: "details already sent for " + order.Number}
	}

	body := fmt.Sprintf("Commande %s\nMontant: %s", order.Number, formatAmount(order.AmountTotal))
	if order.Details != "" {
		body += "\n\n" + order.Details
	}
	if _, err := s.sender.SendText(msg.Phone, body, false); err != nil {
		return actions.ActionResult{Success: false, Message: "details send failed: " + err.Error()}
	}
	return actions.ActionResult{Success: true, Message: "details sent for " + order.Number}
}

func (s *Service) handleInvoiceDecision(validated bool) actions.HandlerFunc {
	prefix := "btn_validate_invoice"
	column := "whatsapp_validated"
	reply := "Merci, la facture %s est validée."
	if !validated {
		prefix = "btn_reject_invoice"
		column = "whatsapp_rejected"
		reply = "La facture %s a été rejetée. Notre équipe vous contactera."
	}

	return func(msg *models.Message, contact *models.Contact, buttonID string) actions.ActionResult {
		invoiceID, ok := idSuffix(buttonID, prefix)
		if !ok {
			return actions.ActionResult{Success: false, Message: "malformed invoice button " + buttonID}
		}

		var inv models.Invoice
		if err := s.store.DB().First(&inv, invoiceID).Error; err != nil {
			return actions.ActionResult{Success: false, Message: fmt.Sprintf("invoice %d not found", invoiceID)}
		}
		if inv.WhatsappValidated || inv.WhatsappRejected {
			return actions.ActionResult{Success: true, Message: "decision already recorded for " + inv.Number}
		}

		if err := s.store.DB().Model(&inv).Update(column, true).Error; err != nil {
			return actions.ActionResult{Success: false, Message: "decision update failed: " + err.Error()}
		}
		if _, err := s.sender.SendText(msg.Phone, fmt.Sprintf(reply, inv.Number), false); err != nil {
			log.Printf("Error confirming invoice decision for %s: %v", inv.Number, err)
		}
		verb := "validated"
		if !validated {
			verb = "rejected"
		}
		return actions.ActionResult{Success: true, Message: fmt.Sprintf("invoice %s %s", inv.Number, verb)}
	}
}

func (s *Service) handleInvoiceResend(msg *models.Message, contact *models.Contact, buttonID string) actions.ActionResult {
	invoiceID, ok := idSuffix(buttonID, "btn_resend_invoice")
	if !ok {
		return actions.ActionResult{Success: false, Message: "malformed invoice button " + buttonID}
	}

	var inv models.Invoice
	if err := s.store.DB().First(&inv, invoiceID).Error; err != nil {
		return actions.ActionResult{Success: false, Message: fmt.Sprintf("invoice %d not found", invoiceID)}
	}

	url := s.invoicePDFURL(&inv)
	if url == "" {
		return actions.ActionResult{Success: false, Message: "no document available for " + inv.Number}
	}
	caption := fmt.Sprintf("Facture %s\nMontant: %s", inv.Number, formatAmount(inv.AmountTotal))
	if _, err := s.sender.SendMedia(msg.Phone, "document", "", url, inv.Number+".pdf", caption); err != nil {
		return actions.ActionResult{Success: false, Message: "resend failed: " + err.Error()}
	}
	return actions.ActionResult{Success: true, Message: "invoice " + inv.Number + " resent"}
}
