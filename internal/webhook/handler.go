// Package webhook receives Cloud API callbacks: the verification handshake,
// inbound messages of every type, and delivery status updates.
package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/actions"
	"erp-whatsapp-bridge/internal/config"
	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/phone"
	"erp-whatsapp-bridge/internal/store"
	"erp-whatsapp-bridge/internal/whatsapp"
)

// Notifier pushes realtime events to connected dashboard clients. A nil
// notifier disables the push without changing processing.
type Notifier interface {
	NotifyMessage(msg *models.Message)
	NotifyStatus(msg *models.Message, providerStatus string)
}

type Handler struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher *actions.Dispatcher
	client     *whatsapp.Client
	notifier   Notifier
	normalizer phone.Normalizer
}

func NewHandler(cfg *config.Config, st *store.Store, dispatcher *actions.Dispatcher, client *whatsapp.Client, notifier Notifier) *Handler {
	return &Handler{
		cfg:        cfg,
		store:      st,
		dispatcher: dispatcher,
		client:     client,
		notifier:   notifier,
		normalizer: phone.Normalizer{DefaultCountryCode: cfg.DefaultCountryCode},
	}
}

// VerifyWebhook answers the subscription handshake. Meta sends the dotted
// parameter names; the underscore variants are accepted for manual testing.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	if mode == "" {
		mode = c.Query("hub_mode")
		token = c.Query("hub_verify_token")
		challenge = c.Query("hub_challenge")
	}

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		log.Println("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "verification failed")
}

// HandleEvent ingests one webhook delivery. Processing errors are logged and
// swallowed: the provider retries on anything but a 200, and a retry would
// hit the same error again.
func (h *Handler) HandleEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	// An empty secret means no delivery can be verified, so strict mode
	// rejects everything rather than silently accepting unsigned traffic.
	header := c.GetHeader("X-Hub-Signature-256")
	if h.cfg.AppSecret == "" || !ValidSignature(h.cfg.AppSecret, body, header) {
		if h.cfg.RequireSignature {
			log.Println("Rejecting webhook with missing or invalid signature")
			c.String(http.StatusForbidden, "invalid signature")
			return
		}
		if h.cfg.AppSecret != "" {
			log.Println("Warning: webhook signature invalid, processing anyway")
		}
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error parsing webhook payload: %v", err)
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			h.processValue(change.Value)
		}
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
}

func (h *Handler) processValue(value Value) {
	names := make(map[string]string, len(value.Contacts))
	for _, contact := range value.Contacts {
		names[contact.WaID] = contact.Profile.Name
	}

	for _, inbound := range value.Messages {
		if err := h.processMessage(inbound, names[inbound.From]); err != nil {
			log.Printf("Error processing inbound message %s: %v", inbound.ID, err)
		}
	}
	for _, status := range value.Statuses {
		if err := h.processStatus(status); err != nil {
			log.Printf("Error processing status for %s: %v", status.ID, err)
		}
	}
}

func (h *Handler) processMessage(inbound InboundMessage, profileName string) error {
	if inbound.ID != "" {
		var existing models.Message
		err := h.store.DB().Where("wa_message_id = ?", inbound.ID).First(&existing).Error
		if err == nil {
			// Redelivered event, already logged.
			return nil
		}
	}

	phoneNumber, err := h.normalizer.Normalize(inbound.From)
	if err != nil {
		// Log under the raw sender rather than dropping the message.
		log.Printf("Warning: could not normalize sender %q: %v", inbound.From, err)
		phoneNumber = inbound.From
	}

	msg := &models.Message{
		Direction:   models.DirectionIn,
		WaMessageID: inbound.ID,
		Phone:       phoneNumber,
		ContactName: profileName,
		MessageType: inbound.Type,
		Status:      models.StatusReceived,
		WaStatus:    "received",
	}
	if raw, err := json.Marshal(inbound); err == nil {
		msg.RawPayload = string(raw)
	}

	var buttonID string
	switch inbound.Type {
	case "text":
		if inbound.Text != nil {
			msg.Content = inbound.Text.Body
		}
	case "image", "document", "audio", "video", "sticker":
		media := h.inboundMedia(inbound)
		if media != nil {
			msg.MediaID = media.ID
			msg.MediaMimeType = media.MimeType
			msg.Caption = media.Caption
			msg.Content = media.Caption
			if url, err := h.client.FetchMediaURL(media.ID); err == nil {
				msg.MediaURL = url
			} else {
				log.Printf("Warning: could not resolve media %s: %v", media.ID, err)
			}
		}
		if msg.Content == "" {
			msg.Content = fmt.Sprintf("[%s received]", inbound.Type)
		}
	case "location":
		if inbound.Location != nil {
			msg.Content = fmt.Sprintf("Location: %v, %v", inbound.Location.Latitude, inbound.Location.Longitude)
			if inbound.Location.Name != "" {
				msg.Content += " (" + inbound.Location.Name + ")"
			}
		}
	case "contacts":
		msg.Content = "[Contact card received]"
	case "interactive":
		if inbound.Interactive != nil {
			switch {
			case inbound.Interactive.ButtonReply != nil:
				buttonID = inbound.Interactive.ButtonReply.ID
				msg.Content = inbound.Interactive.ButtonReply.Title
			case inbound.Interactive.ListReply != nil:
				buttonID = inbound.Interactive.ListReply.ID
				msg.Content = inbound.Interactive.ListReply.Title
			}
		}
	case "button":
		// Quick-reply button on a template message.
		if inbound.Button != nil {
			buttonID = inbound.Button.Payload
			msg.Content = inbound.Button.Text
		}
	case "reaction":
		if inbound.Reaction != nil {
			msg.Content = fmt.Sprintf("Reacted %s to %s", inbound.Reaction.Emoji, inbound.Reaction.MessageID)
		}
	case "unsupported":
		msg.Content = "[Unsupported message]"
		if len(inbound.Errors) > 0 {
			msg.Content = fmt.Sprintf("[Unsupported message: %s]", inbound.Errors[0].Title)
		}
	default:
		msg.Content = fmt.Sprintf("[Unknown message type: %s]", inbound.Type)
	}

	contact, err := h.store.FindContactByPhone(phoneNumber)
	if err != nil {
		log.Printf("Error looking up contact for %s: %v", phoneNumber, err)
	}
	conv, err := h.store.FindOrCreateConversation(phoneNumber, contact, profileName)
	if err != nil {
		log.Printf("Error resolving conversation for %s: %v", phoneNumber, err)
	}

	if err := h.store.CreateMessage(msg); err != nil {
		return err
	}
	if err := h.store.LinkMessage(msg, conv, contact); err != nil {
		log.Printf("Error linking message %d: %v", msg.ID, err)
	}

	if buttonID != "" && h.dispatcher != nil {
		h.dispatcher.Dispatch(buttonID, msg, contact)
	}

	if h.notifier != nil {
		h.notifier.NotifyMessage(msg)
	}
	return nil
}

func (h *Handler) inboundMedia(inbound InboundMessage) *InboundMedia {
	switch inbound.Type {
	case "image":
		return inbound.Image
	case "document":
		return inbound.Document
	case "audio":
		return inbound.Audio
	case "video":
		return inbound.Video
	case "sticker":
		return inbound.Sticker
	}
	return nil
}

func (h *Handler) processStatus(status StatusEvent) error {
	var errorPayload string
	if len(status.Errors) > 0 {
		if raw, err := json.Marshal(status.Errors); err == nil {
			errorPayload = string(raw)
		}
	}

	msg, found, err := h.store.ApplyStatus(status.ID, status.Status, errorPayload)
	if err != nil {
		return err
	}
	if !found {
		// Status for a message this instance never logged, sent from another
		// client on the same number. Synthesize the row so history is complete.
		phoneNumber := status.RecipientID
		if normalized, err := h.normalizer.Normalize(status.RecipientID); err == nil {
			phoneNumber = normalized
		}
		msg = &models.Message{
			Direction:   models.DirectionOut,
			WaMessageID: status.ID,
			Phone:       phoneNumber,
			Content:     "[Message sent outside this system]",
			MessageType: "unknown",
			Status:      store.MapProviderStatus(status.Status),
			WaStatus:    status.Status,
			RawResponse: errorPayload,
		}
		if err := h.store.CreateMessage(msg); err != nil {
			return err
		}
	}

	if h.notifier != nil && msg != nil {
		h.notifier.NotifyStatus(msg, status.Status)
	}
	return nil
}
