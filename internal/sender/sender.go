// Package sender orchestrates phone normalization, payload construction,
// the API call and the message log write for every outbound message shape.
package sender

import (
	"encoding/json"
	"fmt"
	"log"

	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/phone"
	"erp-whatsapp-bridge/internal/store"
	"erp-whatsapp-bridge/internal/whatsapp"
)

// ValidationError reports missing or malformed input caught before any
// provider call is made. No log row is written for these.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ProviderError reports a send the provider rejected or that failed in
// transit. The attempt is already persisted in the message log when this is
// returned.
type ProviderError struct {
	Reason string
}

func (e *ProviderError) Error() string {
	return e.Reason
}

// Result reports one send attempt together with the log row it produced, so
// callers can link the row into a conversation.
type Result struct {
	Success   bool
	MessageID string
	Message   *models.Message
}

// Notifier receives every outbound log row after it is written. A nil
// notifier disables the push without changing the send path.
type Notifier interface {
	NotifyMessage(msg *models.Message)
}

type Sender struct {
	client     *whatsapp.Client
	store      *store.Store
	normalizer phone.Normalizer
	notifier   Notifier
}

func New(client *whatsapp.Client, st *store.Store, normalizer phone.Normalizer) *Sender {
	return &Sender{client: client, store: st, normalizer: normalizer}
}

// SetNotifier attaches a realtime event sink, typically the websocket hub.
func (s *Sender) SetNotifier(n Notifier) {
	s.notifier = n
}

// dispatch sends the payload and writes exactly one log row for the
// attempt, successful or not.
func (s *Sender) dispatch(payload whatsapp.GenericMessage, rec *models.Message) (*Result, error) {
	raw, err := json.Marshal(payload)
	if err == nil {
		rec.RawPayload = string(raw)
	}

	outcome := s.client.Send(payload)

	rec.Direction = models.DirectionOut
	rec.WaMessageID = outcome.MessageID
	rec.RawResponse = outcome.RawResponse
	switch {
	case outcome.Failed():
		rec.Status = models.StatusError
		rec.WaStatus = outcome.ErrorMessage
	case outcome.MessageID == "":
		rec.Status = models.StatusError
		rec.WaStatus = "no message id returned"
	default:
		rec.Status = models.StatusSent
		rec.WaStatus = "sent"
	}

	if err := s.store.CreateMessage(rec); err != nil {
		log.Printf("Error logging outbound message: %v", err)
	} else {
		contact, err := s.store.FindContactByPhone(rec.Phone)
		if err != nil {
			log.Printf("Error looking up contact for %s: %v", rec.Phone, err)
		}
		conv, err := s.store.FindOrCreateConversation(rec.Phone, contact, "")
		if err != nil {
			log.Printf("Error resolving conversation for %s: %v", rec.Phone, err)
		}
		if err := s.store.LinkMessage(rec, conv, contact); err != nil {
			log.Printf("Error linking message %d: %v", rec.ID, err)
		}
		if s.notifier != nil {
			s.notifier.NotifyMessage(rec)
		}
	}

	if rec.Status == models.StatusError {
		return &Result{Success: false, Message: rec}, &ProviderError{Reason: rec.WaStatus}
	}
	return &Result{Success: true, MessageID: outcome.MessageID, Message: rec}, nil
}

func (s *Sender) normalize(to string) (string, error) {
	if to == "" {
		return "", &ValidationError{Reason: "recipient phone number is required"}
	}
	normalized, err := s.normalizer.Normalize(to)
	if err != nil {
		return "", &ValidationError{Reason: err.Error()}
	}
	return normalized, nil
}

// SendText sends a free-form text message.
func (s *Sender) SendText(to, body string, previewURL bool) (*Result, error) {
	if body == "" {
		return nil, &ValidationError{Reason: "message body is required"}
	}
	normalized, err := s.normalize(to)
	if err != nil {
		return nil, err
	}

	payload := whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		To:               normalized,
		Type:             "text",
		Text:             &whatsapp.TextObj{Body: body, PreviewUrl: previewURL},
	}
	rec := &models.Message{
		Phone:       normalized,
		Content:     body,
		MessageType: "text",
	}
	return s.dispatch(payload, rec)
}

// SendTemplate sends an approved template message. When the template cache
// knows the template and it is not approved, the call is still attempted but
// a warning is logged so operators can see why the provider rejects it.
func (s *Sender) SendTemplate(to, templateName, languageCode string, components []whatsapp.ComponentObj) (*Result, error) {
	if templateName == "" {
		return nil, &ValidationError{Reason: "template name is required"}
	}
	normalized, err := s.normalize(to)
	if err != nil {
		return nil, err
	}
	if languageCode == "" {
		languageCode = "fr"
	}

	if cached, err := s.store.TemplateByName(templateName); err == nil && cached != nil && cached.Status != "APPROVED" {
		log.Printf("Warning: template %q has status %s, the provider will likely reject it", templateName, cached.Status)
	}

	payload := whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		To:               normalized,
		Type:             "template",
		Template: &whatsapp.TemplateObj{
			Name:       templateName,
			Language:   whatsapp.LanguageObj{Code: languageCode},
			Components: components,
		},
	}

	componentsJSON := "[]"
	if raw, err := json.Marshal(components); err == nil && components != nil {
		componentsJSON = string(raw)
	}
	rec := &models.Message{
		Phone:              normalized,
		Content:            "Template: " + templateName,
		MessageType:        "template",
		TemplateName:       templateName,
		TemplateLanguage:   languageCode,
		TemplateComponents: componentsJSON,
	}
	return s.dispatch(payload, rec)
}

// SendInteractive sends a body text with 1 to 3 reply buttons (the hard
// provider limit).
func (s *Sender) SendInteractive(to, body string, buttons []whatsapp.ButtonObj) (*Result, error) {
	if body == "" {
		return nil, &ValidationError{Reason: "message body is required"}
	}
	if len(buttons) < 1 || len(buttons) > 3 {
		return nil, &ValidationError{Reason: fmt.Sprintf("interactive messages need 1 to 3 buttons, got %d", len(buttons))}
	}
	normalized, err := s.normalize(to)
	if err != nil {
		return nil, err
	}

	payload := whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		To:               normalized,
		Type:             "interactive",
		Interactive: &whatsapp.InteractiveObj{
			Type:   "button",
			Body:   whatsapp.BodyObj{Text: body},
			Action: whatsapp.ActionObj{Buttons: buttons},
		},
	}
	rec := &models.Message{
		Phone:       normalized,
		Content:     body,
		MessageType: "interactive",
	}
	return s.dispatch(payload, rec)
}

var mediaKinds = map[string]bool{
	"image":    true,
	"audio":    true,
	"video":    true,
	"document": true,
}

// SendMedia sends an image, audio, video or document, referenced either by
// an uploaded media id or a public link.
func (s *Sender) SendMedia(to, kind, mediaID, link, filename, caption string) (*Result, error) {
	if !mediaKinds[kind] {
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported media kind %q", kind)}
	}
	if mediaID == "" && link == "" {
		return nil, &ValidationError{Reason: "either a media id or a link is required"}
	}
	normalized, err := s.normalize(to)
	if err != nil {
		return nil, err
	}

	media := &whatsapp.MediaObj{ID: mediaID, Link: link}
	if kind != "audio" {
		media.Caption = caption
	}
	if kind == "document" {
		media.Filename = filename
	}

	payload := whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		To:               normalized,
		Type:             kind,
	}
	switch kind {
	case "image":
		payload.Image = media
	case "audio":
		payload.Audio = media
	case "video":
		payload.Video = media
	case "document":
		payload.Document = media
	}

	rec := &models.Message{
		Phone:       normalized,
		Content:     caption,
		MessageType: kind,
		MediaID:     mediaID,
		MediaURL:    link,
		Caption:     caption,
	}
	return s.dispatch(payload, rec)
}

// SendLocation sends a location pin.
func (s *Sender) SendLocation(to string, latitude, longitude float64, name, address string) (*Result, error) {
	normalized, err := s.normalize(to)
	if err != nil {
		return nil, err
	}

	payload := whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		To:               normalized,
		Type:             "location",
		Location: &whatsapp.LocationObj{
			Latitude:  latitude,
			Longitude: longitude,
			Name:      name,
			Address:   address,
		},
	}
	rec := &models.Message{
		Phone:       normalized,
		Content:     fmt.Sprintf("%v, %v", latitude, longitude),
		MessageType: "location",
	}
	return s.dispatch(payload, rec)
}
