package sender

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"erp-whatsapp-bridge/internal/config"
	"erp-whatsapp-bridge/internal/database"
	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/phone"
	"erp-whatsapp-bridge/internal/store"
	"erp-whatsapp-bridge/internal/whatsapp"
)

type testEnv struct {
	sender *Sender
	store  *store.Store
	calls  *int64
}

// newTestEnv wires a sender against an httptest Cloud API stub. respond
// decides what the stub returns for each send.
func newTestEnv(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *testEnv {
	t.Helper()

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		respond(w, r)
	}))
	t.Cleanup(srv.Close)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	cfg := &config.Config{
		AccessToken:        "test-token",
		PhoneNumberID:      "123456",
		GraphBaseURL:       srv.URL,
		DefaultCountryCode: "+221",
	}
	st := store.New(db)
	client := whatsapp.NewClient(cfg)
	return &testEnv{
		sender: New(client, st, phone.Normalizer{DefaultCountryCode: cfg.DefaultCountryCode}),
		store:  st,
		calls:  &calls,
	}
}

func okResponse(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, `{"messages":[{"id":"wamid.ABC"}]}`)
}

func TestSendTextLogsSentRow(t *testing.T) {
	env := newTestEnv(t, okResponse)

	res, err := env.sender.SendText("+221771234567", "hello", false)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if !res.Success || res.MessageID != "wamid.ABC" {
		t.Fatalf("result = %+v, want success with wamid.ABC", res)
	}

	var msg models.Message
	if err := env.store.DB().First(&msg).Error; err != nil {
		t.Fatalf("no log row: %v", err)
	}
	if msg.Direction != models.DirectionOut {
		t.Errorf("direction = %q, want out", msg.Direction)
	}
	if msg.Status != models.StatusSent {
		t.Errorf("status = %q, want sent", msg.Status)
	}
	if msg.WaMessageID != "wamid.ABC" {
		t.Errorf("wa_message_id = %q, want wamid.ABC", msg.WaMessageID)
	}
	if msg.Phone != "+221771234567" {
		t.Errorf("phone = %q", msg.Phone)
	}
	if msg.RawPayload == "" || msg.RawResponse == "" {
		t.Error("raw payload and response must both be persisted")
	}
	if msg.ConversationID == nil {
		t.Error("outbound message not linked to a conversation")
	}
}

func TestSendTextNormalizesLocalNumber(t *testing.T) {
	var gotTo string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		gotTo, _ = payload["to"].(string)
		okResponse(w, r)
	})

	if _, err := env.sender.SendText("0771234567", "hello", false); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if gotTo != "+221771234567" {
		t.Errorf("to = %q, want +221771234567", gotTo)
	}
}

func TestSendTextValidation(t *testing.T) {
	env := newTestEnv(t, okResponse)

	_, err := env.sender.SendText("+221771234567", "", false)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	_, err = env.sender.SendText("abc", "hello", false)
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError for bad phone", err)
	}

	// Validation failures must not reach the provider or the log.
	if *env.calls != 0 {
		t.Errorf("provider called %d times, want 0", *env.calls)
	}
	var count int64
	env.store.DB().Model(&models.Message{}).Count(&count)
	if count != 0 {
		t.Errorf("log rows = %d, want 0", count)
	}
}

func TestSendTextProviderFailureLogsErrorRow(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Re-engagement message","type":"OAuthException","code":131047,"error_subcode":131026}}`)
	})

	res, err := env.sender.SendText("+221771234567", "hello", false)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if res == nil || res.Success {
		t.Fatalf("result = %+v, want failed result with row", res)
	}

	var msg models.Message
	if err := env.store.DB().First(&msg).Error; err != nil {
		t.Fatalf("failed attempt must still be logged: %v", err)
	}
	if msg.Status != models.StatusError {
		t.Errorf("status = %q, want error", msg.Status)
	}
	if msg.WaStatus == "" {
		t.Error("wa_status must carry the classified provider error")
	}
}

func TestSendTemplatePayload(t *testing.T) {
	var payload whatsapp.GenericMessage
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		okResponse(w, r)
	})

	components := []whatsapp.ComponentObj{{
		Type:       "body",
		Parameters: []whatsapp.ParameterObj{{Type: "text", Text: "INV/2026/0042"}},
	}}
	res, err := env.sender.SendTemplate("+221771234567", "invoice_with_download", "fr", components)
	if err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if payload.Type != "template" || payload.Template == nil {
		t.Fatalf("payload = %+v, want template message", payload)
	}
	if payload.Template.Name != "invoice_with_download" || payload.Template.Language.Code != "fr" {
		t.Errorf("template = %+v", payload.Template)
	}
	if res.Message.TemplateName != "invoice_with_download" || res.Message.TemplateComponents == "" {
		t.Errorf("template metadata not logged: %+v", res.Message)
	}
}

func TestSendInteractiveButtonLimit(t *testing.T) {
	env := newTestEnv(t, okResponse)

	button := func(id, title string) whatsapp.ButtonObj {
		return whatsapp.ButtonObj{Type: "reply", Reply: whatsapp.ReplyObj{ID: id, Title: title}}
	}

	var verr *ValidationError
	_, err := env.sender.SendInteractive("+221771234567", "pick one", nil)
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError for zero buttons", err)
	}
	_, err = env.sender.SendInteractive("+221771234567", "pick one", []whatsapp.ButtonObj{
		button("a", "A"), button("b", "B"), button("c", "C"), button("d", "D"),
	})
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError for four buttons", err)
	}

	res, err := env.sender.SendInteractive("+221771234567", "pick one", []whatsapp.ButtonObj{
		button("btn_yes", "Oui"), button("btn_no", "Non"),
	})
	if err != nil {
		t.Fatalf("SendInteractive: %v", err)
	}
	if res.Message.MessageType != "interactive" {
		t.Errorf("message_type = %q", res.Message.MessageType)
	}
}

func TestSendMediaValidation(t *testing.T) {
	env := newTestEnv(t, okResponse)

	var verr *ValidationError
	_, err := env.sender.SendMedia("+221771234567", "document", "", "", "f.pdf", "")
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError without id or link", err)
	}
	_, err = env.sender.SendMedia("+221771234567", "gif", "", "http://x/y.gif", "", "")
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError for unsupported kind", err)
	}

	res, err := env.sender.SendMedia("+221771234567", "document", "", "https://erp.example.com/invoice.pdf", "INV-0042.pdf", "Votre facture")
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if res.Message.MessageType != "document" || res.Message.MediaURL == "" {
		t.Errorf("logged row = %+v", res.Message)
	}
}

func TestSendLocation(t *testing.T) {
	var payload whatsapp.GenericMessage
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		okResponse(w, r)
	})

	_, err := env.sender.SendLocation("+221771234567", 14.6937, -17.4441, "Dakar", "Plateau")
	if err != nil {
		t.Fatalf("SendLocation: %v", err)
	}
	if payload.Location == nil || payload.Location.Latitude != 14.6937 {
		t.Errorf("payload = %+v", payload.Location)
	}
}

type recordingNotifier struct {
	messages []*models.Message
}

func (n *recordingNotifier) NotifyMessage(msg *models.Message) {
	n.messages = append(n.messages, msg)
}

func TestSendTextPushesToNotifier(t *testing.T) {
	env := newTestEnv(t, okResponse)
	notifier := &recordingNotifier{}
	env.sender.SetNotifier(notifier)

	if _, err := env.sender.SendText("+221771234567", "hello", false); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("notifier received %d messages, want 1", len(notifier.messages))
	}
	msg := notifier.messages[0]
	if msg.Direction != models.DirectionOut || msg.Status != models.StatusSent {
		t.Errorf("notified message = %+v, want outbound sent row", msg)
	}
	if msg.ID == 0 {
		t.Error("notifier must run after the row is persisted")
	}
}

func TestProviderErrorPersistedInFull(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Re-engagement message","type":"OAuthException","code":131026}}`)
	})

	_, err := env.sender.SendText("+221771234567", "hello", false)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}

	// The classified explanation for a session-window failure is well over a
	// hundred characters and must survive the round trip uncut.
	var msg models.Message
	if err := env.store.DB().First(&msg).Error; err != nil {
		t.Fatalf("no log row: %v", err)
	}
	if msg.WaStatus != perr.Reason {
		t.Errorf("wa_status = %q, want the full classified reason %q", msg.WaStatus, perr.Reason)
	}
	if len(msg.WaStatus) <= 100 {
		t.Errorf("classified reason unexpectedly short (%d chars), test no longer exercises long statuses", len(msg.WaStatus))
	}
}
