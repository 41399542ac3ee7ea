package store

import (
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"erp-whatsapp-bridge/internal/database"
	"erp-whatsapp-bridge/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return New(db)
}

func TestApplyStatusAdvances(t *testing.T) {
	s := newTestStore(t)
	msg := &models.Message{
		Direction:   models.DirectionOut,
		WaMessageID: "wamid.ADV",
		Phone:       "+221771234567",
		Content:     "hello",
		MessageType: "text",
		Status:      models.StatusSent,
	}
	if err := s.CreateMessage(msg); err != nil {
		t.Fatal(err)
	}

	updated, found, err := s.ApplyStatus("wamid.ADV", "delivered", "")
	if err != nil || !found {
		t.Fatalf("ApplyStatus delivered: found=%v err=%v", found, err)
	}
	if updated.Status != models.StatusDelivered {
		t.Errorf("status = %q, want delivered", updated.Status)
	}

	updated, _, err = s.ApplyStatus("wamid.ADV", "read", "")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusRead {
		t.Errorf("status = %q, want read", updated.Status)
	}
}

func TestApplyStatusNeverDowngrades(t *testing.T) {
	s := newTestStore(t)
	msg := &models.Message{
		Direction:   models.DirectionOut,
		WaMessageID: "wamid.READ",
		Phone:       "+221771234567",
		Status:      models.StatusRead,
	}
	if err := s.CreateMessage(msg); err != nil {
		t.Fatal(err)
	}

	// Out-of-order delivered event after read must be recorded but must not
	// move the status backwards.
	updated, found, err := s.ApplyStatus("wamid.READ", "delivered", "")
	if err != nil || !found {
		t.Fatalf("ApplyStatus: found=%v err=%v", found, err)
	}
	if updated.Status != models.StatusRead {
		t.Errorf("status = %q, want read kept", updated.Status)
	}
	if updated.WaStatus != "delivered" {
		t.Errorf("wa_status = %q, want raw provider keyword kept", updated.WaStatus)
	}
}

func TestApplyStatusFailedOverrides(t *testing.T) {
	s := newTestStore(t)
	msg := &models.Message{
		Direction:   models.DirectionOut,
		WaMessageID: "wamid.FAIL",
		Phone:       "+221771234567",
		Content:     "invoice reminder",
		Status:      models.StatusRead,
	}
	if err := s.CreateMessage(msg); err != nil {
		t.Fatal(err)
	}

	updated, _, err := s.ApplyStatus("wamid.FAIL", "failed", `{"errors":[{"code":131026}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusError {
		t.Errorf("status = %q, want error", updated.Status)
	}
	if !strings.HasPrefix(updated.Content, "[FAILED] ") {
		t.Errorf("content = %q, want [FAILED] prefix", updated.Content)
	}
	if updated.RawResponse == "" {
		t.Error("error payload was not persisted")
	}

	// A second failed event must not stack another prefix.
	again, _, err := s.ApplyStatus("wamid.FAIL", "failed", "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(again.Content, "[FAILED]") != 1 {
		t.Errorf("content = %q, prefix applied more than once", again.Content)
	}
}

func TestApplyStatusUnknownMessage(t *testing.T) {
	s := newTestStore(t)
	updated, found, err := s.ApplyStatus("wamid.NOPE", "delivered", "")
	if err != nil {
		t.Fatal(err)
	}
	if found || updated != nil {
		t.Errorf("expected a miss, got found=%v msg=%+v", found, updated)
	}
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]string{
		"sent":      models.StatusSent,
		"delivered": models.StatusDelivered,
		"read":      models.StatusRead,
		"failed":    models.StatusError,
		"deleted":   models.StatusError,
		"warning":   models.StatusSent,
	}
	for provider, want := range cases {
		if got := MapProviderStatus(provider); got != want {
			t.Errorf("MapProviderStatus(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestFindContactByPhone(t *testing.T) {
	s := newTestStore(t)
	contact := models.Contact{Name: "Awa Diop", Phone: "+221 77 123 45 67"}
	if err := s.DB().Create(&contact).Error; err != nil {
		t.Fatal(err)
	}

	// The stored number has separators that a normalized lookup will not
	// carry, so only the bare-digits retry can match it.
	bare := models.Contact{Name: "Moussa Fall", Mobile: "221761112233"}
	if err := s.DB().Create(&bare).Error; err != nil {
		t.Fatal(err)
	}

	got, err := s.FindContactByPhone("+221761112233")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Moussa Fall" {
		t.Fatalf("got %+v, want Moussa Fall via bare-digits retry", got)
	}

	miss, err := s.FindContactByPhone("+221700000000")
	if err != nil {
		t.Fatal(err)
	}
	if miss != nil {
		t.Errorf("expected nil contact on miss, got %+v", miss)
	}
}

func TestFindOrCreateConversation(t *testing.T) {
	s := newTestStore(t)

	// First message before the contact is known.
	conv, err := s.FindOrCreateConversation("+221771234567", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil || conv.ContactID != nil {
		t.Fatalf("got %+v, want fresh conversation without contact", conv)
	}

	contact := models.Contact{Name: "Awa Diop", Phone: "+221771234567"}
	if err := s.DB().Create(&contact).Error; err != nil {
		t.Fatal(err)
	}

	// Same phone with the contact resolved: the existing conversation is
	// reused and back-filled, never duplicated.
	again, err := s.FindOrCreateConversation("+221771234567", &contact, "Awa Diop")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != conv.ID {
		t.Fatalf("conversation duplicated: %d vs %d", again.ID, conv.ID)
	}
	if again.ContactID == nil || *again.ContactID != contact.ID {
		t.Errorf("contact link not back-filled: %+v", again)
	}

	var count int64
	s.DB().Model(&models.Conversation{}).Where("phone = ?", "+221771234567").Count(&count)
	if count != 1 {
		t.Errorf("conversation count = %d, want 1", count)
	}
}

func TestUpdateContactFieldClosedSet(t *testing.T) {
	s := newTestStore(t)
	contact := models.Contact{Name: "Awa Diop", Phone: "+221771234567"}
	if err := s.DB().Create(&contact).Error; err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateContactField(contact.ID, "tags", "vip"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetContact(contact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tags != "vip" {
		t.Errorf("tags = %q, want vip", got.Tags)
	}

	if err := s.UpdateContactField(contact.ID, "phone", "+221000000000"); err == nil {
		t.Error("expected rejection of non-writable field")
	}
}

func TestClaimFlagAtomicity(t *testing.T) {
	s := newTestStore(t)
	inv := models.Invoice{Number: "INV/2026/0042", State: "posted"}
	if err := s.DB().Create(&inv).Error; err != nil {
		t.Fatal(err)
	}

	won, err := s.ClaimInvoiceSend(inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !won {
		t.Fatal("first claim should win")
	}

	lost, err := s.ClaimInvoiceSend(inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if lost {
		t.Error("second claim should lose")
	}

	if err := s.ReleaseInvoiceSend(inv.ID); err != nil {
		t.Fatal(err)
	}
	won, err = s.ClaimInvoiceSend(inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !won {
		t.Error("claim after release should win again")
	}
}

func TestUpsertTemplate(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertTemplate(models.Template{
		Name: "invoice_with_download", WaName: "invoice_with_download",
		LanguageCode: "fr", Status: "PENDING",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertTemplate(models.Template{
		Name: "invoice_with_download", WaName: "invoice_with_download",
		LanguageCode: "fr", Status: "APPROVED",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.TemplateByName("invoice_with_download")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != "APPROVED" {
		t.Fatalf("got %+v, want updated APPROVED row", got)
	}

	var count int64
	s.DB().Model(&models.Template{}).Count(&count)
	if count != 1 {
		t.Errorf("template count = %d, want 1", count)
	}
}

func TestApplyStatusErrorIsTerminal(t *testing.T) {
	s := newTestStore(t)
	msg := &models.Message{
		Direction:   models.DirectionOut,
		WaMessageID: "wamid.DEAD",
		Phone:       "+221771234567",
		Content:     "[FAILED] hello",
		Status:      models.StatusError,
		WaStatus:    "failed",
	}
	if err := s.CreateMessage(msg); err != nil {
		t.Fatal(err)
	}

	// A late delivered or read event for an already-failed message must not
	// resurrect it.
	for _, providerStatus := range []string{"sent", "delivered", "read"} {
		updated, found, err := s.ApplyStatus("wamid.DEAD", providerStatus, "")
		if err != nil || !found {
			t.Fatalf("ApplyStatus %s: found=%v err=%v", providerStatus, found, err)
		}
		if updated.Status != models.StatusError {
			t.Errorf("status after %s = %q, want error kept", providerStatus, updated.Status)
		}
		if updated.WaStatus != "failed" {
			t.Errorf("wa_status after %s = %q, want failed kept", providerStatus, updated.WaStatus)
		}
	}
}
