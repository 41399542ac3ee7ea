package workflow

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"erp-whatsapp-bridge/internal/config"
	"erp-whatsapp-bridge/internal/database"
	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/phone"
	"erp-whatsapp-bridge/internal/sender"
	"erp-whatsapp-bridge/internal/store"
	"erp-whatsapp-bridge/internal/whatsapp"
)

type testEnv struct {
	service *Service
	store   *store.Store
	calls   *int64
	sent    *[]whatsapp.GenericMessage
	failOn  map[string]bool // payload types the stub rejects
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{failOn: map[string]bool{}}
	var calls int64
	var sent []whatsapp.GenericMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		var payload whatsapp.GenericMessage
		json.NewDecoder(r.Body).Decode(&payload)
		sent = append(sent, payload)
		if env.failOn[payload.Type] {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"Template name does not exist","type":"OAuthException","code":132001}}`)
			return
		}
		fmt.Fprint(w, `{"messages":[{"id":"wamid.WF"}]}`)
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
		UnpaidReminderDays: 7,
		PublicBaseURL:      "https://erp.example.com",
	}
	st := store.New(db)
	snd := sender.New(whatsapp.NewClient(cfg), st, phone.Normalizer{DefaultCountryCode: cfg.DefaultCountryCode})
	env.service = New(cfg, st, snd)
	env.store = st
	env.calls = &calls
	env.sent = &sent
	return env
}

func (env *testEnv) createInvoice(t *testing.T, mutate func(*models.Invoice)) *models.Invoice {
	t.Helper()
	contact := models.Contact{Name: "Awa Diop", Mobile: "+221771234567"}
	if err := env.store.DB().Create(&contact).Error; err != nil {
		t.Fatal(err)
	}
	due := time.Now().AddDate(0, 0, 14)
	inv := models.Invoice{
		Number:         "INV/2026/0042",
		ContactID:      &contact.ID,
		AmountTotal:    150000,
		AmountResidual: 150000,
		DueDate:        &due,
		State:          "posted",
		PaymentState:   "not_paid",
	}
	if mutate != nil {
		mutate(&inv)
	}
	if err := env.store.DB().Create(&inv).Error; err != nil {
		t.Fatal(err)
	}
	return &inv
}

func TestNotifyInvoicePostedSendsTemplate(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, nil)

	if err := env.service.NotifyInvoicePosted(inv.ID); err != nil {
		t.Fatalf("NotifyInvoicePosted: %v", err)
	}
	if len(*env.sent) != 1 {
		t.Fatalf("sent %d payloads, want 1", len(*env.sent))
	}
	payload := (*env.sent)[0]
	if payload.Type != "template" || payload.Template.Name != invoiceTemplateName {
		t.Fatalf("payload = %+v, want the invoice template", payload)
	}

	var inDB models.Invoice
	env.store.DB().First(&inDB, inv.ID)
	if !inDB.WhatsappInvoiceSent || inDB.WhatsappInvoiceSentAt == nil {
		t.Errorf("claim not recorded: %+v", inDB)
	}

	var ledger models.NotificationLedger
	if err := env.store.DB().Where("entity_id = ? AND `trigger` = ?", inv.ID, "invoice_posted").First(&ledger).Error; err != nil {
		t.Fatalf("no ledger entry: %v", err)
	}
	if !ledger.Success {
		t.Errorf("ledger = %+v", ledger)
	}
}

func TestNotifyInvoicePostedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, nil)

	if err := env.service.NotifyInvoicePosted(inv.ID); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := *env.calls

	// Second trigger for the same invoice must not reach the provider.
	if err := env.service.NotifyInvoicePosted(inv.ID); err != nil {
		t.Fatal(err)
	}
	if *env.calls != callsAfterFirst {
		t.Errorf("provider called %d times after second trigger, want %d", *env.calls, callsAfterFirst)
	}

	var count int64
	env.store.DB().Model(&models.Message{}).Count(&count)
	if count != 1 {
		t.Errorf("log rows = %d, want 1", count)
	}
}

func TestNotifyInvoicePostedFallsBackToDocument(t *testing.T) {
	env := newTestEnv(t)
	env.failOn["template"] = true
	inv := env.createInvoice(t, nil)

	if err := env.service.NotifyInvoicePosted(inv.ID); err != nil {
		t.Fatalf("NotifyInvoicePosted: %v", err)
	}
	if len(*env.sent) != 2 {
		t.Fatalf("sent %d payloads, want template attempt then document", len(*env.sent))
	}
	if (*env.sent)[0].Type != "template" || (*env.sent)[1].Type != "document" {
		t.Fatalf("chain = %s then %s", (*env.sent)[0].Type, (*env.sent)[1].Type)
	}
}

func TestNotifyInvoicePostedTotalFailureReleasesClaim(t *testing.T) {
	env := newTestEnv(t)
	env.failOn["template"] = true
	env.failOn["document"] = true
	env.failOn["interactive"] = true
	env.failOn["text"] = true
	inv := env.createInvoice(t, nil)

	err := env.service.NotifyInvoicePosted(inv.ID)
	if err == nil || !strings.Contains(err.Error(), "all delivery attempts failed") {
		t.Fatalf("err = %v", err)
	}

	var inDB models.Invoice
	env.store.DB().First(&inDB, inv.ID)
	if inDB.WhatsappInvoiceSent {
		t.Error("claim must be released after total failure so the next trigger retries")
	}

	var ledger models.NotificationLedger
	if err := env.store.DB().Where("entity_id = ?", inv.ID).First(&ledger).Error; err != nil {
		t.Fatalf("failure must still be recorded: %v", err)
	}
	if ledger.Success || ledger.Error == "" {
		t.Errorf("ledger = %+v", ledger)
	}
}

func TestNotifyInvoicePostedRejectsDraft(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, func(inv *models.Invoice) { inv.State = "draft" })

	if err := env.service.NotifyInvoicePosted(inv.ID); err == nil {
		t.Fatal("draft invoices must not be sent")
	}
	if *env.calls != 0 {
		t.Errorf("provider called %d times", *env.calls)
	}
}

func TestNotifyInvoiceResidual(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, func(inv *models.Invoice) {
		inv.PaymentState = "partial"
		inv.AmountResidual = 50000
	})

	// Sub-cent noise is ignored.
	if err := env.service.NotifyInvoiceResidual(inv.ID, 50000, 50000.004); err != nil {
		t.Fatal(err)
	}
	if *env.calls != 0 {
		t.Fatalf("noise change reached the provider")
	}

	if err := env.service.NotifyInvoiceResidual(inv.ID, 150000, 50000); err != nil {
		t.Fatal(err)
	}
	if len(*env.sent) != 1 || (*env.sent)[0].Type != "text" {
		t.Fatalf("sent = %+v", *env.sent)
	}
	if !strings.Contains((*env.sent)[0].Text.Body, "100000 FCFA") {
		t.Errorf("body = %q, want the paid amount", (*env.sent)[0].Text.Body)
	}
}

func TestRequestInvoiceValidationButtons(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, nil)

	if err := env.service.RequestInvoiceValidation(inv.ID); err != nil {
		t.Fatal(err)
	}
	payload := (*env.sent)[0]
	if payload.Type != "interactive" {
		t.Fatalf("payload = %+v", payload)
	}
	buttons := payload.Interactive.Action.Buttons
	if len(buttons) != 2 {
		t.Fatalf("buttons = %+v", buttons)
	}
	wantValidate := fmt.Sprintf("btn_validate_invoice_%d", inv.ID)
	wantReject := fmt.Sprintf("btn_reject_invoice_%d", inv.ID)
	if buttons[0].Reply.ID != wantValidate || buttons[1].Reply.ID != wantReject {
		t.Errorf("button ids = %q, %q", buttons[0].Reply.ID, buttons[1].Reply.ID)
	}
}

func TestSendUnpaidReminders(t *testing.T) {
	env := newTestEnv(t)

	overdue := time.Now().AddDate(0, 0, -30)
	env.createInvoice(t, func(inv *models.Invoice) {
		inv.DueDate = &overdue
	})
	// Due recently: outside the reminder window.
	recent := time.Now().AddDate(0, 0, -2)
	env.createInvoice(t, func(inv *models.Invoice) {
		inv.Number = "INV/2026/0043"
		inv.DueDate = &recent
	})
	// Paid: never reminded.
	env.createInvoice(t, func(inv *models.Invoice) {
		inv.Number = "INV/2026/0044"
		inv.DueDate = &overdue
		inv.PaymentState = "paid"
		inv.AmountResidual = 0
	})

	summary, err := env.service.SendUnpaidReminders()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Scanned != 1 || summary.Sent != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(*env.sent) != 1 || !strings.Contains((*env.sent)[0].Text.Body, "INV/2026/0042") {
		t.Fatalf("sent = %+v", *env.sent)
	}

	// A second run skips the reminded invoice.
	summary, err = env.service.SendUnpaidReminders()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Scanned != 0 {
		t.Errorf("second run scanned %d, want 0", summary.Scanned)
	}
}

func TestOrderDetailsHandlerClaimsOnce(t *testing.T) {
	env := newTestEnv(t)
	contact := models.Contact{Name: "Moussa Fall", Mobile: "+221761112233"}
	env.store.DB().Create(&contact)
	order := models.SaleOrder{
		Number: "SO/2026/0007", ContactID: &contact.ID,
		AmountTotal: 80000, Details: "2x Chaise, 1x Table", State: "sale",
	}
	env.store.DB().Create(&order)

	msg := &models.Message{Direction: models.DirectionIn, Phone: "+221761112233"}
	env.store.CreateMessage(msg)

	buttonID := fmt.Sprintf("btn_view_order_details_%d", order.ID)
	result := env.service.handleOrderDetails(msg, &contact, buttonID)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if len(*env.sent) != 1 || !strings.Contains((*env.sent)[0].Text.Body, "2x Chaise") {
		t.Fatalf("sent = %+v", *env.sent)
	}

	again := env.service.handleOrderDetails(msg, &contact, buttonID)
	if !again.Success || !strings.Contains(again.Message, "already sent") {
		t.Fatalf("second press = %+v", again)
	}
	if len(*env.sent) != 1 {
		t.Errorf("details sent twice")
	}
}

func TestInvoiceDecisionHandlers(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, nil)
	msg := &models.Message{Direction: models.DirectionIn, Phone: "+221771234567"}
	env.store.CreateMessage(msg)

	validate := env.service.handleInvoiceDecision(true)
	result := validate(msg, nil, fmt.Sprintf("btn_validate_invoice_%d", inv.ID))
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	var inDB models.Invoice
	env.store.DB().First(&inDB, inv.ID)
	if !inDB.WhatsappValidated || inDB.WhatsappRejected {
		t.Errorf("invoice = %+v", inDB)
	}

	// A reject after the decision is a no-op.
	reject := env.service.handleInvoiceDecision(false)
	result = reject(msg, nil, fmt.Sprintf("btn_reject_invoice_%d", inv.ID))
	if !result.Success || !strings.Contains(result.Message, "already recorded") {
		t.Fatalf("result = %+v", result)
	}
	env.store.DB().First(&inDB, inv.ID)
	if inDB.WhatsappRejected {
		t.Error("decision overwritten")
	}
}
