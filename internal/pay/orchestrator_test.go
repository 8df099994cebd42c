package pay_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukapos/pos-core-go/internal/api"
	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/observability"
	"github.com/dukapos/pos-core-go/internal/infra/resilience"
	"github.com/dukapos/pos-core-go/internal/pay"
	"github.com/dukapos/pos-core-go/internal/postest"
	"github.com/dukapos/pos-core-go/internal/session"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.uber.org/zap"
)

func newOrchestrator(t *testing.T) (*pay.Orchestrator, *postest.Server) {
	t.Helper()

	srv := postest.NewServer()
	t.Cleanup(srv.Close)
	srv.RegisterUser("cashier", "terminal-pass", "cashier@example.test")

	sess, err := session.NewStore(filepath.Join(t.TempDir(), "token"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	metrics := observability.NewMetrics()
	cfg := resilience.Config{InitialBackoff: time.Millisecond}
	tp := transport.NewClient(srv.Client(), srv.URL, sess, resilience.NewCircuitBreaker("test"), cfg, metrics, zap.NewNop())

	auth := api.NewAuthClient(tp, sess, zap.NewNop())
	if _, err := auth.Login(context.Background(), "cashier", "terminal-pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	txs := api.NewTransactionsClient(tp)
	links := api.NewPaymentLinksClient(tp)
	return pay.NewOrchestrator(txs, links, "USD", metrics, zap.NewNop()), srv
}

func TestSubmit_TerminalPaymentCompletes(t *testing.T) {
	o, _ := newOrchestrator(t)

	res, err := o.Submit(context.Background(), pay.Input{
		Mode:          pay.ModeTerminal,
		Amount:        "12.50",
		CustomerEmail: "buyer@example.test",
		Description:   "Consultation Fee",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if o.State() != pay.StateCompleted {
		t.Errorf("state = %s, want completed", o.State())
	}
	tx := res.Transaction
	if tx == nil {
		t.Fatal("expected a Transaction result for terminal mode")
	}
	if tx.Amount != 1250 {
		t.Errorf("amount = %d, want 1250 minor units", tx.Amount)
	}
	if tx.Status != domain.TransactionSucceeded {
		t.Errorf("status = %s, want succeeded", tx.Status)
	}
	if tx.AmountDisplay != "$12.50" {
		t.Errorf("amount_display = %q, want $12.50", tx.AmountDisplay)
	}
}

func TestSubmit_LinkModeCreatesLink(t *testing.T) {
	o, _ := newOrchestrator(t)

	res, err := o.Submit(context.Background(), pay.Input{
		Mode:          pay.ModeLink,
		Amount:        "45.00",
		CustomerPhone: "+254712345678",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	link := res.Link
	if link == nil {
		t.Fatal("expected a PaymentLink result for link mode")
	}
	if link.Amount != 4500 {
		t.Errorf("amount = %d, want 4500", link.Amount)
	}
	if !link.SMSSent {
		t.Error("expected send_sms to be honored")
	}
	if link.URL == "" {
		t.Error("expected a link URL")
	}
}

// Link mode with no phone fails locally: no request may reach the backend.
func TestSubmit_LinkModeRequiresPhone(t *testing.T) {
	o, srv := newOrchestrator(t)
	before := srv.Requests()

	_, err := o.Submit(context.Background(), pay.Input{
		Mode:   pay.ModeLink,
		Amount: "45.00",
	})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if ve.Field != "customer_phone" {
		t.Errorf("field = %q, want customer_phone", ve.Field)
	}
	if srv.Requests() != before {
		t.Error("validation failure issued a network call")
	}
	if o.State() != pay.StateFailed {
		t.Errorf("state = %s, want failed", o.State())
	}
}

func TestSubmit_NonNumericAmountFailsLocally(t *testing.T) {
	o, srv := newOrchestrator(t)
	before := srv.Requests()

	_, err := o.Submit(context.Background(), pay.Input{
		Mode:   pay.ModeTerminal,
		Amount: "twelve",
	})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if srv.Requests() != before {
		t.Error("validation failure issued a network call")
	}
}

// A second submission while one is in flight is rejected with Busy and
// never reaches the network.
func TestSubmit_SingleFlight(t *testing.T) {
	o, srv := newOrchestrator(t)
	srv.SetLatency(150 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), pay.Input{
			Mode:   pay.ModeTerminal,
			Amount: "10.00",
		})
		done <- err
	}()

	// Wait for the first attempt to be in flight.
	deadline := time.Now().Add(time.Second)
	for o.State() != pay.StateSubmitting {
		if time.Now().After(deadline) {
			t.Fatal("first submission never entered Submitting")
		}
		time.Sleep(time.Millisecond)
	}
	inFlight := srv.Requests()

	_, err := o.Submit(context.Background(), pay.Input{
		Mode:   pay.ModeTerminal,
		Amount: "10.00",
	})
	var busy *domain.ErrBusy
	if !errors.As(err, &busy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if srv.Requests() != inFlight {
		t.Error("rejected submission still issued a network call")
	}

	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if o.State() != pay.StateCompleted {
		t.Errorf("state = %s, want completed", o.State())
	}
}

// A backend rejection surfaces the message unmodified and allows resubmission.
func TestSubmit_BackendDeclineThenResubmit(t *testing.T) {
	o, srv := newOrchestrator(t)
	srv.FailNext(http.StatusBadRequest, "Card declined")

	_, err := o.Submit(context.Background(), pay.Input{
		Mode:   pay.ModeTerminal,
		Amount: "10.00",
	})
	var rf *domain.ErrRequestFailed
	if !errors.As(err, &rf) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if rf.Message != "Card declined" {
		t.Errorf("message = %q, want Card declined", rf.Message)
	}
	if o.State() != pay.StateFailed {
		t.Errorf("state = %s, want failed", o.State())
	}

	// Fresh attempt goes through.
	res, err := o.Submit(context.Background(), pay.Input{
		Mode:   pay.ModeTerminal,
		Amount: "10.00",
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res.Transaction == nil || o.State() != pay.StateCompleted {
		t.Error("expected resubmission to complete")
	}
}

func TestParseMode(t *testing.T) {
	if _, err := pay.ParseMode("terminal"); err != nil {
		t.Errorf("ParseMode(terminal): %v", err)
	}
	if _, err := pay.ParseMode("link"); err != nil {
		t.Errorf("ParseMode(link): %v", err)
	}
	if _, err := pay.ParseMode("cash"); err == nil {
		t.Error("ParseMode(cash): expected error")
	}
}
