package receipt_test

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
	"github.com/dukapos/pos-core-go/internal/postest"
	"github.com/dukapos/pos-core-go/internal/receipt"
	"github.com/dukapos/pos-core-go/internal/session"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.uber.org/zap"
)

func newDispatcher(t *testing.T, window time.Duration) (*receipt.Dispatcher, *postest.Server, int64) {
	t.Helper()

	srv := postest.NewServer()
	t.Cleanup(srv.Close)
	srv.RegisterUser("cashier", "terminal-pass", "cashier@example.test")

	txID := srv.SeedTransaction(domain.Transaction{
		Amount:        1250,
		Currency:      "USD",
		Status:        domain.TransactionSucceeded,
		CustomerEmail: "buyer@example.test",
		CustomerPhone: "+254712345678",
	})

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

	d := receipt.NewDispatcher(api.NewReceiptsClient(tp), window, metrics, zap.NewNop())
	return d, srv, txID
}

// After a successful dispatch the dispatcher shows Delivered for the
// presentation window, then reverts to Idle without any further network
// calls.
func TestDispatch_DeliveredThenAutoRevert(t *testing.T) {
	d, srv, txID := newDispatcher(t, 50*time.Millisecond)

	resp, err := d.Dispatch(context.Background(), txID, domain.DeliveryEmail, "")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !resp.Delivered || resp.ReceiptNumber == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if d.State() != receipt.StateDelivered {
		t.Errorf("state = %s, want delivered", d.State())
	}

	after := srv.Requests()

	deadline := time.Now().Add(time.Second)
	for d.State() != receipt.StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher never reverted to Idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Requests() != after {
		t.Error("the Delivered → Idle revert triggered network calls")
	}
}

func TestDispatch_FailureReturnsToIdle(t *testing.T) {
	d, srv, txID := newDispatcher(t, 50*time.Millisecond)
	srv.FailNext(http.StatusServiceUnavailable, "SMS gateway down")

	_, err := d.Dispatch(context.Background(), txID, domain.DeliverySMS, "")
	var rf *domain.ErrRequestFailed
	if !errors.As(err, &rf) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if rf.Message != "SMS gateway down" {
		t.Errorf("message = %q, want SMS gateway down", rf.Message)
	}
	if d.State() != receipt.StateIdle {
		t.Errorf("state = %s, want idle after failure", d.State())
	}

	// Prior attempts are not remembered: retry with another method works.
	if _, err := d.Dispatch(context.Background(), txID, domain.DeliveryPrint, ""); err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
}

func TestDispatch_UnknownMethodFailsLocally(t *testing.T) {
	d, srv, txID := newDispatcher(t, 50*time.Millisecond)
	before := srv.Requests()

	_, err := d.Dispatch(context.Background(), txID, domain.DeliveryMethod("fax"), "")
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if srv.Requests() != before {
		t.Error("invalid method issued a network call")
	}
}

func TestDispatch_BusyWhileDelivering(t *testing.T) {
	d, srv, txID := newDispatcher(t, 50*time.Millisecond)
	srv.SetLatency(150 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), txID, domain.DeliverySMS, "")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for d.State() != receipt.StateDelivering {
		if time.Now().After(deadline) {
			t.Fatal("dispatch never entered Delivering")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := d.Dispatch(context.Background(), txID, domain.DeliverySMS, "")
	var busy *domain.ErrBusy
	if !errors.As(err, &busy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
}

func TestDispatch_StateChangeHook(t *testing.T) {
	d, _, txID := newDispatcher(t, 30*time.Millisecond)

	states := make(chan receipt.State, 8)
	d.OnStateChange(func(s receipt.State) { states <- s })

	if _, err := d.Dispatch(context.Background(), txID, domain.DeliveryPrint, ""); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	want := []receipt.State{receipt.StateDelivering, receipt.StateDelivered, receipt.StateIdle}
	for _, w := range want {
		select {
		case got := <-states:
			if got != w {
				t.Fatalf("transition = %s, want %s", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s transition", w)
		}
	}
}
