package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/observability"
	"github.com/dukapos/pos-core-go/internal/infra/resilience"
	"github.com/dukapos/pos-core-go/internal/session"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.uber.org/zap"
)

func newClient(t *testing.T, handler http.Handler, retries int) (*transport.Client, *session.Store, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess, err := session.NewStore(filepath.Join(t.TempDir(), "token"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	cfg := resilience.Config{MaxRetries: retries, InitialBackoff: time.Millisecond}
	cb := resilience.NewCircuitBreaker("test")
	client := transport.NewClient(srv.Client(), srv.URL, sess, cb, cfg, observability.NewMetrics(), zap.NewNop())
	return client, sess, srv
}

func TestDo_DecodesSuccessBody(t *testing.T) {
	client, _, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","version":"9.9"}`))
	}), 0)

	var hs domain.HealthStatus
	if err := client.Do(context.Background(), http.MethodGet, "/health", nil, false, &hs); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if hs.Status != "healthy" || hs.Version != "9.9" {
		t.Errorf("unexpected decode: %+v", hs)
	}
}

func TestDo_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	client, sess, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}), 0)

	if err := sess.SetToken("tok-abc"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if err := client.Do(context.Background(), http.MethodGet, "/transactions", nil, true, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want Bearer tok-abc", gotAuth)
	}
}

func TestDo_NoAuthHeaderWhenNotRequired(t *testing.T) {
	var gotAuth string
	client, sess, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}), 0)

	if err := sess.SetToken("tok-abc"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if err := client.Do(context.Background(), http.MethodGet, "/health", nil, false, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestDo_401ClearsSessionAndReturnsUnauthorized(t *testing.T) {
	client, sess, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","message":"Session expired"}`))
	}), 0)

	if err := sess.SetToken("tok"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	fired := false
	sess.OnUnauthorized(func() { fired = true })

	err := client.Do(context.Background(), http.MethodGet, "/transactions", nil, true, nil)
	var unauth *domain.ErrUnauthorized
	if !errors.As(err, &unauth) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if unauth.Message != "Session expired" {
		t.Errorf("message = %q, want Session expired", unauth.Message)
	}
	if _, ok := sess.Token(); ok {
		t.Error("expected token cleared after 401")
	}
	if !fired {
		t.Error("expected unauthorized hook to fire")
	}
}

// Under concurrent outstanding requests, a 401 still leaves the store with
// no token, whatever the other requests' outcomes.
func TestDo_401UnderConcurrentRequests(t *testing.T) {
	var n atomic.Int64
	client, sess, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First request succeeds slowly, the rest 401.
		if n.Add(1) == 1 {
			time.Sleep(50 * time.Millisecond)
			w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Session expired"}`))
	}), 0)

	if err := sess.SetToken("tok"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = client.Do(context.Background(), http.MethodGet, "/transactions", nil, true, nil)
		}()
	}
	wg.Wait()

	if _, ok := sess.Token(); ok {
		t.Error("expected no token after a concurrent 401")
	}
}

func TestDo_ErrorMessageFromBody(t *testing.T) {
	client, _, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"Card declined","code":"card_declined"}`))
	}), 0)

	err := client.Do(context.Background(), http.MethodPost, "/transactions/pay", map[string]int{"amount": 100}, true, nil)
	var rf *domain.ErrRequestFailed
	if !errors.As(err, &rf) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if rf.Message != "Card declined" || rf.Status != http.StatusBadRequest {
		t.Errorf("got %+v, want Card declined / 400", rf)
	}
}

func TestDo_ErrorFallsBackToStatusText(t *testing.T) {
	client, _, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`oops`))
	}), 0)

	err := client.Do(context.Background(), http.MethodPost, "/receipts", nil, true, nil)
	var rf *domain.ErrRequestFailed
	if !errors.As(err, &rf) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if rf.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("message = %q, want %q", rf.Message, http.StatusText(http.StatusBadGateway))
	}
}

// Only a 401 may clear the token; backend rejections leave it alone.
func TestDo_RequestFailedLeavesToken(t *testing.T) {
	client, sess, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"amount too large"}`))
	}), 0)

	if err := sess.SetToken("tok-keep"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	err := client.Do(context.Background(), http.MethodPost, "/transactions/pay", nil, true, nil)
	var rf *domain.ErrRequestFailed
	if !errors.As(err, &rf) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if tok, ok := sess.Token(); !ok || tok != "tok-keep" {
		t.Errorf("token = %q, %v; want tok-keep untouched", tok, ok)
	}
}

func TestDo_NetworkFailure(t *testing.T) {
	client, _, srv := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), 0)
	srv.Close() // nothing listening anymore

	err := client.Do(context.Background(), http.MethodGet, "/health", nil, false, nil)
	var netErr *domain.ErrNetworkUnavailable
	if !errors.As(err, &netErr) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}
}

func TestDo_GetRetriesNetworkFailureOnly(t *testing.T) {
	var calls atomic.Int64
	client, _, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Transaction not found"}`))
	}), 2)

	err := client.Do(context.Background(), http.MethodGet, "/transactions/99", nil, true, nil)
	var rf *domain.ErrRequestFailed
	if !errors.As(err, &rf) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("backend rejection was retried: %d calls", calls.Load())
	}
}

func TestDo_PostIsSingleShot(t *testing.T) {
	var calls atomic.Int64
	client, _, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"processor error"}`))
	}), 3)

	_ = client.Do(context.Background(), http.MethodPost, "/transactions/pay", nil, true, nil)
	if calls.Load() != 1 {
		t.Errorf("POST was retried: %d calls", calls.Load())
	}
}
