// Package postest provides an in-process POS backend implementing the
// /api/v1 contract for tests: JWT-authenticated routes, bcrypt credential
// checks, transactions, payment links, receipts, and health. State lives
// in memory and resets with the server.
package postest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/money"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 15 * time.Minute

// Server is a fake POS backend bound to an httptest.Server.
type Server struct {
	*httptest.Server

	secret []byte

	mu           sync.Mutex
	users        map[string]user
	transactions map[int64]*domain.Transaction
	links        map[int64]*domain.PaymentLinkDetail
	receipts     map[int64]*domain.ReceiptDetail
	byIdemKey    map[string]int64
	nextTxID     int64
	nextLinkID   int64
	nextRcptID   int64

	revoked  atomic.Bool
	requests atomic.Int64
	latency  atomic.Int64

	failMu      sync.Mutex
	failStatus  int
	failMessage string
}

type user struct {
	email        string
	passwordHash []byte
}

// NewServer starts the fake backend. Call Close when done.
func NewServer() *Server {
	s := &Server{
		secret:       []byte("postest-secret"),
		users:        make(map[string]user),
		transactions: make(map[int64]*domain.Transaction),
		links:        make(map[int64]*domain.PaymentLinkDetail),
		receipts:     make(map[int64]*domain.ReceiptDetail),
		byIdemKey:    make(map[string]int64),
	}

	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions/pay", s.handleCreatePayment)
			r.Get("/transactions/{id}", s.handleGetTransaction)
			r.Post("/transactions/{id}/refund", s.handleRefund)
			r.Post("/payment-links", s.handleCreateLink)
			r.Get("/payment-links/{id}", s.handleGetLink)
			r.Post("/payment-links/{id}/resend-sms", s.handleResendSMS)
			r.Post("/receipts", s.handleGenerateReceipt)
			r.Get("/receipts/{id}", s.handleGetReceipt)
			r.Get("/receipts/by-transaction/{id}", s.handleReceiptsForTransaction)
		})
	})

	s.Server = httptest.NewServer(r)
	return s
}

// RegisterUser seeds an operator account with a bcrypt-hashed password.
func (s *Server) RegisterUser(username, password, email string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic("postest: hash password: " + err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = user{email: email, passwordHash: hash}
}

// SeedTransaction inserts a transaction directly into the store.
func (s *Server) SeedTransaction(tx domain.Transaction) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTxID++
	tx.ID = s.nextTxID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if tx.AmountDisplay == "" {
		tx.AmountDisplay = money.FormatMinorUnits(tx.Amount, tx.Currency)
	}
	s.transactions[tx.ID] = &tx
	return tx.ID
}

// RevokeAllSessions makes every authenticated route answer 401 until
// AcceptSessions is called, regardless of token validity.
func (s *Server) RevokeAllSessions() { s.revoked.Store(true) }

// AcceptSessions re-enables token validation after RevokeAllSessions.
func (s *Server) AcceptSessions() { s.revoked.Store(false) }

// FailNext makes the next matched request fail with the given status and
// message, then clears itself.
func (s *Server) FailNext(status int, message string) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failStatus = status
	s.failMessage = message
}

// Requests reports how many HTTP requests the server has received.
func (s *Server) Requests() int64 { return s.requests.Load() }

// SetLatency delays every subsequent request by d, for tests that need a
// request to stay in flight.
func (s *Server) SetLatency(d time.Duration) { s.latency.Store(int64(d)) }

// --- middleware ---

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if d := time.Duration(s.latency.Load()); d > 0 {
			time.Sleep(d)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.revoked.Load() {
			writeError(w, http.StatusUnauthorized, "Session expired")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// failInjected handles a pending FailNext, reporting whether it fired.
func (s *Server) failInjected(w http.ResponseWriter) bool {
	s.failMu.Lock()
	status, msg := s.failStatus, s.failMessage
	s.failStatus, s.failMessage = 0, ""
	s.failMu.Unlock()
	if status == 0 {
		return false
	}
	writeError(w, status, msg)
	return true
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	writeJSON(w, http.StatusOK, domain.HealthStatus{
		Status:   "healthy",
		Version:  "1.0.0-test",
		Database: "connected",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.Username,
		"exp": jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		"iat": jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	writeJSON(w, http.StatusOK, domain.TokenResponse{AccessToken: signed, TokenType: "bearer"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if len(req.Username) < 3 || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "username or password too short")
		return
	}

	s.mu.Lock()
	if _, exists := s.users[req.Username]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Username already registered")
		return
	}
	s.mu.Unlock()

	s.RegisterUser(req.Username, req.Password, req.Email)
	writeJSON(w, http.StatusCreated, domain.UserResponse{
		ID:       int64(len(s.users)),
		Username: req.Username,
		Email:    req.Email,
		IsActive: true,
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first.
	all := make([]domain.Transaction, 0, len(s.transactions))
	for id := s.nextTxID; id >= 1; id-- {
		if tx, ok := s.transactions[id]; ok {
			all = append(all, *tx)
		}
	}

	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}

	totalPages := (len(all) + perPage - 1) / perPage
	writeJSON(w, http.StatusOK, domain.TransactionList{
		Status: "success",
		Data:   all[start:end],
		Pagination: domain.Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      len(all),
			TotalPages: totalPages,
		},
	})
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent replay: same key returns the original transaction.
	if req.IdempotencyKey != "" {
		if id, ok := s.byIdemKey[req.IdempotencyKey]; ok {
			writeJSON(w, http.StatusOK, s.transactions[id])
			return
		}
	}

	s.nextTxID++
	tx := &domain.Transaction{
		ID:                s.nextTxID,
		ExternalReference: "pi_" + uuid.NewString()[:8],
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            domain.TransactionSucceeded,
		PaymentMethod:     "card",
		CardBrand:         "visa",
		CardLast4:         "4242",
		CustomerEmail:     req.CustomerEmail,
		CustomerPhone:     req.CustomerPhone,
		Description:       req.Description,
		CreatedAt:         time.Now(),
		AmountDisplay:     money.FormatMinorUnits(req.Amount, req.Currency),
	}
	s.transactions[tx.ID] = tx
	if req.IdempotencyKey != "" {
		s.byIdemKey[req.IdempotencyKey] = tx.ID
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	id := pathID(r)

	s.mu.Lock()
	tx, ok := s.transactions[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	id := pathID(r)
	var req domain.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if tx.Status != domain.TransactionSucceeded {
		writeError(w, http.StatusBadRequest, "Only succeeded transactions can be refunded")
		return
	}
	if req.Amount > tx.Amount {
		writeError(w, http.StatusBadRequest, "Refund amount exceeds transaction amount")
		return
	}

	tx.Status = domain.TransactionRefunded
	now := time.Now()
	tx.UpdatedAt = &now
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	var req domain.PaymentLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		writeError(w, http.StatusBadRequest, "customer_phone is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLinkID++
	detail := &domain.PaymentLinkDetail{
		ID:            s.nextLinkID,
		URL:           fmt.Sprintf("https://pay.example.test/l/%s", uuid.NewString()[:8]),
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerPhone: req.CustomerPhone,
		SMSSent:       req.SendSMS,
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
	s.links[detail.ID] = detail

	writeJSON(w, http.StatusCreated, domain.PaymentLink{
		Status:        "success",
		LinkID:        detail.ID,
		URL:           detail.URL,
		Amount:        detail.Amount,
		Currency:      detail.Currency,
		CustomerPhone: detail.CustomerPhone,
		SMSSent:       detail.SMSSent,
		ExpiresAt:     time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	id := pathID(r)

	s.mu.Lock()
	link, ok := s.links[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Payment link not found")
		return
	}
	writeJSON(w, http.StatusOK, domain.PaymentLinkDetailEnvelope{Status: "success", Data: *link})
}

func (s *Server) handleResendSMS(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	id := pathID(r)

	s.mu.Lock()
	link, ok := s.links[id]
	if ok {
		link.SMSSent = true
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Payment link not found")
		return
	}
	writeJSON(w, http.StatusOK, domain.ResendSMSResult{
		Status:  "success",
		LinkID:  id,
		SMSSent: true,
	})
}

func (s *Server) handleGenerateReceipt(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	var req domain.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if _, err := domain.ParseDeliveryMethod(string(req.DeliveryMethod)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery_method")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[req.TransactionID]
	if !ok {
		writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	recipient := req.Recipient
	if recipient == "" {
		switch req.DeliveryMethod {
		case domain.DeliverySMS:
			recipient = tx.CustomerPhone
		case domain.DeliveryEmail:
			recipient = tx.CustomerEmail
		}
	}

	s.nextRcptID++
	number := "REC-" + strings.ToUpper(uuid.NewString()[:8])
	detail := &domain.ReceiptDetail{
		ID:             s.nextRcptID,
		ReceiptNumber:  number,
		TransactionID:  tx.ID,
		DeliveryMethod: string(req.DeliveryMethod),
		Delivered:      true,
		Recipient:      recipient,
		CreatedAt:      time.Now().Format(time.RFC3339),
	}
	s.receipts[detail.ID] = detail

	writeJSON(w, http.StatusCreated, domain.ReceiptResponse{
		Status:         "success",
		ReceiptID:      detail.ID,
		ReceiptNumber:  number,
		TransactionID:  tx.ID,
		DeliveryMethod: string(req.DeliveryMethod),
		Delivered:      true,
		Recipient:      recipient,
	})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	id := pathID(r)

	s.mu.Lock()
	rc, ok := s.receipts[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, domain.ReceiptDetailEnvelope{Status: "success", Data: *rc})
}

func (s *Server) handleReceiptsForTransaction(w http.ResponseWriter, r *http.Request) {
	if s.failInjected(w) {
		return
	}
	txID := pathID(r)

	s.mu.Lock()
	out := []domain.ReceiptDetail{}
	for id := int64(1); id <= s.nextRcptID; id++ {
		if rc, ok := s.receipts[id]; ok && rc.TransactionID == txID {
			out = append(out, *rc)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, domain.ReceiptListEnvelope{Status: "success", Data: out})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
		"code":    strconv.Itoa(status),
	})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}
