package domain

import "time"

// TransactionStatus is the backend-driven lifecycle state of a transaction.
// Status transitions are observed, never mutated locally.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Transaction is a payment transaction as reported by the backend.
// Amounts are integer minor currency units end-to-end.
type Transaction struct {
	ID                int64             `json:"id"`
	ExternalReference string            `json:"stripe_payment_intent_id,omitempty"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	PaymentMethod     string            `json:"payment_method,omitempty"`
	CardBrand         string            `json:"card_brand,omitempty"`
	CardLast4         string            `json:"card_last4,omitempty"`
	CustomerEmail     string            `json:"customer_email,omitempty"`
	CustomerPhone     string            `json:"customer_phone,omitempty"`
	Description       string            `json:"description,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         *time.Time        `json:"updated_at,omitempty"`
	AmountDisplay     string            `json:"amount_display,omitempty"`
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// TransactionList is the envelope for GET /api/v1/transactions.
type TransactionList struct {
	Status     string        `json:"status"`
	Data       []Transaction `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// PaymentRequest is the body for POST /api/v1/transactions/pay.
// Amount must already be converted to integer minor units.
type PaymentRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RefundRequest is the body for POST /api/v1/transactions/{id}/refund.
// A zero Amount requests a full refund.
type RefundRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}
