package domain

// ============================================================
// Payment links — deferred, customer-completed charges
// ============================================================

// PaymentLinkRequest is the body for POST /api/v1/payment-links.
type PaymentLinkRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	CustomerPhone  string `json:"customer_phone"`
	CustomerName   string `json:"customer_name,omitempty"`
	Description    string `json:"description,omitempty"`
	SendSMS        bool   `json:"send_sms"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// PaymentLink is the created link as reported by the backend. The link may
// later produce a Transaction once the remote customer completes payment;
// that is not tracked synchronously by this core.
type PaymentLink struct {
	Status        string `json:"status"`
	LinkID        int64  `json:"link_id"`
	URL           string `json:"url"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	CustomerPhone string `json:"customer_phone"`
	SMSSent       bool   `json:"sms_sent"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// PaymentLinkDetail is the stored link state from GET /api/v1/payment-links/{id}.
type PaymentLinkDetail struct {
	ID            int64  `json:"id"`
	URL           string `json:"url"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	CustomerPhone string `json:"customer_phone"`
	Paid          bool   `json:"paid"`
	SMSSent       bool   `json:"sms_sent"`
	IsExpired     bool   `json:"is_expired"`
	CreatedAt     string `json:"created_at"`
}

// PaymentLinkDetailEnvelope wraps a link detail in the backend's
// {status, data} response format.
type PaymentLinkDetailEnvelope struct {
	Status string            `json:"status"`
	Data   PaymentLinkDetail `json:"data"`
}

// ResendSMSResult is the confirmation from POST /api/v1/payment-links/{id}/resend-sms.
type ResendSMSResult struct {
	Status  string `json:"status"`
	LinkID  int64  `json:"link_id"`
	SMSSent bool   `json:"sms_sent"`
	Message string `json:"message,omitempty"`
}
