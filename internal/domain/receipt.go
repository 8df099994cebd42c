package domain

import "fmt"

// DeliveryMethod is the closed set of receipt delivery channels.
type DeliveryMethod string

const (
	DeliverySMS   DeliveryMethod = "sms"
	DeliveryEmail DeliveryMethod = "email"
	DeliveryPrint DeliveryMethod = "print"
)

// ParseDeliveryMethod validates a delivery method string.
func ParseDeliveryMethod(s string) (DeliveryMethod, error) {
	switch DeliveryMethod(s) {
	case DeliverySMS, DeliveryEmail, DeliveryPrint:
		return DeliveryMethod(s), nil
	}
	return "", &ErrValidation{
		Field:   "delivery_method",
		Message: fmt.Sprintf("must be one of sms, email, print (got %q)", s),
	}
}

// ReceiptRequest is the body for POST /api/v1/receipts. It is ephemeral:
// it exists only for the duration of a dispatch call.
type ReceiptRequest struct {
	TransactionID  int64          `json:"transaction_id"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	Recipient      string         `json:"recipient,omitempty"`
}

// ReceiptResponse is the delivery confirmation from the backend.
type ReceiptResponse struct {
	Status         string `json:"status"`
	ReceiptID      int64  `json:"receipt_id"`
	ReceiptNumber  string `json:"receipt_number"`
	TransactionID  int64  `json:"transaction_id"`
	DeliveryMethod string `json:"delivery_method"`
	Delivered      bool   `json:"delivered"`
	Recipient      string `json:"recipient,omitempty"`
	PDFURL         string `json:"pdf_url,omitempty"`
}

// ReceiptDetail is a stored receipt as returned by GET /api/v1/receipts/{id}
// and the by-transaction listing.
type ReceiptDetail struct {
	ID             int64  `json:"id"`
	ReceiptNumber  string `json:"receipt_number"`
	TransactionID  int64  `json:"transaction_id,omitempty"`
	DeliveryMethod string `json:"delivery_method"`
	Delivered      bool   `json:"delivered"`
	Recipient      string `json:"recipient,omitempty"`
	PDFPath        string `json:"pdf_path,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ReceiptDetailEnvelope wraps a receipt detail in {status, data}.
type ReceiptDetailEnvelope struct {
	Status string        `json:"status"`
	Data   ReceiptDetail `json:"data"`
}

// ReceiptListEnvelope wraps the receipts of one transaction.
type ReceiptListEnvelope struct {
	Status string          `json:"status"`
	Data   []ReceiptDetail `json:"data"`
}
