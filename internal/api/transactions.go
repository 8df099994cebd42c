package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.opentelemetry.io/otel/attribute"
)

// TransactionsClient reads and creates payment transactions.
type TransactionsClient struct {
	transport *transport.Client
}

// NewTransactionsClient creates a TransactionsClient.
func NewTransactionsClient(t *transport.Client) *TransactionsClient {
	return &TransactionsClient{transport: t}
}

// List fetches one page of transactions, newest first.
func (c *TransactionsClient) List(ctx context.Context, page, perPage int) (*domain.TransactionList, error) {
	ctx, span := tracer.Start(ctx, "Transactions.List")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page), attribute.Int("per_page", perPage))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var list domain.TransactionList
	path := fmt.Sprintf("/transactions?page=%d&per_page=%d", page, perPage)
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, true, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Get fetches a single transaction by ID.
func (c *TransactionsClient) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Transactions.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id))

	var tx domain.Transaction
	path := fmt.Sprintf("/transactions/%d", id)
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, true, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// CreatePayment submits an in-person terminal charge. The amount in req
// must already be integer minor units.
func (c *TransactionsClient) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Transactions.CreatePayment")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("amount", req.Amount),
		attribute.String("currency", req.Currency),
	)

	var tx domain.Transaction
	if err := c.transport.Do(ctx, http.MethodPost, "/transactions/pay", req, true, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Refund refunds a transaction, partially when amount > 0 or fully when
// amount is zero. Status transitions remain backend-driven; the returned
// transaction reflects the new state.
func (c *TransactionsClient) Refund(ctx context.Context, id int64, amount int64, reason string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Transactions.Refund")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", id), attribute.Int64("amount", amount))

	var tx domain.Transaction
	path := fmt.Sprintf("/transactions/%d/refund", id)
	req := domain.RefundRequest{Amount: amount, Reason: reason}
	if err := c.transport.Do(ctx, http.MethodPost, path, req, true, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
