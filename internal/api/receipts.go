package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.opentelemetry.io/otel/attribute"
)

// ReceiptsClient triggers receipt delivery and reads stored receipts.
type ReceiptsClient struct {
	transport *transport.Client
}

// NewReceiptsClient creates a ReceiptsClient.
func NewReceiptsClient(t *transport.Client) *ReceiptsClient {
	return &ReceiptsClient{transport: t}
}

// Generate asks the backend to generate a receipt and deliver it over the
// requested channel. The delivery side effect happens on the backend.
func (c *ReceiptsClient) Generate(ctx context.Context, req *domain.ReceiptRequest) (*domain.ReceiptResponse, error) {
	ctx, span := tracer.Start(ctx, "Receipts.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("transaction.id", req.TransactionID),
		attribute.String("delivery_method", string(req.DeliveryMethod)),
	)

	var resp domain.ReceiptResponse
	if err := c.transport.Do(ctx, http.MethodPost, "/receipts", req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get fetches a stored receipt by ID.
func (c *ReceiptsClient) Get(ctx context.Context, id int64) (*domain.ReceiptDetail, error) {
	ctx, span := tracer.Start(ctx, "Receipts.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("receipt.id", id))

	var env domain.ReceiptDetailEnvelope
	path := fmt.Sprintf("/receipts/%d", id)
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, true, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// ListForTransaction fetches every receipt issued for a transaction.
func (c *ReceiptsClient) ListForTransaction(ctx context.Context, txID int64) ([]domain.ReceiptDetail, error) {
	ctx, span := tracer.Start(ctx, "Receipts.ListForTransaction")
	defer span.End()
	span.SetAttributes(attribute.Int64("transaction.id", txID))

	var env domain.ReceiptListEnvelope
	path := fmt.Sprintf("/receipts/by-transaction/%d", txID)
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, true, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}
