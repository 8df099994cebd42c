package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/transport"

	"go.opentelemetry.io/otel/attribute"
)

// PaymentLinksClient creates and inspects SMS-delivered payment links.
type PaymentLinksClient struct {
	transport *transport.Client
}

// NewPaymentLinksClient creates a PaymentLinksClient.
func NewPaymentLinksClient(t *transport.Client) *PaymentLinksClient {
	return &PaymentLinksClient{transport: t}
}

// Create creates a payment link for a remote customer. The amount in req
// must already be integer minor units.
func (c *PaymentLinksClient) Create(ctx context.Context, req *domain.PaymentLinkRequest) (*domain.PaymentLink, error) {
	ctx, span := tracer.Start(ctx, "PaymentLinks.Create")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("amount", req.Amount),
		attribute.Bool("send_sms", req.SendSMS),
	)

	var link domain.PaymentLink
	if err := c.transport.Do(ctx, http.MethodPost, "/payment-links", req, true, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Get fetches link status and details.
func (c *PaymentLinksClient) Get(ctx context.Context, id int64) (*domain.PaymentLinkDetail, error) {
	ctx, span := tracer.Start(ctx, "PaymentLinks.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("link.id", id))

	var env domain.PaymentLinkDetailEnvelope
	path := fmt.Sprintf("/payment-links/%d", id)
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, true, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// ResendSMS re-sends the link SMS, for when the customer did not receive
// the first one.
func (c *PaymentLinksClient) ResendSMS(ctx context.Context, id int64) (*domain.ResendSMSResult, error) {
	ctx, span := tracer.Start(ctx, "PaymentLinks.ResendSMS")
	defer span.End()
	span.SetAttributes(attribute.Int64("link.id", id))

	var result domain.ResendSMSResult
	path := fmt.Sprintf("/payment-links/%d/resend-sms", id)
	if err := c.transport.Do(ctx, http.MethodPost, path, nil, true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
