// Package api contains the typed resource clients of the POS backend:
// Auth, Transactions, PaymentLinks, Receipts, and Health. Each operation
// is a thin wrapper over the transport with a fixed path and method; the
// error surface of every call is exactly the transport's failure modes.
package api

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("api")
