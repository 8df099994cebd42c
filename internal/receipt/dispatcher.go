// Package receipt drives receipt delivery for a completed transaction:
// channel selection, the dispatch call, and the bounded "sent"
// confirmation window shown to the operator.
package receipt

import (
	"context"
	"sync"
	"time"

	"github.com/dukapos/pos-core-go/internal/api"
	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("receipt")

// State is the dispatcher's position in the current dispatch.
type State string

const (
	StateIdle       State = "idle"
	StateDelivering State = "delivering"
	StateDelivered  State = "delivered"
)

// Dispatcher sends receipts through one delivery channel per dispatch.
// After a successful dispatch it holds Delivered for the presentation
// window, then reverts to Idle on its own. The revert is a display timing
// contract only: it never triggers network traffic. Prior attempts are not
// remembered; a failed dispatch may be retried with any method.
type Dispatcher struct {
	receipts *api.ReceiptsClient
	window   time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu         sync.Mutex
	state      State
	generation int
	onChange   []func(State)
}

// NewDispatcher creates a dispatcher in the Idle state. window bounds how
// long the Delivered confirmation is displayed before auto-reverting.
func NewDispatcher(receipts *api.ReceiptsClient, window time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		receipts: receipts,
		window:   window,
		metrics:  metrics,
		logger:   logger,
		state:    StateIdle,
	}
}

// State reports the current dispatch state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// OnStateChange registers a hook invoked on every transition, including
// the automatic Delivered → Idle revert. Hooks run outside the lock, in
// transition order.
func (d *Dispatcher) OnStateChange(fn func(State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// Dispatch generates and delivers a receipt for a transaction. recipient
// may be empty to use the customer contact stored on the transaction.
// While a dispatch is in flight, further calls return *domain.ErrBusy
// without a network call. On failure the dispatcher returns to Idle and
// the transport error is surfaced unmodified.
func (d *Dispatcher) Dispatch(ctx context.Context, txID int64, method domain.DeliveryMethod, recipient string) (*domain.ReceiptResponse, error) {
	if _, err := domain.ParseDeliveryMethod(string(method)); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.state == StateDelivering {
		d.mu.Unlock()
		return nil, &domain.ErrBusy{Operation: "receipt dispatch"}
	}
	d.generation++
	gen := d.generation
	d.transitionLocked(StateDelivering)

	ctx, span := tracer.Start(ctx, "Receipt.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("transaction.id", txID),
		attribute.String("delivery_method", string(method)),
	)

	resp, err := d.receipts.Generate(ctx, &domain.ReceiptRequest{
		TransactionID:  txID,
		DeliveryMethod: method,
		Recipient:      recipient,
	})

	d.mu.Lock()
	if err != nil {
		d.transitionLocked(StateIdle)
		d.metrics.IncrReceipt(string(method), "failed")
		d.logger.Warn("receipt dispatch failed",
			zap.Int64("transaction_id", txID),
			zap.String("method", string(method)),
			zap.Error(err),
		)
		return nil, err
	}

	d.transitionLocked(StateDelivered)
	d.metrics.IncrReceipt(string(method), "delivered")
	d.logger.Info("receipt delivered",
		zap.Int64("transaction_id", txID),
		zap.String("receipt_number", resp.ReceiptNumber),
		zap.String("method", string(method)),
	)

	// Auto-revert after the presentation window. The generation guard
	// keeps a stale timer from clobbering a newer dispatch.
	time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.generation == gen && d.state == StateDelivered {
			d.transitionLocked(StateIdle)
		} else {
			d.mu.Unlock()
		}
	})

	return resp, nil
}

// transitionLocked sets the state, then releases d.mu and invokes the
// hooks synchronously so subscribers observe transitions in order.
func (d *Dispatcher) transitionLocked(s State) {
	d.state = s
	hooks := make([]func(State), len(d.onChange))
	copy(hooks, d.onChange)
	d.mu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
}
