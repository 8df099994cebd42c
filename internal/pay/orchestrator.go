// Package pay drives one payment attempt at a time: it validates operator
// input, converts the amount to integer minor units, picks the resource
// client for the chosen mode, and tracks the attempt through
// Idle → Submitting → (Completed | Failed).
package pay

import (
	"context"
	"strings"
	"sync"

	"github.com/dukapos/pos-core-go/internal/api"
	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/observability"
	"github.com/dukapos/pos-core-go/internal/money"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("pay")

// Mode selects how the payment is collected.
type Mode string

const (
	// ModeTerminal charges the customer's card in person.
	ModeTerminal Mode = "terminal"
	// ModeLink sends the customer an SMS payment link to complete remotely.
	ModeLink Mode = "link"
)

// ParseMode validates a payment mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTerminal, ModeLink:
		return Mode(s), nil
	}
	return "", &domain.ErrValidation{Field: "mode", Message: "mode must be terminal or link"}
}

// State is the orchestrator's position in the current attempt.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Input is the operator-entered payment form. Amount is a decimal string
// ("12.50"); it is converted to minor units here and never transmitted as
// floating point.
type Input struct {
	Mode          Mode
	Amount        string
	Currency      string
	Description   string
	CustomerEmail string
	CustomerPhone string
	CustomerName  string
}

// Result carries the backend object the attempt produced: a Transaction
// for terminal mode or a PaymentLink for link mode.
type Result struct {
	Transaction *domain.Transaction
	Link        *domain.PaymentLink
}

// Orchestrator runs payment attempts with single-flight semantics: at most
// one submission is in flight per instance. Independent instances are not
// serialized against each other.
type Orchestrator struct {
	txs   *api.TransactionsClient
	links *api.PaymentLinksClient

	defaultCurrency string
	metrics         *observability.Metrics
	logger          *zap.Logger

	mu      sync.Mutex
	state   State
	result  *Result
	lastErr error
}

// NewOrchestrator creates an orchestrator in the Idle state.
func NewOrchestrator(txs *api.TransactionsClient, links *api.PaymentLinksClient, defaultCurrency string, metrics *observability.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		txs:             txs,
		links:           links,
		defaultCurrency: defaultCurrency,
		metrics:         metrics,
		logger:          logger,
		state:           StateIdle,
	}
}

// State reports the current attempt state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastResult returns the result of the most recent completed attempt.
func (o *Orchestrator) LastResult() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// LastError returns the error of the most recent failed attempt, unmodified.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Submit runs one payment attempt. While an attempt is in flight, further
// calls return *domain.ErrBusy without touching the network; the caller
// may resubmit after completion, which starts a fresh attempt with a fresh
// idempotency key. Errors are surfaced unmodified and the attempt is never
// retried automatically.
func (o *Orchestrator) Submit(ctx context.Context, in Input) (*Result, error) {
	o.mu.Lock()
	if o.state == StateSubmitting {
		o.mu.Unlock()
		return nil, &domain.ErrBusy{Operation: "payment"}
	}
	o.state = StateSubmitting
	o.result = nil
	o.lastErr = nil
	o.mu.Unlock()

	res, err := o.submit(ctx, in)

	o.mu.Lock()
	if err != nil {
		o.state = StateFailed
		o.lastErr = err
	} else {
		o.state = StateCompleted
		o.result = res
	}
	o.mu.Unlock()

	o.metrics.IncrPayment(string(in.Mode), outcome(err))
	return res, err
}

func (o *Orchestrator) submit(ctx context.Context, in Input) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pay.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("mode", string(in.Mode)))

	// Client-side validation: all of this fails locally, before any
	// network round trip.
	mode, err := ParseMode(string(in.Mode))
	if err != nil {
		return nil, err
	}

	amount, err := money.ToMinorUnits(in.Amount)
	if err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = o.defaultCurrency
	}
	currency, err = money.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	if mode == ModeLink && strings.TrimSpace(in.CustomerPhone) == "" {
		return nil, &domain.ErrValidation{
			Field:   "customer_phone",
			Message: "customer phone is required to send a payment link",
		}
	}

	// One idempotency key per attempt: a double-click reaches the backend
	// as the same logical payment.
	key := uuid.NewString()

	switch mode {
	case ModeTerminal:
		tx, err := o.txs.CreatePayment(ctx, &domain.PaymentRequest{
			Amount:         amount,
			Currency:       currency,
			Description:    in.Description,
			CustomerEmail:  in.CustomerEmail,
			CustomerPhone:  in.CustomerPhone,
			IdempotencyKey: key,
		})
		if err != nil {
			o.logger.Warn("payment failed",
				zap.String("mode", string(mode)),
				zap.Int64("amount", amount),
				zap.Error(err),
			)
			return nil, err
		}
		o.logger.Info("payment completed",
			zap.Int64("transaction_id", tx.ID),
			zap.Int64("amount", amount),
			zap.String("currency", currency),
			zap.String("status", string(tx.Status)),
		)
		return &Result{Transaction: tx}, nil

	default: // ModeLink
		link, err := o.links.Create(ctx, &domain.PaymentLinkRequest{
			Amount:         amount,
			Currency:       currency,
			CustomerPhone:  in.CustomerPhone,
			CustomerName:   in.CustomerName,
			Description:    in.Description,
			SendSMS:        true,
			IdempotencyKey: key,
		})
		if err != nil {
			o.logger.Warn("payment link failed",
				zap.Int64("amount", amount),
				zap.Error(err),
			)
			return nil, err
		}
		o.logger.Info("payment link created",
			zap.Int64("link_id", link.LinkID),
			zap.Int64("amount", amount),
			zap.Bool("sms_sent", link.SMSSent),
		)
		return &Result{Link: link}, nil
	}
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}
