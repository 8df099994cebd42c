// Package service aggregates resource-client reads for the presentation
// shell. The shell renders whatever state these services return; no
// layout or styling concern lives in this module.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dukapos/pos-core-go/internal/api"
	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/observability"
	"github.com/dukapos/pos-core-go/internal/infra/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service")

// Snapshot is one refresh of the dashboard. Seq increases monotonically
// per issued request: when two refreshes race, the caller displays the
// snapshot with the highest Seq and discards the other (last-write-wins).
type Snapshot struct {
	Seq          uint64
	Transactions *domain.TransactionList
	Health       *domain.HealthStatus
	FetchedAt    time.Time
}

// Dashboard fetches the transaction list and the health probe concurrently.
type Dashboard struct {
	txs      *api.TransactionsClient
	health   *api.HealthClient
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger

	seq atomic.Uint64
}

// NewDashboard creates a Dashboard. maxConcurrency bounds how many
// snapshot refreshes may run at once.
func NewDashboard(txs *api.TransactionsClient, health *api.HealthClient, maxConcurrency int, metrics *observability.Metrics, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		txs:      txs,
		health:   health,
		bulkhead: resilience.NewBulkhead(maxConcurrency),
		metrics:  metrics,
		logger:   logger,
	}
}

// Refresh fetches one snapshot. The transaction list is required; the
// health probe is best-effort and left nil when it fails. Concurrent
// refreshes resolve independently and in any order.
func (d *Dashboard) Refresh(ctx context.Context, page, perPage int) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Dashboard.Refresh")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page))

	if err := d.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer d.bulkhead.Release()

	// Seq is taken at issue time so a refresh issued later always wins
	// the display, even if it resolves first.
	snap := &Snapshot{Seq: d.seq.Add(1)}

	start := time.Now()
	defer func() {
		d.metrics.RecordRequestDuration("dashboard", time.Since(start))
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, err := d.txs.List(gCtx, page, perPage)
		if err != nil {
			return fmt.Errorf("transactions fetch: %w", err)
		}
		snap.Transactions = list
		return nil
	})

	g.Go(func() error {
		hs, err := d.health.Check(gCtx)
		if err != nil {
			// Dashboard stays usable without the health badge.
			d.logger.Warn("dashboard: health probe failed", zap.Error(err))
			return nil
		}
		snap.Health = hs
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.FetchedAt = time.Now()
	return snap, nil
}
