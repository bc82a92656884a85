package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/models"
	"github.com/retailpulse/trends-etl/pkg/store"
)

// LoadOrchestrator persists the produced sets to the relational store.
// It owns the write order: every dimension batch commits before the
// first fact batch is issued, which is the only ordering that satisfies
// the store's foreign keys on a cold load. All writes are upserts keyed
// on the declared primary keys, so re-running a load is idempotent.
type LoadOrchestrator struct {
	store         store.RelationalStore
	batchSize     int
	commitTimeout time.Duration
	logger        *zap.Logger
}

// NewLoadOrchestrator creates a load orchestrator writing through the
// given store in batches of batchSize rows, each committed within
// commitTimeout.
func NewLoadOrchestrator(st store.RelationalStore, batchSize int, commitTimeout time.Duration, logger *zap.Logger) *LoadOrchestrator {
	return &LoadOrchestrator{
		store:         st,
		batchSize:     batchSize,
		commitTimeout: commitTimeout,
		logger:        logger,
	}
}

// LoadDimensions writes all Customer rows, then all Item rows, in
// first-seen submission order. It must complete before LoadFacts.
func (l *LoadOrchestrator) LoadDimensions(ctx context.Context, sets *DimensionSets) (models.TableCounts, error) {
	counts := models.TableCounts{}

	customers := sets.Customers()
	for start := 0; start < len(customers); start += l.batchSize {
		batch := customers[start:min(start+l.batchSize, len(customers))]
		if err := l.commitBatch(ctx, func(batchCtx context.Context) error {
			return l.store.UpsertCustomers(batchCtx, batch)
		}); err != nil {
			return counts, fmt.Errorf("customer dimension load: %w", err)
		}
		counts.Customers += len(batch)
	}

	items := sets.Items()
	for start := 0; start < len(items); start += l.batchSize {
		batch := items[start:min(start+l.batchSize, len(items))]
		if err := l.commitBatch(ctx, func(batchCtx context.Context) error {
			return l.store.UpsertItems(batchCtx, batch)
		}); err != nil {
			return counts, fmt.Errorf("item dimension load: %w", err)
		}
		counts.Items += len(batch)
	}

	l.logger.Info("Dimension load complete",
		zap.Int("customers", counts.Customers),
		zap.Int("items", counts.Items))
	return counts, nil
}

// LoadFacts writes the fact rows in submission order. Callers must have
// loaded the dimensions first.
func (l *LoadOrchestrator) LoadFacts(ctx context.Context, purchases []models.Purchase) (int, error) {
	loaded := 0
	for start := 0; start < len(purchases); start += l.batchSize {
		batch := purchases[start:min(start+l.batchSize, len(purchases))]
		if err := l.commitBatch(ctx, func(batchCtx context.Context) error {
			return l.store.UpsertPurchases(batchCtx, batch)
		}); err != nil {
			return loaded, fmt.Errorf("fact load: %w", err)
		}
		loaded += len(batch)
	}

	l.logger.Info("Fact load complete", zap.Int("purchases", loaded))
	return loaded, nil
}

// VerifyCounts asks the store for its post-load row counts and checks
// them against the committed counts. A mismatch fails the run.
func (l *LoadOrchestrator) VerifyCounts(ctx context.Context, committed models.TableCounts) (models.TableCounts, error) {
	reported := models.TableCounts{}
	var err error

	if reported.Customers, err = l.store.RowCount(ctx, store.TableCustomers); err != nil {
		return reported, err
	}
	if reported.Items, err = l.store.RowCount(ctx, store.TableItems); err != nil {
		return reported, err
	}
	if reported.Purchases, err = l.store.RowCount(ctx, store.TablePurchases); err != nil {
		return reported, err
	}

	if reported != committed {
		return reported, fmt.Errorf("%w: committed %+v, store reports %+v",
			apperrors.ErrCountMismatch, committed, reported)
	}
	return reported, nil
}

// commitBatch runs one batch write under the per-batch timeout. Each
// batch commits as a unit; a failure here leaves only the batches that
// already committed, never a partially-written row.
func (l *LoadOrchestrator) commitBatch(ctx context.Context, write func(context.Context) error) error {
	batchCtx, cancel := context.WithTimeout(ctx, l.commitTimeout)
	defer cancel()
	return write(batchCtx)
}
