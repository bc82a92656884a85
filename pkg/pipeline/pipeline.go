// Package pipeline implements the transform-and-load core: dimension
// extraction with natural-key deduplication, defensive foreign-key
// resolution, typed fact construction, and a dependency-ordered,
// batched, idempotent load.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/config"
	"github.com/retailpulse/trends-etl/pkg/logging"
	"github.com/retailpulse/trends-etl/pkg/models"
	"github.com/retailpulse/trends-etl/pkg/source"
	"github.com/retailpulse/trends-etl/pkg/store"
)

// Runner executes one pipeline run. Stages are strictly sequential:
// extraction must see every record before resolution starts, and every
// dimension batch must commit before the first fact batch is written.
type Runner struct {
	policy        ConflictPolicy
	batchSize     int
	commitTimeout time.Duration
	logger        *zap.Logger
}

// NewRunner creates a runner from the pipeline configuration.
func NewRunner(cfg *config.PipelineConfig, logger *zap.Logger) *Runner {
	return &Runner{
		policy:        ConflictPolicy(cfg.ConflictPolicy),
		batchSize:     cfg.BatchSize,
		commitTimeout: cfg.CommitTimeout(),
		logger:        logger,
	}
}

// Run drains the record source, transforms the snapshot into the star
// schema and loads it through st. The returned report is never nil: it
// carries either the Completed state with exact per-table counts and
// the rejection list, or the Failed state with the stage reached and
// the triggering error. The caller owns the store and source lifetimes.
func (r *Runner) Run(ctx context.Context, src source.RecordSource, st store.RelationalStore) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.New(),
		State:     models.StateNotStarted,
		StartedAt: time.Now(),
	}
	logger := r.logger.With(zap.String("run_id", report.RunID.String()))
	logger.Info("Starting pipeline run",
		zap.String("conflict_policy", string(r.policy)),
		zap.Int("batch_size", r.batchSize))

	// Extracting
	report.State = models.StateExtracting
	records, err := drain(src)
	if err != nil {
		return report, r.fail(report, logger, err)
	}
	report.TotalRecords = len(records)

	extractor := NewExtractor(r.policy, logger)
	extracted := extractor.Extract(records)
	report.Rejections = append(report.Rejections, extracted.Rejections...)
	report.ConflictsOverridden = extracted.ConflictsOverridden

	if r.policy == ConflictFail && extracted.HasConsistencyRejections() {
		return report, r.fail(report, logger, apperrors.ErrConsistencyPolicy)
	}
	logger.Info("Extraction complete",
		zap.Int("records", len(records)),
		zap.Int("customers", len(extracted.Sets.customerOrder)),
		zap.Int("items", len(extracted.Sets.itemOrder)),
		zap.Int("rejected", len(extracted.Rejections)))

	// Resolving
	report.State = models.StateResolving
	resolver := NewResolver(extracted.Sets)
	type resolved struct {
		record *models.FlatRecord
		ref    ReferencePair
	}
	pairs := make([]resolved, 0, len(extracted.Survivors))
	for _, record := range extracted.Survivors {
		ref, rejection := resolver.Resolve(record)
		if rejection != nil {
			report.Rejections = append(report.Rejections, rejection)
			continue
		}
		pairs = append(pairs, resolved{record: record, ref: ref})
	}

	// Building
	report.State = models.StateBuilding
	builder := NewFactBuilder()
	purchases := make([]models.Purchase, 0, len(pairs))
	for _, p := range pairs {
		purchase, rejection := builder.Build(p.record, p.ref)
		if rejection != nil {
			report.Rejections = append(report.Rejections, rejection)
			continue
		}
		purchases = append(purchases, *purchase)
	}
	logger.Info("Fact set built",
		zap.Int("facts", len(purchases)),
		zap.Int("rejected_total", report.RejectedCount()))

	// Only dimensions referenced by a surviving fact row load. An entity
	// whose every record was rejected after extraction would otherwise
	// land in the store as an orphan row.
	sets := extracted.Sets.Retain(purchases)

	// Loading
	orchestrator := NewLoadOrchestrator(st, r.batchSize, r.commitTimeout, logger)

	report.State = models.StateLoadingDimensions
	if err := st.CreateSchemaIfAbsent(ctx); err != nil {
		return report, r.fail(report, logger, err)
	}
	dimCounts, err := orchestrator.LoadDimensions(ctx, sets)
	report.Loaded.Customers = dimCounts.Customers
	report.Loaded.Items = dimCounts.Items
	if err != nil {
		return report, r.fail(report, logger, err)
	}

	report.State = models.StateLoadingFacts
	factCount, err := orchestrator.LoadFacts(ctx, purchases)
	report.Loaded.Purchases = factCount
	if err != nil {
		return report, r.fail(report, logger, err)
	}

	report.StoreCounts, err = orchestrator.VerifyCounts(ctx, report.Loaded)
	if err != nil {
		return report, r.fail(report, logger, err)
	}

	report.State = models.StateCompleted
	report.FinishedAt = time.Now()
	logger.Info("Pipeline run completed",
		zap.Int("customers", report.Loaded.Customers),
		zap.Int("items", report.Loaded.Items),
		zap.Int("purchases", report.Loaded.Purchases),
		zap.Int("rejections", report.RejectedCount()),
		zap.Int("conflicts_overridden", report.ConflictsOverridden),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// fail transitions the run to the Failed terminal state, recording the
// stage that was active when the error struck. Already-committed
// batches persist; by idempotence a restart safely reconciles state.
func (r *Runner) fail(report *models.RunReport, logger *zap.Logger, err error) error {
	report.FailedStage = report.State
	report.State = models.StateFailed
	// Store errors can embed the connection string (pgx connect failures
	// do); the report and the log get the sanitized form.
	report.Err = logging.SanitizeError(err)
	report.FinishedAt = time.Now()
	logger.Error("Pipeline run failed",
		zap.String("stage", string(report.FailedStage)),
		zap.String("error", report.Err))
	return fmt.Errorf("run failed during %s: %w", report.FailedStage, err)
}

// drain materializes the lazy, non-restartable record sequence. Both
// extraction and resolution need the full snapshot, so the records are
// read exactly once.
func drain(src source.RecordSource) ([]*models.FlatRecord, error) {
	var records []*models.FlatRecord
	for {
		record, err := src.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record source: %w", err)
		}
		records = append(records, record)
	}
}
