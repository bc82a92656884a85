package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/config"
	"github.com/retailpulse/trends-etl/pkg/logging"
	"github.com/retailpulse/trends-etl/pkg/models"
	"github.com/retailpulse/trends-etl/pkg/store"
)

// sliceSource serves a fixed record slice, then io.EOF. An injected
// error is returned after the records are exhausted.
type sliceSource struct {
	records []*models.FlatRecord
	pos     int
	err     error
	closed  bool
}

func (s *sliceSource) Next() (*models.FlatRecord, error) {
	if s.pos >= len(s.records) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	record := s.records[s.pos]
	s.pos++
	return record, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func testRunner(policy string) *Runner {
	return NewRunner(&config.PipelineConfig{
		BatchSize:            10,
		CommitTimeoutSeconds: 5,
		ConflictPolicy:       policy,
	}, zap.NewNop())
}

func TestRun_CompletesStarSchemaLoad(t *testing.T) {
	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
		flatRecord(2, "5", "Sandals", "Footwear"),
		flatRecord(3, "9", "Blouse", "Clothing"),
	}}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 2, report.Loaded.Customers)
	assert.Equal(t, 2, report.Loaded.Items)
	assert.Equal(t, 3, report.Loaded.Purchases)
	assert.Equal(t, report.Loaded, report.StoreCounts)
	assert.Empty(t, report.Rejections)
	assert.Equal(t, 1, st.schemaCalls)
	assert.False(t, report.FinishedAt.IsZero())
}

func TestRun_RejectedRecordDoesNotAbortRun(t *testing.T) {
	bad := flatRecord(2, "5", "Blouse", "Clothing")
	bad.PurchaseAmountUSD = "-10.00"

	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
		bad,
		flatRecord(3, "9", "Sandals", "Footwear"),
	}}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 2, report.Loaded.Purchases)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, apperrors.RejectionValidation, report.Rejections[0].Kind)
	assert.Equal(t, "2", report.Rejections[0].Key)
}

func TestRun_RejectionConservation(t *testing.T) {
	badAmount := flatRecord(2, "5", "Blouse", "Clothing")
	badAmount.PurchaseAmountUSD = "free"
	badCustomer := flatRecord(3, "", "Blouse", "Clothing")
	duplicate := flatRecord(1, "5", "Blouse", "Clothing")

	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
		badAmount,
		badCustomer,
		duplicate,
		flatRecord(4, "9", "Sandals", "Footwear"),
	}}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, report.State)
	// Every input record is accounted for exactly once.
	assert.Equal(t, report.TotalRecords, report.RejectedCount()+report.Loaded.Purchases)
	assert.Equal(t, 3, report.RejectedCount())
	assert.Equal(t, 2, report.Loaded.Purchases)
}

func TestRun_FailPolicyAbortsBeforeLoad(t *testing.T) {
	conflicting := flatRecord(2, "5", "Blouse", "Clothing")
	conflicting.Location = "Nevada"

	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
		conflicting,
	}}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.ErrorIs(t, err, apperrors.ErrConsistencyPolicy)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StateExtracting, report.FailedStage)
	assert.NotEmpty(t, report.Err)
	assert.Empty(t, st.batches, "nothing is written when the run fails on consistency")
	assert.Equal(t, 0, st.schemaCalls)
}

func TestRun_OverridePolicyLoadsConflictingRecords(t *testing.T) {
	conflicting := flatRecord(2, "5", "Blouse", "Clothing")
	conflicting.Location = "Nevada"

	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
		conflicting,
	}}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyOverride).Run(context.Background(), src, st)

	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 2, report.Loaded.Purchases)
	assert.Equal(t, 1, report.ConflictsOverridden)
	assert.Empty(t, report.Rejections)
	assert.Equal(t, "Nevada", st.customers[5].Location)
}

func TestRun_OrphanDimensionsNotLoaded(t *testing.T) {
	// Record 2 is well-formed for extraction, so its customer and item
	// enter the extracted sets, but the negative amount rejects it at
	// fact building. Neither entity may reach the store.
	bad := flatRecord(2, "99", "Sandals", "Footwear")
	bad.PurchaseAmountUSD = "-10.00"

	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
		bad,
	}}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 1, report.Loaded.Customers)
	assert.Equal(t, 1, report.Loaded.Items)
	assert.Equal(t, 1, report.Loaded.Purchases)
	require.Len(t, report.Rejections, 1)

	_, ok := st.customers[99]
	assert.False(t, ok, "customer of a fully-rejected record must not load")
	_, ok = st.items[models.ItemKey{Name: "Sandals", Category: "Footwear"}]
	assert.False(t, ok, "item of a fully-rejected record must not load")
	_, ok = st.customers[5]
	assert.True(t, ok)
}

func TestRun_DuplicateFactKeyDimensionsNotLoaded(t *testing.T) {
	// The second record reuses transaction 1 and loses to the earlier
	// one at fact building; its customer and item reference no surviving
	// fact and must not load.
	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
		flatRecord(1, "99", "Sandals", "Footwear"),
	}}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, report.State)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, apperrors.RejectionDuplicateFactKey, report.Rejections[0].Kind)
	assert.Equal(t, 1, report.Loaded.Customers)
	assert.Equal(t, 1, report.Loaded.Items)

	_, ok := st.customers[99]
	assert.False(t, ok)
}

func TestRun_StoreFailureDuringDimensionLoad(t *testing.T) {
	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
	}}
	st := newFakeStore()
	st.failTable = store.TableCustomers

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.ErrorIs(t, err, apperrors.ErrCommitFailed)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StateLoadingDimensions, report.FailedStage)
}

func TestRun_StoreFailureDuringFactLoad(t *testing.T) {
	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
	}}
	st := newFakeStore()
	st.failTable = store.TablePurchases

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.ErrorIs(t, err, apperrors.ErrCommitFailed)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StateLoadingFacts, report.FailedStage)
	// Dimensions committed before the fact failure stay committed.
	assert.Equal(t, 1, report.Loaded.Customers)
	assert.Equal(t, 1, report.Loaded.Items)
}

func TestRun_SourceErrorFailsExtraction(t *testing.T) {
	srcErr := errors.New("truncated input")
	src := &sliceSource{
		records: []*models.FlatRecord{flatRecord(1, "5", "Blouse", "Clothing")},
		err:     srcErr,
	}
	st := newFakeStore()

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.ErrorIs(t, err, srcErr)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StateExtracting, report.FailedStage)
}

func TestRun_CountMismatchFailsRun(t *testing.T) {
	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
	}}
	st := newFakeStore()
	st.counts = map[string]int{
		store.TableCustomers: 1,
		store.TableItems:     1,
		store.TablePurchases: 0,
	}

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.ErrorIs(t, err, apperrors.ErrCountMismatch)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, models.StateLoadingFacts, report.FailedStage)
}

func TestRun_FailureReportRedactsCredentials(t *testing.T) {
	src := &sliceSource{records: []*models.FlatRecord{
		flatRecord(1, "5", "Blouse", "Clothing"),
	}}
	st := newFakeStore()
	st.failTable = store.TableCustomers
	st.failErr = fmt.Errorf("%w: failed to connect to `host=localhost user=trends password=secret123`",
		apperrors.ErrCommitFailed)

	report, err := testRunner(config.ConflictPolicyFail).Run(context.Background(), src, st)

	require.ErrorIs(t, err, apperrors.ErrCommitFailed)
	assert.Equal(t, models.StateFailed, report.State)
	assert.NotContains(t, report.Err, "secret123")
	assert.Contains(t, report.Err, logging.RedactedText)
}

func TestRun_RepeatedRunIsIdempotent(t *testing.T) {
	records := func() []*models.FlatRecord {
		return []*models.FlatRecord{
			flatRecord(1, "5", "Blouse", "Clothing"),
			flatRecord(2, "9", "Sandals", "Footwear"),
		}
	}
	st := newFakeStore()
	runner := testRunner(config.ConflictPolicyFail)

	first, err := runner.Run(context.Background(), &sliceSource{records: records()}, st)
	require.NoError(t, err)

	second, err := runner.Run(context.Background(), &sliceSource{records: records()}, st)
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, second.State)
	assert.Equal(t, first.Loaded, second.Loaded)
	assert.Len(t, st.purchases, 2, "re-running the same input does not duplicate rows")
	assert.Len(t, st.customers, 2)
	assert.Len(t, st.items, 2)
}
