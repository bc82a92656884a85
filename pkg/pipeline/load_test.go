package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/models"
	"github.com/retailpulse/trends-etl/pkg/store"
)

// fakeStore records the batches it receives in submission order and
// keeps upserted rows keyed by primary key, mirroring the idempotence
// semantics of the real store.
type fakeStore struct {
	schemaCalls int
	batches     []string

	customers map[int]models.Customer
	items     map[models.ItemKey]models.Item
	purchases map[int]models.Purchase

	failTable string // table whose writes fail, "" for none
	failErr   error  // error returned for failTable, ErrCommitFailed if nil
	counts    map[string]int
}

func (f *fakeStore) failure() error {
	if f.failErr != nil {
		return f.failErr
	}
	return apperrors.ErrCommitFailed
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers: make(map[int]models.Customer),
		items:     make(map[models.ItemKey]models.Item),
		purchases: make(map[int]models.Purchase),
	}
}

func (f *fakeStore) CreateSchemaIfAbsent(ctx context.Context) error {
	f.schemaCalls++
	return nil
}

func (f *fakeStore) UpsertCustomers(ctx context.Context, customers []models.Customer) error {
	if f.failTable == store.TableCustomers {
		return f.failure()
	}
	f.batches = append(f.batches, fmt.Sprintf("%s:%d", store.TableCustomers, len(customers)))
	for _, c := range customers {
		f.customers[c.CustomerID] = c
	}
	return nil
}

func (f *fakeStore) UpsertItems(ctx context.Context, items []models.Item) error {
	if f.failTable == store.TableItems {
		return f.failure()
	}
	f.batches = append(f.batches, fmt.Sprintf("%s:%d", store.TableItems, len(items)))
	for _, i := range items {
		f.items[i.Key()] = i
	}
	return nil
}

func (f *fakeStore) UpsertPurchases(ctx context.Context, purchases []models.Purchase) error {
	if f.failTable == store.TablePurchases {
		return f.failure()
	}
	f.batches = append(f.batches, fmt.Sprintf("%s:%d", store.TablePurchases, len(purchases)))
	for _, p := range purchases {
		if _, ok := f.customers[p.CustomerID]; !ok {
			return fmt.Errorf("%w: fact references missing customer %d", apperrors.ErrCommitFailed, p.CustomerID)
		}
		if _, ok := f.items[p.ItemKey()]; !ok {
			return fmt.Errorf("%w: fact references missing item %s", apperrors.ErrCommitFailed, p.ItemKey())
		}
		f.purchases[p.TransactionID] = p
	}
	return nil
}

func (f *fakeStore) RowCount(ctx context.Context, table string) (int, error) {
	if f.counts != nil {
		return f.counts[table], nil
	}
	switch table {
	case store.TableCustomers:
		return len(f.customers), nil
	case store.TableItems:
		return len(f.items), nil
	case store.TablePurchases:
		return len(f.purchases), nil
	}
	return 0, fmt.Errorf("unknown table %q", table)
}

func (f *fakeStore) Close() {}

var _ store.RelationalStore = (*fakeStore)(nil)

func testOrchestrator(st store.RelationalStore, batchSize int) *LoadOrchestrator {
	return NewLoadOrchestrator(st, batchSize, time.Second, zap.NewNop())
}

func TestLoadDimensions_BatchesRespectBound(t *testing.T) {
	records := make([]*models.FlatRecord, 0, 5)
	for i := 1; i <= 5; i++ {
		records = append(records, flatRecord(i, fmt.Sprintf("%d", i), fmt.Sprintf("Item%d", i), "Clothing"))
	}
	sets := extractedSets(t, records...)

	st := newFakeStore()
	counts, err := testOrchestrator(st, 2).LoadDimensions(context.Background(), sets)

	require.NoError(t, err)
	assert.Equal(t, 5, counts.Customers)
	assert.Equal(t, 5, counts.Items)
	// 5 rows per table at batch size 2: 3 customer batches then 3 item batches.
	assert.Equal(t, []string{
		"dim_customer:2", "dim_customer:2", "dim_customer:1",
		"dim_item:2", "dim_item:2", "dim_item:1",
	}, st.batches)
}

func TestLoadFacts_AfterDimensions(t *testing.T) {
	sets := extractedSets(t, flatRecord(1, "5", "Blouse", "Clothing"))
	st := newFakeStore()
	orchestrator := testOrchestrator(st, 10)

	_, err := orchestrator.LoadDimensions(context.Background(), sets)
	require.NoError(t, err)

	purchase, rejection := NewFactBuilder().Build(flatRecord(1, "5", "Blouse", "Clothing"), ReferencePair{
		CustomerID: 5,
		Item:       models.ItemKey{Name: "Blouse", Category: "Clothing"},
	})
	require.Nil(t, rejection)

	loaded, err := orchestrator.LoadFacts(context.Background(), []models.Purchase{*purchase})
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, []string{"dim_customer:1", "dim_item:1", "fact_purchase:1"}, st.batches)
}

func TestLoadDimensions_PropagatesCommitFailure(t *testing.T) {
	sets := extractedSets(t, flatRecord(1, "5", "Blouse", "Clothing"))
	st := newFakeStore()
	st.failTable = store.TableItems

	counts, err := testOrchestrator(st, 10).LoadDimensions(context.Background(), sets)

	require.ErrorIs(t, err, apperrors.ErrCommitFailed)
	assert.Equal(t, 1, counts.Customers, "customer batch committed before the item failure")
	assert.Equal(t, 0, counts.Items)
}

func TestVerifyCounts(t *testing.T) {
	st := newFakeStore()
	st.counts = map[string]int{
		store.TableCustomers: 2,
		store.TableItems:     2,
		store.TablePurchases: 3,
	}
	orchestrator := testOrchestrator(st, 10)

	committed := models.TableCounts{Customers: 2, Items: 2, Purchases: 3}
	reported, err := orchestrator.VerifyCounts(context.Background(), committed)
	require.NoError(t, err)
	assert.Equal(t, committed, reported)

	st.counts[store.TablePurchases] = 2
	_, err = orchestrator.VerifyCounts(context.Background(), committed)
	require.ErrorIs(t, err, apperrors.ErrCountMismatch)
}
