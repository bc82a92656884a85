// Package store persists the star schema. The pipeline depends only on
// the RelationalStore interface; Postgres is the production
// implementation.
package store

import (
	"context"

	"github.com/retailpulse/trends-etl/pkg/models"
)

// Star-schema table names accepted by RowCount.
const (
	TableCustomers = "dim_customer"
	TableItems     = "dim_item"
	TablePurchases = "fact_purchase"
)

// RelationalStore is the generic SQL execution surface the load
// orchestrator writes through. Every Upsert call is committed as a
// single transaction, so one call is one batch: a mid-run failure
// leaves only whole committed batches behind.
type RelationalStore interface {
	// CreateSchemaIfAbsent bootstraps the star schema. Idempotent.
	CreateSchemaIfAbsent(ctx context.Context) error

	// Upserts are keyed on the declared primary keys so that re-running
	// a load never produces duplicate rows or constraint failures.
	UpsertCustomers(ctx context.Context, customers []models.Customer) error
	UpsertItems(ctx context.Context, items []models.Item) error
	UpsertPurchases(ctx context.Context, purchases []models.Purchase) error

	// RowCount reports the current number of rows in one of the three
	// star-schema tables.
	RowCount(ctx context.Context, table string) (int, error)

	Close()
}
