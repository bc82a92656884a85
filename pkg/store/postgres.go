package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/config"
	"github.com/retailpulse/trends-etl/pkg/database"
	"github.com/retailpulse/trends-etl/pkg/models"
)

const (
	upsertCustomerSQL = `
		INSERT INTO dim_customer (customer_id, age, gender, location, subscription_status, frequency_of_purchases)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id) DO UPDATE SET
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			location = EXCLUDED.location,
			subscription_status = EXCLUDED.subscription_status,
			frequency_of_purchases = EXCLUDED.frequency_of_purchases`

	upsertItemSQL = `
		INSERT INTO dim_item (item_name, category, size, color, season)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_name, category) DO UPDATE SET
			size = EXCLUDED.size,
			color = EXCLUDED.color,
			season = EXCLUDED.season`

	upsertPurchaseSQL = `
		INSERT INTO fact_purchase (purchase_transaction_id, customer_id, item_name, category,
			purchase_amount_usd, review_rating, payment_method, shipping_type,
			discount_applied, promo_code_used, previous_purchases, preferred_payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (purchase_transaction_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			item_name = EXCLUDED.item_name,
			category = EXCLUDED.category,
			purchase_amount_usd = EXCLUDED.purchase_amount_usd,
			review_rating = EXCLUDED.review_rating,
			payment_method = EXCLUDED.payment_method,
			shipping_type = EXCLUDED.shipping_type,
			discount_applied = EXCLUDED.discount_applied,
			promo_code_used = EXCLUDED.promo_code_used,
			previous_purchases = EXCLUDED.previous_purchases,
			preferred_payment_method = EXCLUDED.preferred_payment_method`
)

// PostgresStore implements RelationalStore on a pgx connection pool.
type PostgresStore struct {
	db      *database.DB
	connStr string
	logger  *zap.Logger
}

// NewPostgresStore connects to the configured PostgreSQL instance. The
// connection is the run's only shared external resource; callers must
// release it with Close on every exit path.
func NewPostgresStore(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	return connect(ctx, cfg.ConnectionString(), cfg.MaxConnections, cfg.ConnectTimeout(), logger)
}

// NewPostgresStoreFromURL connects using a full connection string. Used
// by tests that get their connection details from a container.
func NewPostgresStoreFromURL(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStore, error) {
	return connect(ctx, connStr, 0, 0, logger)
}

func connect(ctx context.Context, connStr string, maxConns int32, timeout time.Duration, logger *zap.Logger) (*PostgresStore, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: maxConns,
		ConnectTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	return &PostgresStore{db: db, connStr: connStr, logger: logger}, nil
}

// CreateSchemaIfAbsent applies the embedded star-schema migrations.
// golang-migrate requires database/sql, so a short-lived stdlib
// connection is opened alongside the pool.
func (s *PostgresStore) CreateSchemaIfAbsent(ctx context.Context) error {
	sqlDB, err := sql.Open("pgx", s.connStr)
	if err != nil {
		return fmt.Errorf("%w: failed to open migration connection: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	if err := database.RunMigrations(sqlDB, s.logger); err != nil {
		return fmt.Errorf("failed to bootstrap star schema: %w", err)
	}
	return nil
}

// UpsertCustomers writes one batch of dimension rows in a single
// transaction.
func (s *PostgresStore) UpsertCustomers(ctx context.Context, customers []models.Customer) error {
	batch := &pgx.Batch{}
	for _, c := range customers {
		batch.Queue(upsertCustomerSQL,
			c.CustomerID,
			c.Age,
			nullableString(c.Gender),
			nullableString(c.Location),
			nullableString(c.SubscriptionStatus),
			nullableString(c.FrequencyOfPurchases),
		)
	}
	return s.sendBatch(ctx, batch, "dim_customer")
}

// UpsertItems writes one batch of dimension rows in a single
// transaction.
func (s *PostgresStore) UpsertItems(ctx context.Context, items []models.Item) error {
	batch := &pgx.Batch{}
	for _, i := range items {
		batch.Queue(upsertItemSQL,
			i.Name,
			i.Category,
			nullableString(i.Size),
			nullableString(i.Color),
			nullableString(i.Season),
		)
	}
	return s.sendBatch(ctx, batch, "dim_item")
}

// UpsertPurchases writes one batch of fact rows in a single
// transaction. Callers must have committed the referenced dimension
// rows first or the store's foreign keys reject the batch.
func (s *PostgresStore) UpsertPurchases(ctx context.Context, purchases []models.Purchase) error {
	batch := &pgx.Batch{}
	for _, p := range purchases {
		batch.Queue(upsertPurchaseSQL,
			p.TransactionID,
			p.CustomerID,
			p.ItemName,
			p.Category,
			p.AmountUSD.StringFixed(2),
			p.ReviewRating.StringFixed(2),
			nullableString(p.PaymentMethod),
			nullableString(p.ShippingType),
			p.DiscountApplied,
			p.PromoCodeUsed,
			p.PreviousPurchases,
			nullableString(p.PreferredPaymentMethod),
		)
	}
	return s.sendBatch(ctx, batch, "fact_purchase")
}

// RowCount reports the row count of one of the star-schema tables.
func (s *PostgresStore) RowCount(ctx context.Context, table string) (int, error) {
	switch table {
	case TableCustomers, TableItems, TablePurchases:
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}

	var count int
	if err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// sendBatch executes the queued statements inside one transaction so a
// batch either commits as a whole or not at all.
func (s *PostgresStore) sendBatch(ctx context.Context, batch *pgx.Batch, table string) error {
	if batch.Len() == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction for %s: %v", apperrors.ErrCommitFailed, table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, execErr := results.Exec(); execErr != nil {
			err = execErr
			_ = results.Close()
			return fmt.Errorf("%w: %s row %d: %v", apperrors.ErrCommitFailed, table, i, execErr)
		}
	}
	if err = results.Close(); err != nil {
		return fmt.Errorf("%w: failed to close batch for %s: %v", apperrors.ErrCommitFailed, table, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrCommitFailed, table, err)
	}

	s.logger.Debug("Committed batch",
		zap.String("table", table),
		zap.Int("rows", batch.Len()))
	return nil
}

// nullableString converts empty strings to NULL so optional attributes
// are not persisted as empty text.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ RelationalStore = (*PostgresStore)(nil)
