package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/retailpulse/trends-etl/pkg/models"
)

// nonIdentifierChars matches the header characters that get collapsed
// into underscores, e.g. "Purchase Amount (USD)" -> "purchase_amount_usd".
var nonIdentifierChars = regexp.MustCompile(`[^a-z0-9_]+`)

// CSVSource reads flat records from a shopping-trends CSV snapshot.
// Transaction identifiers come from a purchase_transaction_id (or
// transaction_id) column when the file has one, otherwise from the
// 1-based row ordinal.
type CSVSource struct {
	file    *os.File
	reader  *csv.Reader
	columns map[string]int
	ordinal int
}

// OpenCSV opens the snapshot at path and reads its header row.
func OpenCSV(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // ragged rows are handled per-record

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[normalizeHeader(name)] = i
	}

	return &CSVSource{
		file:    file,
		reader:  reader,
		columns: columns,
	}, nil
}

// Next returns the next flat record, or io.EOF after the last row.
func (s *CSVSource) Next() (*models.FlatRecord, error) {
	row, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV row: %w", err)
	}
	s.ordinal++

	record := &models.FlatRecord{
		TransactionID:          s.ordinal,
		CustomerID:             s.field(row, "customer_id"),
		Age:                    s.field(row, "age"),
		Gender:                 s.field(row, "gender"),
		Location:               s.field(row, "location"),
		SubscriptionStatus:     s.field(row, "subscription_status"),
		FrequencyOfPurchases:   s.field(row, "frequency_of_purchases"),
		ItemPurchased:          s.field(row, "item_purchased"),
		Category:               s.field(row, "category"),
		Size:                   s.field(row, "size"),
		Color:                  s.field(row, "color"),
		Season:                 s.field(row, "season"),
		PurchaseAmountUSD:      s.field(row, "purchase_amount_usd"),
		ReviewRating:           s.field(row, "review_rating"),
		PaymentMethod:          s.field(row, "payment_method"),
		ShippingType:           s.field(row, "shipping_type"),
		DiscountApplied:        s.field(row, "discount_applied"),
		PromoCodeUsed:          s.field(row, "promo_code_used"),
		PreviousPurchases:      s.field(row, "previous_purchases"),
		PreferredPaymentMethod: s.field(row, "preferred_payment_method"),
	}

	if raw := s.firstField(row, "purchase_transaction_id", "transaction_id"); raw != "" {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("row %d: malformed transaction id %q: %w", s.ordinal, raw, err)
		}
		record.TransactionID = id
	}

	return record, nil
}

// Close releases the underlying file.
func (s *CSVSource) Close() error {
	return s.file.Close()
}

func (s *CSVSource) field(row []string, name string) string {
	idx, ok := s.columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (s *CSVSource) firstField(row []string, names ...string) string {
	for _, name := range names {
		if v := s.field(row, name); v != "" {
			return v
		}
	}
	return ""
}

// normalizeHeader converts a raw CSV header to snake_case, e.g.
// "Purchase Amount (USD)" -> "purchase_amount_usd".
func normalizeHeader(name string) string {
	normalized := nonIdentifierChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(normalized, "_")
}

var _ RecordSource = (*CSVSource)(nil)
