package pipeline

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/models"
)

// Valid review rating bounds, inclusive.
var (
	minRating = decimal.Zero
	maxRating = decimal.NewFromInt(5)
)

// FactBuilder projects flat records plus their resolved keys into fact
// rows with typed, range-checked measures. It also enforces run-wide
// uniqueness of the transaction identifier.
type FactBuilder struct {
	seen map[int]bool
}

// NewFactBuilder creates a fact builder with an empty duplicate set.
func NewFactBuilder() *FactBuilder {
	return &FactBuilder{seen: make(map[int]bool)}
}

// Build produces one fact row, or a rejection excluding the record.
// Duplicate transaction identifiers reject the later record.
func (b *FactBuilder) Build(record *models.FlatRecord, ref ReferencePair) (*models.Purchase, *apperrors.RecordError) {
	txnKey := strconv.Itoa(record.TransactionID)

	if record.TransactionID <= 0 {
		return nil, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"transaction identifier must be a positive integer")
	}
	if b.seen[record.TransactionID] {
		return nil, apperrors.NewRecordError(apperrors.RejectionDuplicateFactKey, txnKey,
			"transaction identifier already used by an earlier record")
	}

	amount, err := parseMoney(record.PurchaseAmountUSD)
	if err != nil {
		return nil, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"purchase amount %q: %v", record.PurchaseAmountUSD, err)
	}

	rating, err := parseRating(record.ReviewRating)
	if err != nil {
		return nil, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"review rating %q: %v", record.ReviewRating, err)
	}

	previous, err := parseNonNegativeInt(record.PreviousPurchases)
	if err != nil {
		return nil, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"previous purchases %q: %v", record.PreviousPurchases, err)
	}

	discount, err := normalizeFlag(record.DiscountApplied)
	if err != nil {
		return nil, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"discount applied %q: %v", record.DiscountApplied, err)
	}

	promo, err := normalizeFlag(record.PromoCodeUsed)
	if err != nil {
		return nil, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"promo code used %q: %v", record.PromoCodeUsed, err)
	}

	b.seen[record.TransactionID] = true

	return &models.Purchase{
		TransactionID:          record.TransactionID,
		CustomerID:             ref.CustomerID,
		ItemName:               ref.Item.Name,
		Category:               ref.Item.Category,
		AmountUSD:              amount,
		ReviewRating:           rating,
		PreviousPurchases:      previous,
		PaymentMethod:          record.PaymentMethod,
		ShippingType:           record.ShippingType,
		DiscountApplied:        discount,
		PromoCodeUsed:          promo,
		PreferredPaymentMethod: record.PreferredPaymentMethod,
	}, nil
}

// parseMoney parses a non-negative two-decimal monetary value.
func parseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errUnparsable
	}
	if d.IsNegative() {
		return decimal.Zero, errNegative
	}
	return d.Round(2), nil
}

// parseRating parses a two-decimal rating and checks the inclusive
// [0, 5] bounds. The bound check runs on the parsed value, so exactly
// 0 or 5 is accepted and any value beyond either bound is rejected.
func parseRating(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errUnparsable
	}
	if d.LessThan(minRating) || d.GreaterThan(maxRating) {
		return decimal.Zero, errOutOfRange
	}
	return d.Round(2), nil
}

// parseNonNegativeInt coerces a previous-purchases count; an absent
// value counts as zero.
func parseNonNegativeInt(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, errUnparsable
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

// normalizeFlag maps boolean-like text onto the canonical Yes/No
// representation. Any other value is a validation error.
func normalizeFlag(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true":
		return models.FlagYes, nil
	case "no", "n", "false":
		return models.FlagNo, nil
	default:
		return "", errNotBoolean
	}
}
