package models

import "github.com/shopspring/decimal"

// Boolean-like flag values after normalization. Anything the fact
// builder cannot map onto these is a validation error.
const (
	FlagYes = "Yes"
	FlagNo  = "No"
)

// Purchase is a row of the fact_purchase table. Foreign keys have been
// resolved against the extracted dimension sets before a Purchase is
// constructed, and measures are parsed and range-checked.
type Purchase struct {
	TransactionID int

	// Foreign keys.
	CustomerID int
	ItemName   string
	Category   string

	// Measures. Monetary and rating values are exact decimals with two
	// fractional digits; float64 would not round-trip DECIMAL(10,2).
	AmountUSD         decimal.Decimal
	ReviewRating      decimal.Decimal
	PreviousPurchases int

	// Pass-through attributes.
	PaymentMethod          string
	ShippingType           string
	DiscountApplied        string // FlagYes or FlagNo
	PromoCodeUsed          string // FlagYes or FlagNo
	PreferredPaymentMethod string
}

// ItemKey returns the purchase's item foreign key.
func (p Purchase) ItemKey() ItemKey {
	return ItemKey{Name: p.ItemName, Category: p.Category}
}
