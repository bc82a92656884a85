package models

// FlatRecord is one denormalized row from the record source, fields kept
// as raw text exactly as the source produced them. Type coercion happens
// downstream: identifier parsing in the dimension extractor, measure
// parsing in the fact builder.
type FlatRecord struct {
	// TransactionID is assigned by the record source (from an explicit
	// ID column, or the 1-based row ordinal when the source has none).
	TransactionID int

	CustomerID           string
	Age                  string
	Gender               string
	Location             string
	SubscriptionStatus   string
	FrequencyOfPurchases string

	ItemPurchased string
	Category      string
	Size          string
	Color         string
	Season        string

	PurchaseAmountUSD      string
	ReviewRating           string
	PaymentMethod          string
	ShippingType           string
	DiscountApplied        string
	PromoCodeUsed          string
	PreviousPurchases      string
	PreferredPaymentMethod string
}
