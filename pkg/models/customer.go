package models

// Customer is a row of the dim_customer dimension. The natural key is
// CustomerID alone; exactly one row exists per distinct identifier
// across a run.
type Customer struct {
	CustomerID           int
	Age                  *int // nullable in the source data
	Gender               string
	Location             string
	SubscriptionStatus   string
	FrequencyOfPurchases string
}

// AttributesEqual reports whether two customers with the same natural key
// carry identical attribute values. Used for consistency checking during
// extraction; a mismatch is a data-quality error, never a silent overwrite.
func (c Customer) AttributesEqual(other Customer) bool {
	if (c.Age == nil) != (other.Age == nil) {
		return false
	}
	if c.Age != nil && *c.Age != *other.Age {
		return false
	}
	return c.Gender == other.Gender &&
		c.Location == other.Location &&
		c.SubscriptionStatus == other.SubscriptionStatus &&
		c.FrequencyOfPurchases == other.FrequencyOfPurchases
}
