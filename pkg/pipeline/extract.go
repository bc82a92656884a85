package pipeline

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/config"
	"github.com/retailpulse/trends-etl/pkg/models"
)

// ConflictPolicy decides what happens when duplicate source rows
// disagree on dimension attribute values for the same natural key.
type ConflictPolicy string

const (
	// ConflictFail rejects the conflicting record and fails the run once
	// extraction completes.
	ConflictFail ConflictPolicy = ConflictPolicy(config.ConflictPolicyFail)
	// ConflictOverride keeps the later value and logs a warning; the
	// record still loads.
	ConflictOverride ConflictPolicy = ConflictPolicy(config.ConflictPolicyOverride)
)

// DimensionSets holds the deduplicated dimension entities extracted
// from one record snapshot, with first-seen ordering preserved for the
// load phase.
type DimensionSets struct {
	customers     map[int]models.Customer
	customerOrder []int
	items         map[models.ItemKey]models.Item
	itemOrder     []models.ItemKey
}

// Customer looks up a customer entity by its natural key.
func (s *DimensionSets) Customer(id int) (models.Customer, bool) {
	c, ok := s.customers[id]
	return c, ok
}

// Item looks up an item entity by its natural key.
func (s *DimensionSets) Item(key models.ItemKey) (models.Item, bool) {
	i, ok := s.items[key]
	return i, ok
}

// Customers returns the customer entities in first-seen order.
func (s *DimensionSets) Customers() []models.Customer {
	out := make([]models.Customer, 0, len(s.customerOrder))
	for _, id := range s.customerOrder {
		out = append(out, s.customers[id])
	}
	return out
}

// Items returns the item entities in first-seen order.
func (s *DimensionSets) Items() []models.Item {
	out := make([]models.Item, 0, len(s.itemOrder))
	for _, key := range s.itemOrder {
		out = append(out, s.items[key])
	}
	return out
}

// Retain returns a copy of the sets restricted to the dimension keys
// referenced by the given fact rows, preserving first-seen order. An
// entity whose every source record was rejected downstream is dropped,
// so the loaded Customer and Item rows match the distinct keys of the
// non-rejected records exactly.
func (s *DimensionSets) Retain(purchases []models.Purchase) *DimensionSets {
	wantCustomer := make(map[int]bool, len(purchases))
	wantItem := make(map[models.ItemKey]bool, len(purchases))
	for _, p := range purchases {
		wantCustomer[p.CustomerID] = true
		wantItem[p.ItemKey()] = true
	}

	retained := &DimensionSets{
		customers: make(map[int]models.Customer, len(wantCustomer)),
		items:     make(map[models.ItemKey]models.Item, len(wantItem)),
	}
	for _, id := range s.customerOrder {
		if wantCustomer[id] {
			retained.customers[id] = s.customers[id]
			retained.customerOrder = append(retained.customerOrder, id)
		}
	}
	for _, key := range s.itemOrder {
		if wantItem[key] {
			retained.items[key] = s.items[key]
			retained.itemOrder = append(retained.itemOrder, key)
		}
	}
	return retained
}

// ExtractResult is the outcome of the extraction stage.
type ExtractResult struct {
	Sets *DimensionSets
	// Survivors are the records that passed extraction and proceed to
	// key resolution, in input order.
	Survivors []*models.FlatRecord
	// Rejections holds the records excluded during extraction.
	Rejections []*apperrors.RecordError
	// ConflictsOverridden counts attribute conflicts resolved under the
	// override policy.
	ConflictsOverridden int
}

// Extractor derives the deduplicated Customer and Item dimension sets
// from the flat record sequence in a single pass, keeping first-seen
// attribute values per natural key and checking every subsequent
// occurrence for consistency.
type Extractor struct {
	policy ConflictPolicy
	logger *zap.Logger
}

// NewExtractor creates an extractor with the run's conflict policy.
func NewExtractor(policy ConflictPolicy, logger *zap.Logger) *Extractor {
	return &Extractor{policy: policy, logger: logger}
}

// Extract scans the full record sequence and produces the dimension
// sets. Malformed records are rejected with validation errors and do
// not contribute dimension entities. Under the fail policy, attribute
// conflicts surface as rejections here and the caller fails the run
// after the pass completes; Extract itself has no side effects beyond
// the returned sets.
func (e *Extractor) Extract(records []*models.FlatRecord) *ExtractResult {
	result := &ExtractResult{
		Sets: &DimensionSets{
			customers: make(map[int]models.Customer),
			items:     make(map[models.ItemKey]models.Item),
		},
	}

	for _, record := range records {
		customer, item, rejection := e.entitiesFrom(record)
		if rejection != nil {
			result.Rejections = append(result.Rejections, rejection)
			continue
		}

		if rejection := e.mergeCustomer(result, record, customer); rejection != nil {
			result.Rejections = append(result.Rejections, rejection)
			continue
		}
		if rejection := e.mergeItem(result, record, item); rejection != nil {
			result.Rejections = append(result.Rejections, rejection)
			continue
		}

		result.Survivors = append(result.Survivors, record)
	}

	return result
}

// entitiesFrom parses the dimension-relevant fields of one record.
func (e *Extractor) entitiesFrom(record *models.FlatRecord) (models.Customer, models.Item, *apperrors.RecordError) {
	var none models.Customer
	txnKey := strconv.Itoa(record.TransactionID)

	customerID, err := strconv.Atoi(strings.TrimSpace(record.CustomerID))
	if err != nil {
		return none, models.Item{}, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"missing or malformed customer id %q", record.CustomerID)
	}

	var age *int
	if record.Age != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(record.Age))
		if err != nil || parsed < 0 {
			return none, models.Item{}, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
				"malformed age %q", record.Age)
		}
		age = &parsed
	}

	if record.ItemPurchased == "" || record.Category == "" {
		return none, models.Item{}, apperrors.NewRecordError(apperrors.RejectionValidation, txnKey,
			"item name and category are required, got %q/%q", record.ItemPurchased, record.Category)
	}

	customer := models.Customer{
		CustomerID:           customerID,
		Age:                  age,
		Gender:               record.Gender,
		Location:             record.Location,
		SubscriptionStatus:   record.SubscriptionStatus,
		FrequencyOfPurchases: record.FrequencyOfPurchases,
	}
	item := models.Item{
		Name:     record.ItemPurchased,
		Category: record.Category,
		Size:     record.Size,
		Color:    record.Color,
		Season:   record.Season,
	}
	return customer, item, nil
}

func (e *Extractor) mergeCustomer(result *ExtractResult, record *models.FlatRecord, customer models.Customer) *apperrors.RecordError {
	existing, seen := result.Sets.customers[customer.CustomerID]
	if !seen {
		result.Sets.customers[customer.CustomerID] = customer
		result.Sets.customerOrder = append(result.Sets.customerOrder, customer.CustomerID)
		return nil
	}
	if existing.AttributesEqual(customer) {
		return nil
	}

	key := strconv.Itoa(customer.CustomerID)
	if e.policy == ConflictOverride {
		result.Sets.customers[customer.CustomerID] = customer
		result.ConflictsOverridden++
		e.logger.Warn("Customer attribute conflict overridden by later record",
			zap.Int("customer_id", customer.CustomerID),
			zap.Int("transaction_id", record.TransactionID))
		return nil
	}
	return apperrors.NewRecordError(apperrors.RejectionConsistency, key,
		"conflicting attribute values for customer %d (transaction %d)", customer.CustomerID, record.TransactionID)
}

func (e *Extractor) mergeItem(result *ExtractResult, record *models.FlatRecord, item models.Item) *apperrors.RecordError {
	key := item.Key()
	existing, seen := result.Sets.items[key]
	if !seen {
		result.Sets.items[key] = item
		result.Sets.itemOrder = append(result.Sets.itemOrder, key)
		return nil
	}
	if existing.AttributesEqual(item) {
		return nil
	}

	if e.policy == ConflictOverride {
		result.Sets.items[key] = item
		result.ConflictsOverridden++
		e.logger.Warn("Item attribute conflict overridden by later record",
			zap.String("item", key.String()),
			zap.Int("transaction_id", record.TransactionID))
		return nil
	}
	return apperrors.NewRecordError(apperrors.RejectionConsistency, key.String(),
		"conflicting attribute values for item %s (transaction %d)", key, record.TransactionID)
}

// HasConsistencyRejections reports whether extraction recorded any
// consistency violations; under the fail policy the run must not
// proceed past extraction when it did.
func (r *ExtractResult) HasConsistencyRejections() bool {
	for _, rej := range r.Rejections {
		if rej.Kind == apperrors.RejectionConsistency {
			return true
		}
	}
	return false
}
