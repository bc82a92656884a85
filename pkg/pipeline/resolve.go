package pipeline

import (
	"strconv"
	"strings"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
	"github.com/retailpulse/trends-etl/pkg/models"
)

// ReferencePair is a validated set of foreign keys for one fact row:
// both keys are guaranteed to exist in the extracted dimension sets.
type ReferencePair struct {
	CustomerID int
	Item       models.ItemKey
}

// Resolver looks up each record's dimension references against the
// extracted sets. A miss is structurally impossible when extraction ran
// over the same records, but malformed or partially-populated rows are
// still checked defensively and rejected rather than silently dropped.
type Resolver struct {
	sets *DimensionSets
}

// NewResolver creates a resolver over the extracted dimension sets.
func NewResolver(sets *DimensionSets) *Resolver {
	return &Resolver{sets: sets}
}

// Resolve validates one record's foreign keys. It returns the resolved
// pair, or a missing-dimension rejection excluding the record from the
// fact set.
func (r *Resolver) Resolve(record *models.FlatRecord) (ReferencePair, *apperrors.RecordError) {
	txnKey := strconv.Itoa(record.TransactionID)

	customerID, err := strconv.Atoi(strings.TrimSpace(record.CustomerID))
	if err != nil {
		return ReferencePair{}, apperrors.NewRecordError(apperrors.RejectionMissingDimension, txnKey,
			"customer reference %q is not a valid identifier", record.CustomerID)
	}
	if _, ok := r.sets.Customer(customerID); !ok {
		return ReferencePair{}, apperrors.NewRecordError(apperrors.RejectionMissingDimension, txnKey,
			"customer %d is absent from the extracted dimension set", customerID)
	}

	itemKey := models.ItemKey{Name: record.ItemPurchased, Category: record.Category}
	if _, ok := r.sets.Item(itemKey); !ok {
		return ReferencePair{}, apperrors.NewRecordError(apperrors.RejectionMissingDimension, txnKey,
			"item %s is absent from the extracted dimension set", itemKey)
	}

	return ReferencePair{CustomerID: customerID, Item: itemKey}, nil
}
