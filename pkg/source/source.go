// Package source produces the flat transaction records the pipeline
// consumes. The pipeline only depends on the RecordSource interface;
// the CSV implementation is an adapter around the raw snapshot file.
package source

import "github.com/retailpulse/trends-etl/pkg/models"

// RecordSource supplies a lazy, finite, non-restartable sequence of
// flat input records. Next returns io.EOF after the last record.
type RecordSource interface {
	Next() (*models.FlatRecord, error)
	Close() error
}
