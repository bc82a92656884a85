package pipeline

import "errors"

// Field-level parse failures; wrapped into RecordError reasons by the
// fact builder.
var (
	errUnparsable = errors.New("not a valid number")
	errNegative   = errors.New("must not be negative")
	errOutOfRange = errors.New("outside the valid rating range [0.00, 5.00]")
	errNotBoolean = errors.New("expected a yes/no value")
)
