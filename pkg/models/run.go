package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/retailpulse/trends-etl/pkg/apperrors"
)

// RunState tracks the stage a pipeline run has reached.
type RunState string

const (
	StateNotStarted        RunState = "not_started"
	StateExtracting        RunState = "extracting"
	StateResolving         RunState = "resolving"
	StateBuilding          RunState = "building"
	StateLoadingDimensions RunState = "loading_dimensions"
	StateLoadingFacts      RunState = "loading_facts"
	StateCompleted         RunState = "completed"
	StateFailed            RunState = "failed"
)

// TableCounts holds per-table row counts, either as committed by the
// load orchestrator or as reported back by the store.
type TableCounts struct {
	Customers int
	Items     int
	Purchases int
}

// RunReport is the user-visible outcome of a pipeline run. A run either
// completes with exact table counts and a (possibly empty) rejection
// list, or fails with the stage reached and the triggering error.
type RunReport struct {
	RunID      uuid.UUID
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time

	// FailedStage is the stage during which a failed run aborted; empty
	// for completed runs.
	FailedStage RunState
	// Err describes the fatal error of a failed run; empty otherwise.
	Err string

	TotalRecords int
	Loaded       TableCounts
	// StoreCounts are the counts the relational store reported after the
	// load; Completed requires them to match Loaded.
	StoreCounts TableCounts

	Rejections []*apperrors.RecordError

	// ConflictsOverridden counts dimension attribute conflicts resolved
	// by the override policy. Those records still load; the count is
	// surfaced so the data-quality signal is not lost.
	ConflictsOverridden int
}

// RejectedCount returns the number of records excluded from the fact
// set. Conservation holds for every run:
// RejectedCount + Loaded.Purchases == TotalRecords.
func (r *RunReport) RejectedCount() int {
	return len(r.Rejections)
}
