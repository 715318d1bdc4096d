package migration

import "context"

// MappingTracker is the durable ledger of one outcome per (source key,
// legacy system): the sole source of truth for idempotency, resume mode and
// status reporting.
type MappingTracker interface {
	// Upsert writes the outcome for rec's key, creating the row on first
	// encounter and updating it in place on every later run.
	Upsert(ctx context.Context, rec *MappingRecord) error

	// Find returns the ledger row for the key, or (nil, nil) when the key
	// has never been processed.
	Find(ctx context.Context, sourceKey, legacySystem string) (*MappingRecord, error)

	// AggregateStatus returns cumulative counts per status and per legacy
	// system across all prior runs.
	AggregateStatus(ctx context.Context) (*StatusSummary, error)

	// RecentErrors returns the n most recently processed error records.
	RecentErrors(ctx context.Context, n int) ([]*MappingRecord, error)

	// Count returns the total number of ledger rows.
	Count(ctx context.Context) (int, error)
}

// StatusSummary is the aggregate view behind the status reporting mode.
type StatusSummary struct {
	Total    int
	ByStatus map[MappingStatus]int
	BySystem map[string]int
}
