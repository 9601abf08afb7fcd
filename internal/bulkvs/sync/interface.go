// Package sync reconciles the local BulkVS cache with full provider
// snapshots.
package sync

import (
	"context"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/db"
	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

// Service is the engine consumed by the poll endpoint and the read
// pages.
//
// One reconciliation pass fetches the provider's full snapshot for a
// resource type, normalizes it, upserts every row into the cache, purges
// rows the provider no longer reports (scoped to the partition that was
// fetched) and records the outcome. The lease held for the duration
// guarantees at most one concurrent reconciliation per resource type.
//
// The service is designed for UI callers: Sync never returns an error,
// only a structured Outcome, and the read paths never fail on an empty
// cache.
type Service interface {
	// Sync runs one reconciliation pass for a resource type.
	//
	// partition scopes the pass for numbers (a trunk group); e911
	// snapshots are unpartitioned and ignore it. If another
	// reconciliation is in flight, Sync returns immediately with a
	// non-success Outcome whose Message says so - busy is a no-op,
	// not a failure.
	//
	// Sync never panics through and never returns an error: every
	// failure mode (fetch, persistence) lands in the Outcome and in
	// the sync status row's last_error.
	Sync(ctx context.Context, rt schema.ResourceType, partition string) Outcome

	// Numbers returns the cached number inventory for a trunk group
	// (all numbers when trunkGroup is empty), ordered by TN.
	//
	// A cold cache triggers a synchronous first sync so the first
	// page load has data. A warm cache is served as-is while a
	// background reconciliation refreshes it for the next poll.
	Numbers(ctx context.Context, trunkGroup string) ([]*schema.Number, error)

	// E911Records returns all cached E911 records, ordered by TN,
	// with the same cold-start and background-refresh behavior as
	// Numbers.
	E911Records(ctx context.Context) ([]*schema.E911Record, error)

	// Status returns the poll snapshot for a resource type: whether
	// fresher data is available, the observed record count, and the
	// most recent attempt's state and error.
	Status(ctx context.Context, rt schema.ResourceType) (*StatusView, error)

	// Acknowledge resets the "new data available" signal for a
	// resource type.
	Acknowledge(ctx context.Context, rt schema.ResourceType) error

	// ForceRelease clears a wedged in-progress flag. Operator escape
	// hatch behind the poll endpoint's force_reset form.
	ForceRelease(ctx context.Context, rt schema.ResourceType) error
}

// Outcome is the structured result of one Sync call.
type Outcome struct {
	// Success is false for busy, fetch and persistence failures alike;
	// Message says which.
	Success bool `json:"success"`

	// NewRecords is the observed count delta against the pre-sync
	// count. Diagnostic only.
	NewRecords int `json:"new_records"`

	// TotalRecords is the record count after the pass (or the last
	// known count when the pass didn't run).
	TotalRecords int `json:"total_records"`

	// Message carries the failure reason when Success is false.
	Message string `json:"message,omitempty"`
}

// StatusView is what the poll endpoint reports to the UI.
type StatusView struct {
	ResourceType  schema.ResourceType `json:"resource_type"`
	State         db.SyncState        `json:"state"`
	HasChanges    bool                `json:"has_changes"`
	TotalRecords  int                 `json:"total_records"`
	LastSyncStart time.Time           `json:"last_sync_start,omitempty"`
	LastSyncEnd   time.Time           `json:"last_sync_end,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
}
