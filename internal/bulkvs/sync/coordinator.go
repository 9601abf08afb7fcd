package sync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/db"
	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

// StaleLeaseAfter is how long an in-progress lease is honored before a
// new caller may override it. No healthy reconciliation runs anywhere
// near this long; a lease older than this belongs to a crashed worker.
const StaleLeaseAfter = 120 * time.Second

// releaseTimeout bounds the detached status writes a Release performs.
const releaseTimeout = 10 * time.Second

// Lease is the mutual-exclusion token held for one reconciliation
// attempt. It is granted by Coordinator.TryAcquire and must be returned
// through Coordinator.Release.
type Lease struct {
	resourceType schema.ResourceType
	token        string
	acquiredAt   time.Time
}

// ResourceType returns the resource type this lease covers.
func (l *Lease) ResourceType() schema.ResourceType { return l.resourceType }

// Coordinator enforces at-most-one concurrent reconciliation per
// resource type.
//
// The lease lives in the sync_status table and is acquired with an
// atomic compare-and-set UPDATE, so concurrent web workers racing for
// the same resource type cannot both win. A lease whose holder crashed
// is overridden after StaleLeaseAfter; a token check on release keeps
// the crashed holder's late release from clobbering the new lease.
type Coordinator struct {
	db         *db.DB
	staleAfter time.Duration
	now        func() time.Time
	logger     *log.Logger
}

// NewCoordinator creates a Coordinator backed by the cache database.
// If logger is nil, a default logger writing to stderr is used.
func NewCoordinator(database *db.DB, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Coordinator{
		db:         database,
		staleAfter: StaleLeaseAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// TryAcquire attempts to take the reconciliation lease for a resource
// type. Returns (nil, nil) when a live reconciliation already holds it;
// callers treat that as "busy", not an error.
func (c *Coordinator) TryAcquire(ctx context.Context, rt schema.ResourceType) (*Lease, error) {
	token, err := newLeaseToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lease token: %w", err)
	}

	now := c.now()
	granted, err := c.db.AcquireLease(ctx, rt, token, now, now.Add(-c.staleAfter))
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, nil
	}

	return &Lease{resourceType: rt, token: token, acquiredAt: now}, nil
}

// Release records a reconciliation outcome and clears the in-progress
// state.
//
// A stuck lease makes the whole sync feature appear broken until an
// operator intervenes, so release must always eventually clear
// InProgress: if the status write fails, the flag is force-cleared
// directly as a fallback. If the lease token no longer matches (a newer
// caller overrode a stale lease), the release is a deliberate no-op.
func (c *Coordinator) Release(ctx context.Context, lease *Lease, success bool, observedCount int, message string) {
	if lease == nil {
		return
	}

	// By the time a failed pass releases, the caller's context is often
	// already canceled (an aborted request cancels the fetch). The
	// status write that clears InProgress must not die with it, so the
	// release runs detached from the caller's cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	matched, err := c.db.ReleaseLease(ctx, lease.resourceType, lease.token, success, c.now(), observedCount, message)
	if err != nil {
		c.logger.Printf("WARNING: lease release for %s failed (%v), force clearing", lease.resourceType, err)
		if err := c.db.ForceClearLease(ctx, lease.resourceType); err != nil {
			c.logger.Printf("ERROR: force clear for %s failed: %v", lease.resourceType, err)
		}
		return
	}
	if !matched {
		c.logger.Printf("Stale lease release for %s ignored (lease was overridden)", lease.resourceType)
	}
}

// ForceRelease unconditionally clears the in-progress flag. Operator
// escape hatch; the staleness override makes it unnecessary in normal
// operation.
func (c *Coordinator) ForceRelease(ctx context.Context, rt schema.ResourceType) error {
	return c.db.ForceClearLease(ctx, rt)
}

// Status returns a read-only snapshot of the resource type's sync row.
func (c *Coordinator) Status(ctx context.Context, rt schema.ResourceType) (*db.SyncStatus, error) {
	return c.db.GetSyncStatus(ctx, rt)
}

// HasChanges reports whether data has arrived since the caller last
// acknowledged.
//
// This is deliberately count-based: it detects growth and shrink but
// not a same-count substitution within a single pass.
func (c *Coordinator) HasChanges(ctx context.Context, rt schema.ResourceType) (bool, error) {
	status, err := c.db.GetSyncStatus(ctx, rt)
	if err != nil {
		return false, err
	}
	return status.ObservedCount != status.AcknowledgedCount, nil
}

// Acknowledge resets the change baseline to the current observed count.
// Called when the operator dismisses the "new data" banner.
func (c *Coordinator) Acknowledge(ctx context.Context, rt schema.ResourceType) error {
	return c.db.AcknowledgeSyncStatus(ctx, rt)
}

// newLeaseToken returns a random token identifying one lease holder.
func newLeaseToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
