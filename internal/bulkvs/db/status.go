package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

// SyncState is the lifecycle state of a resource type's reconciliation.
type SyncState string

const (
	// StateIdle means no reconciliation has run yet (or the lease was
	// force-cleared).
	StateIdle SyncState = "idle"

	// StateInProgress means a lease is held and a reconciliation is
	// (or appears to be) running.
	StateInProgress SyncState = "in_progress"

	// StateSucceeded means the most recent reconciliation completed.
	StateSucceeded SyncState = "succeeded"

	// StateFailed means the most recent reconciliation aborted; see
	// SyncStatus.LastError.
	StateFailed SyncState = "failed"
)

// SyncStatus is a read-only snapshot of one resource type's sync row.
type SyncStatus struct {
	ResourceType      schema.ResourceType
	State             SyncState
	LeaseToken        string
	LeaseStartedAt    time.Time
	LeaseEndedAt      time.Time
	AcknowledgedCount int
	ObservedCount     int
	LastError         string
}

// GetSyncStatus returns the sync status for a resource type.
//
// If no reconciliation has ever been attempted the row doesn't exist
// yet; an idle zero-count status is returned rather than an error, so
// cold-cache callers don't need fallback logic.
func (db *DB) GetSyncStatus(ctx context.Context, rt schema.ResourceType) (*SyncStatus, error) {
	query := `
	SELECT state, lease_token, lease_started_at, lease_ended_at,
	       acknowledged_count, observed_count, last_error
	FROM sync_status
	WHERE resource_type = ?
	`

	var (
		st                 SyncStatus
		state              string
		startedMs, endedMs int64
	)
	err := db.conn.QueryRowContext(ctx, query, string(rt)).Scan(
		&state,
		&st.LeaseToken,
		&startedMs,
		&endedMs,
		&st.AcknowledgedCount,
		&st.ObservedCount,
		&st.LastError,
	)
	if err == sql.ErrNoRows {
		return &SyncStatus{ResourceType: rt, State: StateIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync status: %w", err)
	}

	st.ResourceType = rt
	st.State = SyncState(state)
	st.LeaseStartedAt = msToTime(startedMs)
	st.LeaseEndedAt = msToTime(endedMs)
	return &st, nil
}

// AcquireLease attempts the atomic lease acquisition for a resource type.
//
// The acquisition is a single compare-and-set UPDATE: it succeeds when
// the row is not in_progress, or when it is but the previous lease
// started before staleBefore (the crashed-holder case). Checking the
// affected-row count is what closes the window where two workers both
// observe "not busy" and both proceed.
//
// Returns true if the lease was granted to token.
func (db *DB) AcquireLease(ctx context.Context, rt schema.ResourceType, token string, now, staleBefore time.Time) (bool, error) {
	// Lazily create the status row on first attempt.
	insert := `INSERT INTO sync_status (resource_type) VALUES (?) ON CONFLICT(resource_type) DO NOTHING`
	if _, err := db.conn.ExecContext(ctx, insert, string(rt)); err != nil {
		return false, fmt.Errorf("failed to ensure sync status row: %w", err)
	}

	update := `
	UPDATE sync_status
	SET state = ?, lease_token = ?, lease_started_at = ?, lease_ended_at = 0
	WHERE resource_type = ?
	  AND (state != ? OR lease_started_at < ?)
	`

	res, err := db.conn.ExecContext(ctx, update,
		string(StateInProgress),
		token,
		now.UnixMilli(),
		string(rt),
		string(StateInProgress),
		staleBefore.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease acquisition result: %w", err)
	}
	return affected == 1, nil
}

// ReleaseLease records the outcome of a reconciliation and clears the
// in-progress state, but only if token still holds the lease. A release
// from a holder whose stale lease was overridden matches zero rows and
// reports false, leaving the new holder's state untouched.
func (db *DB) ReleaseLease(ctx context.Context, rt schema.ResourceType, token string, success bool, endedAt time.Time, observedCount int, message string) (bool, error) {
	var (
		res sql.Result
		err error
	)

	if success {
		query := `
		UPDATE sync_status
		SET state = ?, lease_ended_at = ?, observed_count = ?, last_error = ''
		WHERE resource_type = ? AND lease_token = ? AND state = ?
		`
		res, err = db.conn.ExecContext(ctx, query,
			string(StateSucceeded), endedAt.UnixMilli(), observedCount,
			string(rt), token, string(StateInProgress))
	} else {
		query := `
		UPDATE sync_status
		SET state = ?, lease_ended_at = ?, last_error = ?
		WHERE resource_type = ? AND lease_token = ? AND state = ?
		`
		res, err = db.conn.ExecContext(ctx, query,
			string(StateFailed), endedAt.UnixMilli(), message,
			string(rt), token, string(StateInProgress))
	}
	if err != nil {
		return false, fmt.Errorf("failed to release lease: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease release result: %w", err)
	}
	return affected == 1, nil
}

// ForceClearLease unconditionally clears the in-progress flag for a
// resource type. This is the operator escape hatch for a wedged lease;
// normal code paths release through ReleaseLease.
func (db *DB) ForceClearLease(ctx context.Context, rt schema.ResourceType) error {
	query := `UPDATE sync_status SET state = ?, lease_token = '' WHERE resource_type = ?`
	if _, err := db.conn.ExecContext(ctx, query, string(StateIdle), string(rt)); err != nil {
		return fmt.Errorf("failed to force clear lease: %w", err)
	}
	return nil
}

// AcknowledgeSyncStatus sets acknowledged_count to the current observed
// count, resetting the "new data available" signal. A missing status row
// (nothing ever synced) is a no-op.
func (db *DB) AcknowledgeSyncStatus(ctx context.Context, rt schema.ResourceType) error {
	query := `UPDATE sync_status SET acknowledged_count = observed_count WHERE resource_type = ?`
	if _, err := db.conn.ExecContext(ctx, query, string(rt)); err != nil {
		return fmt.Errorf("failed to acknowledge sync status: %w", err)
	}
	return nil
}

// msToTime converts stored unix milliseconds to a time.Time.
// Zero means "never" and maps to the zero time.
func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
