package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

func TestGetSyncStatusNeverSynced(t *testing.T) {
	database := setupTestDB(t)

	st, err := database.GetSyncStatus(context.Background(), schema.ResourceNumbers)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if st.State != StateIdle {
		t.Errorf("state = %q, want idle", st.State)
	}
	if st.ObservedCount != 0 || st.AcknowledgedCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", st.ObservedCount, st.AcknowledgedCount)
	}
}

func TestAcquireLeaseMutualExclusion(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	staleBefore := now.Add(-120 * time.Second)

	got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-a", now, staleBefore)
	if err != nil {
		t.Fatalf("failed to acquire lease: %v", err)
	}
	if !got {
		t.Fatal("first acquisition should succeed")
	}

	got, err = database.AcquireLease(ctx, schema.ResourceNumbers, "token-b", now, staleBefore)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if got {
		t.Error("second acquisition should be refused while the lease is held")
	}

	// Independent resource types do not contend.
	got, err = database.AcquireLease(ctx, schema.ResourceE911, "token-c", now, staleBefore)
	if err != nil {
		t.Fatalf("e911 acquire errored: %v", err)
	}
	if !got {
		t.Error("e911 acquisition should succeed while numbers is leased")
	}
}

func TestAcquireLeaseConcurrent(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	staleBefore := now.Add(-120 * time.Second)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := database.AcquireLease(ctx, schema.ResourceNumbers, fmt.Sprintf("token-%d", i), now, staleBefore)
			if err != nil {
				t.Errorf("worker %d: acquire errored: %v", i, err)
				return
			}
			if got {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if granted != 1 {
		t.Errorf("%d workers won the lease, want exactly 1", granted)
	}
}

func TestAcquireLeaseStaleOverride(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	// A holder that started three minutes ago and never released.
	crashed := time.Now().Add(-3 * time.Minute)
	got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-dead", crashed, crashed.Add(-120*time.Second))
	if err != nil || !got {
		t.Fatalf("failed to seed crashed lease: got=%v err=%v", got, err)
	}

	now := time.Now()
	got, err = database.AcquireLease(ctx, schema.ResourceNumbers, "token-new", now, now.Add(-120*time.Second))
	if err != nil {
		t.Fatalf("override acquire errored: %v", err)
	}
	if !got {
		t.Fatal("stale lease should be overridable after the staleness window")
	}

	st, err := database.GetSyncStatus(ctx, schema.ResourceNumbers)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if st.LeaseToken != "token-new" {
		t.Errorf("lease token = %q, want token-new", st.LeaseToken)
	}

	// The dead holder's late release must not clobber the new lease.
	matched, err := database.ReleaseLease(ctx, schema.ResourceNumbers, "token-dead", false, time.Now(), 0, "late failure")
	if err != nil {
		t.Fatalf("stale release errored: %v", err)
	}
	if matched {
		t.Error("release with a superseded token should match nothing")
	}

	st, err = database.GetSyncStatus(ctx, schema.ResourceNumbers)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if st.State != StateInProgress {
		t.Errorf("state after stale release = %q, want in_progress", st.State)
	}
}

func TestReleaseLeaseSuccess(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-a", now, now.Add(-120*time.Second)); err != nil || !got {
		t.Fatalf("failed to acquire lease: got=%v err=%v", got, err)
	}

	matched, err := database.ReleaseLease(ctx, schema.ResourceNumbers, "token-a", true, now.Add(time.Second), 42, "")
	if err != nil {
		t.Fatalf("failed to release lease: %v", err)
	}
	if !matched {
		t.Fatal("holder's release should match")
	}

	st, err := database.GetSyncStatus(ctx, schema.ResourceNumbers)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if st.State != StateSucceeded {
		t.Errorf("state = %q, want succeeded", st.State)
	}
	if st.ObservedCount != 42 {
		t.Errorf("observed_count = %d, want 42", st.ObservedCount)
	}
	if st.LastError != "" {
		t.Errorf("last_error = %q, want empty", st.LastError)
	}
	if st.LeaseEndedAt.IsZero() {
		t.Error("lease_ended_at not recorded")
	}
}

func TestReleaseLeaseFailureKeepsObservedCount(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	staleBefore := now.Add(-120 * time.Second)

	// A successful sync followed by a failed one.
	if got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-a", now, staleBefore); err != nil || !got {
		t.Fatalf("failed to acquire lease: got=%v err=%v", got, err)
	}
	if _, err := database.ReleaseLease(ctx, schema.ResourceNumbers, "token-a", true, now, 10, ""); err != nil {
		t.Fatalf("failed to release: %v", err)
	}

	if got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-b", now, staleBefore); err != nil || !got {
		t.Fatalf("failed to re-acquire lease: got=%v err=%v", got, err)
	}
	if _, err := database.ReleaseLease(ctx, schema.ResourceNumbers, "token-b", false, now, 0, "provider unreachable"); err != nil {
		t.Fatalf("failed to release: %v", err)
	}

	st, err := database.GetSyncStatus(ctx, schema.ResourceNumbers)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if st.State != StateFailed {
		t.Errorf("state = %q, want failed", st.State)
	}
	if st.LastError != "provider unreachable" {
		t.Errorf("last_error = %q", st.LastError)
	}
	if st.ObservedCount != 10 {
		t.Errorf("observed_count = %d, want 10 (failure must not overwrite it)", st.ObservedCount)
	}
}

func TestForceClearLease(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	staleBefore := now.Add(-120 * time.Second)

	if got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-wedged", now, staleBefore); err != nil || !got {
		t.Fatalf("failed to acquire lease: got=%v err=%v", got, err)
	}

	if err := database.ForceClearLease(ctx, schema.ResourceNumbers); err != nil {
		t.Fatalf("failed to force clear: %v", err)
	}

	got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-next", now, staleBefore)
	if err != nil {
		t.Fatalf("acquire after force clear errored: %v", err)
	}
	if !got {
		t.Error("acquisition should succeed immediately after a force clear")
	}
}

func TestAcknowledgeSyncStatus(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	staleBefore := now.Add(-120 * time.Second)

	if got, err := database.AcquireLease(ctx, schema.ResourceNumbers, "token-a", now, staleBefore); err != nil || !got {
		t.Fatalf("failed to acquire lease: got=%v err=%v", got, err)
	}
	if _, err := database.ReleaseLease(ctx, schema.ResourceNumbers, "token-a", true, now, 7, ""); err != nil {
		t.Fatalf("failed to release: %v", err)
	}

	st, err := database.GetSyncStatus(ctx, schema.ResourceNumbers)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if st.AcknowledgedCount == st.ObservedCount {
		t.Fatal("counts should differ before acknowledgement")
	}

	if err := database.AcknowledgeSyncStatus(ctx, schema.ResourceNumbers); err != nil {
		t.Fatalf("failed to acknowledge: %v", err)
	}

	st, err = database.GetSyncStatus(ctx, schema.ResourceNumbers)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if st.AcknowledgedCount != 7 {
		t.Errorf("acknowledged_count = %d, want 7", st.AcknowledgedCount)
	}
}

func TestAcknowledgeNeverSyncedNoOp(t *testing.T) {
	database := setupTestDB(t)

	if err := database.AcknowledgeSyncStatus(context.Background(), schema.ResourceE911); err != nil {
		t.Errorf("acknowledging a never-synced type should be a no-op, got: %v", err)
	}
}
