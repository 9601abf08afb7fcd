package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	database, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func testNumber(tn, trunkGroup string) *schema.Number {
	return &schema.Number{
		TN:         tn,
		Status:     "Active",
		RateCenter: "WASHINGTON",
		TrunkGroup: trunkGroup,
		SMS:        true,
		RawJSON:    json.RawMessage(`{"TN":"` + tn + `"}`),
	}
}

func testE911(tn string) *schema.E911Record {
	return &schema.E911Record{
		TN:           tn,
		CallerName:   "Jane Smith",
		AddressLine1: "123 Main St",
		City:         "Washington",
		State:        "DC",
		Zip:          "20001",
		SMSNumbers:   []string{"2025550199"},
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	database := setupTestDB(t)

	if err := database.InitSchema(); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestUpsertNumberPreservesCreatedAt(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	n := testNumber("2025550100", "tg-east")
	if err := database.UpsertNumber(n); err != nil {
		t.Fatalf("failed to upsert number: %v", err)
	}

	first, err := database.GetNumber(ctx, "2025550100")
	if err != nil {
		t.Fatalf("failed to get number: %v", err)
	}

	// Make the second upsert's timestamp distinguishable.
	time.Sleep(10 * time.Millisecond)

	n.Status = "Suspended"
	if err := database.UpsertNumber(n); err != nil {
		t.Fatalf("failed to re-upsert number: %v", err)
	}

	second, err := database.GetNumber(ctx, "2025550100")
	if err != nil {
		t.Fatalf("failed to get number after update: %v", err)
	}

	if second.Status != "Suspended" {
		t.Errorf("Status = %q, want Suspended", second.Status)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on update: %v != %v", second.CreatedAt, first.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updated_at not refreshed: %v <= %v", second.UpdatedAt, first.UpdatedAt)
	}

	count, err := database.CountNumbers(ctx, "")
	if err != nil {
		t.Fatalf("failed to count numbers: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (upsert must not duplicate)", count)
	}
}

func TestUpsertNumberRejectsMissingTN(t *testing.T) {
	database := setupTestDB(t)

	if err := database.UpsertNumber(&schema.Number{Status: "Active"}); err == nil {
		t.Error("upsert without TN should fail")
	}
}

func TestListNumbersOrderAndScope(t *testing.T) {
	database := setupTestDB(t)

	for _, tn := range []string{"2025550102", "2025550100", "2025550101"} {
		if err := database.UpsertNumber(testNumber(tn, "tg-east")); err != nil {
			t.Fatalf("failed to upsert %s: %v", tn, err)
		}
	}
	if err := database.UpsertNumber(testNumber("3035550100", "tg-west")); err != nil {
		t.Fatalf("failed to upsert west number: %v", err)
	}

	all, err := database.ListNumbers("")
	if err != nil {
		t.Fatalf("failed to list numbers: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d numbers, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].TN >= all[i].TN {
			t.Errorf("numbers not ordered by TN: %s before %s", all[i-1].TN, all[i].TN)
		}
	}

	east, err := database.ListNumbers("tg-east")
	if err != nil {
		t.Fatalf("failed to list scoped numbers: %v", err)
	}
	if len(east) != 3 {
		t.Errorf("got %d tg-east numbers, want 3", len(east))
	}
	for _, n := range east {
		if n.TrunkGroup != "tg-east" {
			t.Errorf("scoped list returned trunk group %q", n.TrunkGroup)
		}
	}
}

func TestListNumbersEmptyCache(t *testing.T) {
	database := setupTestDB(t)

	numbers, err := database.ListNumbers("")
	if err != nil {
		t.Fatalf("failed to list empty cache: %v", err)
	}
	if len(numbers) != 0 {
		t.Errorf("got %d numbers from empty cache, want 0", len(numbers))
	}
}

func TestGetNumberNotCached(t *testing.T) {
	database := setupTestDB(t)

	if _, err := database.GetNumber(context.Background(), "2025550100"); err != sql.ErrNoRows {
		t.Errorf("GetNumber on empty cache: error = %v, want sql.ErrNoRows", err)
	}
}

func TestDeleteNumberIdempotent(t *testing.T) {
	database := setupTestDB(t)

	if err := database.UpsertNumber(testNumber("2025550100", "tg-east")); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if err := database.DeleteNumber("2025550100"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if err := database.DeleteNumber("2025550100"); err != nil {
		t.Errorf("second delete should be a no-op, got: %v", err)
	}
}

func TestDeleteNumbersNotInScopedToTrunkGroup(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	for _, tn := range []string{"2025550100", "2025550101", "2025550102"} {
		if err := database.UpsertNumber(testNumber(tn, "tg-east")); err != nil {
			t.Fatalf("failed to upsert %s: %v", tn, err)
		}
	}
	if err := database.UpsertNumber(testNumber("3035550100", "tg-west")); err != nil {
		t.Fatalf("failed to upsert west number: %v", err)
	}

	keep := []string{"2025550100", "2025550103"}
	if err := database.DeleteNumbersNotIn(ctx, "tg-east", keep); err != nil {
		t.Fatalf("failed to purge: %v", err)
	}

	east, err := database.ListNumbers("tg-east")
	if err != nil {
		t.Fatalf("failed to list tg-east: %v", err)
	}
	if len(east) != 1 || east[0].TN != "2025550100" {
		t.Errorf("tg-east after purge = %v, want only 2025550100", tns(east))
	}

	// The other trunk group is untouched.
	west, err := database.ListNumbers("tg-west")
	if err != nil {
		t.Fatalf("failed to list tg-west: %v", err)
	}
	if len(west) != 1 {
		t.Errorf("tg-west lost records to another trunk group's purge: %v", tns(west))
	}
}

func TestDeleteNumbersNotInEmptyKeepIsNoOp(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	if err := database.UpsertNumber(testNumber("2025550100", "tg-east")); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	if err := database.DeleteNumbersNotIn(ctx, "tg-east", nil); err != nil {
		t.Fatalf("empty-keep purge failed: %v", err)
	}

	count, err := database.CountNumbers(ctx, "tg-east")
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("empty keep set wiped the cache: count = %d, want 1", count)
	}
}

func TestClearNumbers(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	if err := database.UpsertNumber(testNumber("2025550100", "tg-east")); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if err := database.ClearNumbers(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}

	count, err := database.CountNumbers(ctx, "")
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("count after clear = %d, want 0", count)
	}
}

func TestUpsertE911RoundTrip(t *testing.T) {
	database := setupTestDB(t)

	rec := testE911("2025550100")
	if err := database.UpsertE911(rec); err != nil {
		t.Fatalf("failed to upsert e911 record: %v", err)
	}

	records, err := database.ListE911()
	if err != nil {
		t.Fatalf("failed to list e911 records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.TN != "2025550100" || got.CallerName != "Jane Smith" {
		t.Errorf("record = %+v", got)
	}
	if got.AddressLine1 != "123 Main St" || got.City != "Washington" || got.State != "DC" || got.Zip != "20001" {
		t.Errorf("address fields = %q %q %q %q", got.AddressLine1, got.City, got.State, got.Zip)
	}
	if len(got.SMSNumbers) != 1 || got.SMSNumbers[0] != "2025550199" {
		t.Errorf("SMSNumbers = %v", got.SMSNumbers)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestDeleteE911NotInTableWide(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	for _, tn := range []string{"2025550100", "2025550101", "2025550102"} {
		if err := database.UpsertE911(testE911(tn)); err != nil {
			t.Fatalf("failed to upsert %s: %v", tn, err)
		}
	}

	if err := database.DeleteE911NotIn(ctx, []string{"2025550101"}); err != nil {
		t.Fatalf("failed to purge: %v", err)
	}

	count, err := database.CountE911(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("count after purge = %d, want 1", count)
	}

	// Empty keep set must not wipe the table.
	if err := database.DeleteE911NotIn(ctx, nil); err != nil {
		t.Fatalf("empty-keep purge failed: %v", err)
	}
	count, err = database.CountE911(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("empty keep set wiped the e911 cache: count = %d", count)
	}
}

func tns(numbers []*schema.Number) []string {
	out := make([]string, len(numbers))
	for i, n := range numbers {
		out[i] = n.TN
	}
	return out
}
