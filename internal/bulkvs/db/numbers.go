package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

// UpsertNumber inserts or updates a number in the cache.
//
// If a record with the same TN exists, its normalized fields and raw
// payload are replaced and updated_at is refreshed; created_at is
// preserved. Safe to call repeatedly with identical input.
func (db *DB) UpsertNumber(n *schema.Number) error {
	return db.UpsertNumberContext(context.Background(), n)
}

// UpsertNumberContext inserts or updates a number with context support.
func (db *DB) UpsertNumberContext(ctx context.Context, n *schema.Number) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}

	raw := string(n.RawJSON)
	if raw == "" {
		raw = "{}"
	}

	now := formatTime(time.Now())

	query := `
	INSERT INTO numbers_cache (
		tn, status, activation_date, rate_center, tier, lidb, reference_id,
		sms, mms, portout_pin, trunk_group, raw_json, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(tn) DO UPDATE SET
		status = excluded.status,
		activation_date = excluded.activation_date,
		rate_center = excluded.rate_center,
		tier = excluded.tier,
		lidb = excluded.lidb,
		reference_id = excluded.reference_id,
		sms = excluded.sms,
		mms = excluded.mms,
		portout_pin = excluded.portout_pin,
		trunk_group = excluded.trunk_group,
		raw_json = excluded.raw_json,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		n.TN,
		n.Status,
		n.ActivationDate,
		n.RateCenter,
		n.Tier,
		n.Lidb,
		n.ReferenceID,
		boolToInt(n.SMS),
		boolToInt(n.MMS),
		n.PortoutPIN,
		n.TrunkGroup,
		raw,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert number %s: %w", n.TN, err)
	}

	return nil
}

// ListNumbers returns cached numbers ordered by TN ascending.
//
// With a non-empty trunkGroup the result is scoped to that trunk group.
// An empty cache yields an empty slice, never an error.
func (db *DB) ListNumbers(trunkGroup string) ([]*schema.Number, error) {
	return db.ListNumbersContext(context.Background(), trunkGroup)
}

// ListNumbersContext returns cached numbers with context support.
func (db *DB) ListNumbersContext(ctx context.Context, trunkGroup string) ([]*schema.Number, error) {
	query := `
	SELECT tn, status, activation_date, rate_center, tier, lidb, reference_id,
	       sms, mms, portout_pin, trunk_group, raw_json, created_at, updated_at
	FROM numbers_cache
	`
	var args []interface{}
	if trunkGroup != "" {
		query += " WHERE trunk_group = ?"
		args = append(args, trunkGroup)
	}
	query += " ORDER BY tn ASC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query numbers: %w", err)
	}
	defer rows.Close()

	return scanNumbers(rows)
}

// GetNumber retrieves a single cached number by TN.
// Returns sql.ErrNoRows if not cached.
func (db *DB) GetNumber(ctx context.Context, tn string) (*schema.Number, error) {
	query := `
	SELECT tn, status, activation_date, rate_center, tier, lidb, reference_id,
	       sms, mms, portout_pin, trunk_group, raw_json, created_at, updated_at
	FROM numbers_cache
	WHERE tn = ?
	`

	rows, err := db.conn.QueryContext(ctx, query, tn)
	if err != nil {
		return nil, fmt.Errorf("failed to query number %s: %w", tn, err)
	}
	defer rows.Close()

	numbers, err := scanNumbers(rows)
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, sql.ErrNoRows
	}
	return numbers[0], nil
}

// DeleteNumber removes a number from the cache.
// Returns nil if the number doesn't exist (idempotent).
func (db *DB) DeleteNumber(tn string) error {
	return db.DeleteNumberContext(context.Background(), tn)
}

// DeleteNumberContext removes a number with context support.
func (db *DB) DeleteNumberContext(ctx context.Context, tn string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM numbers_cache WHERE tn = ?`, tn)
	if err != nil {
		return fmt.Errorf("failed to delete number %s: %w", tn, err)
	}
	return nil
}

// DeleteNumbersNotIn purges every number in trunkGroup whose TN is not in
// keep. This is how numbers the provider no longer reports (disconnects,
// port-outs) leave the cache. The scope is strictly the given trunk
// group, so reconciling one trunk group can never delete another's
// records.
//
// An empty keep set is a no-op: a snapshot with zero rows must not wipe
// the cache.
func (db *DB) DeleteNumbersNotIn(ctx context.Context, trunkGroup string, keep []string) error {
	if len(keep) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keep)), ", ")
	query := `DELETE FROM numbers_cache WHERE trunk_group = ? AND tn NOT IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(keep)+1)
	args = append(args, trunkGroup)
	for _, tn := range keep {
		args = append(args, tn)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to purge stale numbers: %w", err)
	}
	return nil
}

// CountNumbers returns the number of cached numbers, optionally scoped
// to one trunk group.
func (db *DB) CountNumbers(ctx context.Context, trunkGroup string) (int, error) {
	query := `SELECT COUNT(*) FROM numbers_cache`
	var args []interface{}
	if trunkGroup != "" {
		query += " WHERE trunk_group = ?"
		args = append(args, trunkGroup)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count numbers: %w", err)
	}
	return count, nil
}

// ClearNumbers removes every cached number.
func (db *DB) ClearNumbers(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM numbers_cache`); err != nil {
		return fmt.Errorf("failed to clear numbers cache: %w", err)
	}
	return nil
}

// scanNumbers is a helper to scan multiple numbers from query results.
func scanNumbers(rows *sql.Rows) ([]*schema.Number, error) {
	numbers := []*schema.Number{}

	for rows.Next() {
		var n schema.Number
		var sms, mms int
		var raw, createdAt, updatedAt string

		err := rows.Scan(
			&n.TN,
			&n.Status,
			&n.ActivationDate,
			&n.RateCenter,
			&n.Tier,
			&n.Lidb,
			&n.ReferenceID,
			&sms,
			&mms,
			&n.PortoutPIN,
			&n.TrunkGroup,
			&raw,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan number: %w", err)
		}

		n.SMS = sms != 0
		n.MMS = mms != 0
		n.RawJSON = json.RawMessage(raw)
		n.CreatedAt = parseTime(createdAt)
		n.UpdatedAt = parseTime(updatedAt)

		numbers = append(numbers, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating numbers: %w", err)
	}

	return numbers, nil
}

// boolToInt converts a bool to its SQLite integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
