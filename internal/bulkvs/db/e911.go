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

// UpsertE911 inserts or updates an E911 record in the cache.
// Identity and timestamp semantics match UpsertNumber.
func (db *DB) UpsertE911(rec *schema.E911Record) error {
	return db.UpsertE911Context(context.Background(), rec)
}

// UpsertE911Context inserts or updates an E911 record with context support.
func (db *DB) UpsertE911Context(ctx context.Context, rec *schema.E911Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid e911 record: %w", err)
	}

	smsJSON, err := json.Marshal(rec.SMSNumbers)
	if err != nil {
		return fmt.Errorf("failed to marshal sms numbers: %w", err)
	}

	raw := string(rec.RawJSON)
	if raw == "" {
		raw = "{}"
	}

	now := formatTime(time.Now())

	query := `
	INSERT INTO e911_cache (
		tn, caller_name, address_line1, address_line2, city, state, zip,
		address_id, sms_json, raw_json, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(tn) DO UPDATE SET
		caller_name = excluded.caller_name,
		address_line1 = excluded.address_line1,
		address_line2 = excluded.address_line2,
		city = excluded.city,
		state = excluded.state,
		zip = excluded.zip,
		address_id = excluded.address_id,
		sms_json = excluded.sms_json,
		raw_json = excluded.raw_json,
		updated_at = excluded.updated_at
	`

	_, err = db.conn.ExecContext(ctx, query,
		rec.TN,
		rec.CallerName,
		rec.AddressLine1,
		rec.AddressLine2,
		rec.City,
		rec.State,
		rec.Zip,
		rec.AddressID,
		string(smsJSON),
		raw,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert e911 record %s: %w", rec.TN, err)
	}

	return nil
}

// ListE911 returns all cached E911 records ordered by TN ascending.
// E911 records are unpartitioned; there is no trunk group scope.
func (db *DB) ListE911() ([]*schema.E911Record, error) {
	return db.ListE911Context(context.Background())
}

// ListE911Context returns cached E911 records with context support.
func (db *DB) ListE911Context(ctx context.Context) ([]*schema.E911Record, error) {
	query := `
	SELECT tn, caller_name, address_line1, address_line2, city, state, zip,
	       address_id, sms_json, raw_json, created_at, updated_at
	FROM e911_cache
	ORDER BY tn ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query e911 records: %w", err)
	}
	defer rows.Close()

	return scanE911(rows)
}

// DeleteE911 removes an E911 record from the cache.
// Returns nil if the record doesn't exist (idempotent).
func (db *DB) DeleteE911(tn string) error {
	return db.DeleteE911Context(context.Background(), tn)
}

// DeleteE911Context removes an E911 record with context support.
func (db *DB) DeleteE911Context(ctx context.Context, tn string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM e911_cache WHERE tn = ?`, tn)
	if err != nil {
		return fmt.Errorf("failed to delete e911 record %s: %w", tn, err)
	}
	return nil
}

// DeleteE911NotIn purges every E911 record whose TN is not in keep.
// E911 snapshots are always full-table, so the purge is table-wide.
// An empty keep set is a no-op.
func (db *DB) DeleteE911NotIn(ctx context.Context, keep []string) error {
	if len(keep) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keep)), ", ")
	query := `DELETE FROM e911_cache WHERE tn NOT IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(keep))
	for _, tn := range keep {
		args = append(args, tn)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to purge stale e911 records: %w", err)
	}
	return nil
}

// CountE911 returns the number of cached E911 records.
func (db *DB) CountE911(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM e911_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count e911 records: %w", err)
	}
	return count, nil
}

// ClearE911 removes every cached E911 record.
func (db *DB) ClearE911(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM e911_cache`); err != nil {
		return fmt.Errorf("failed to clear e911 cache: %w", err)
	}
	return nil
}

// scanE911 is a helper to scan multiple E911 records from query results.
func scanE911(rows *sql.Rows) ([]*schema.E911Record, error) {
	records := []*schema.E911Record{}

	for rows.Next() {
		var rec schema.E911Record
		var smsJSON, raw, createdAt, updatedAt string

		err := rows.Scan(
			&rec.TN,
			&rec.CallerName,
			&rec.AddressLine1,
			&rec.AddressLine2,
			&rec.City,
			&rec.State,
			&rec.Zip,
			&rec.AddressID,
			&smsJSON,
			&raw,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan e911 record: %w", err)
		}

		if smsJSON != "" && smsJSON != "null" {
			if err := json.Unmarshal([]byte(smsJSON), &rec.SMSNumbers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sms numbers: %w", err)
			}
		}

		rec.RawJSON = json.RawMessage(raw)
		rec.CreatedAt = parseTime(createdAt)
		rec.UpdatedAt = parseTime(updatedAt)

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating e911 records: %w", err)
	}

	return records, nil
}
