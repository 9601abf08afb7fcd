// Package schema provides the data structures for cached BulkVS records.
//
// The provider returns loosely structured JSON with inconsistent field
// naming (TN vs tn vs telephoneNumber, nested "TN Details" and "Messaging"
// objects). This package normalizes each payload exactly once, at
// ingestion, into a fixed record type. The verbatim payload is carried
// alongside the normalized fields so nothing the projection doesn't
// surface is lost on round-trip.
package schema

import (
	"encoding/json"
	"errors"
	"time"
)

// ResourceType identifies one of the two synchronized collections.
type ResourceType string

const (
	// ResourceNumbers is the telephone number inventory (tnRecord).
	ResourceNumbers ResourceType = "numbers"

	// ResourceE911 is the emergency address records (e911Record).
	ResourceE911 ResourceType = "e911"
)

// Valid reports whether rt is one of the supported resource types.
func (rt ResourceType) Valid() bool {
	return rt == ResourceNumbers || rt == ResourceE911
}

// ParseResourceType converts a request string ("numbers" or "e911") to a
// ResourceType. Returns an error for anything else.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if !rt.Valid() {
		return "", errors.New("invalid resource type: must be 'numbers' or 'e911'")
	}
	return rt, nil
}

// ErrMissingTN indicates a provider payload without a usable telephone
// number. Such rows are skipped during reconciliation rather than failing
// the whole pass.
var ErrMissingTN = errors.New("record has no telephone number")

// Record is the common shape of a cached provider record.
// Number and E911Record implement it, which lets the reconciliation
// engine be written once for both resource types.
type Record interface {
	// Key returns the record's natural identifier: the telephone number
	// in canonical digit-only form.
	Key() string
}

// Number is a cached telephone number record.
//
// Normalized fields cover what the list and edit pages query; RawJSON is
// the verbatim provider payload for everything else.
type Number struct {
	TN             string          `json:"tn"`
	Status         string          `json:"status"`
	ActivationDate string          `json:"activation_date,omitempty"`
	RateCenter     string          `json:"rate_center,omitempty"`
	Tier           string          `json:"tier,omitempty"`
	Lidb           string          `json:"lidb,omitempty"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	SMS            bool            `json:"sms"`
	MMS            bool            `json:"mms"`
	PortoutPIN     string          `json:"portout_pin,omitempty"`
	TrunkGroup     string          `json:"trunk_group,omitempty"`
	RawJSON        json.RawMessage `json:"raw,omitempty"`
	CreatedAt      time.Time       `json:"created_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at,omitempty"`
}

// Key implements Record.
func (n *Number) Key() string { return n.TN }

// Validate checks that the Number can be stored.
func (n *Number) Validate() error {
	if n.TN == "" {
		return ErrMissingTN
	}
	return nil
}

// E911Record is a cached emergency address record.
type E911Record struct {
	TN           string          `json:"tn"`
	CallerName   string          `json:"caller_name,omitempty"`
	AddressLine1 string          `json:"address_line1,omitempty"`
	AddressLine2 string          `json:"address_line2,omitempty"`
	City         string          `json:"city,omitempty"`
	State        string          `json:"state,omitempty"`
	Zip          string          `json:"zip,omitempty"`
	AddressID    string          `json:"address_id,omitempty"`
	SMSNumbers   []string        `json:"sms_numbers,omitempty"`
	RawJSON      json.RawMessage `json:"raw,omitempty"`
	CreatedAt    time.Time       `json:"created_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at,omitempty"`
}

// Key implements Record.
func (e *E911Record) Key() string { return e.TN }

// Validate checks that the E911Record can be stored.
func (e *E911Record) Validate() error {
	if e.TN == "" {
		return ErrMissingTN
	}
	return nil
}
