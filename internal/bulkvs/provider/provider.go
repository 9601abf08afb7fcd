// Package provider defines the contract with the BulkVS API and its
// HTTP implementation.
//
// The sync engine only consumes the Client interface: full snapshot
// fetches for the two resource types, plus the single-record mutations
// the edit/disconnect/search pages call. After any mutation the caller
// is responsible for triggering a reconciliation (or a direct cache
// update); the engine does not listen for change events.
package provider

import (
	"context"
	"encoding/json"
)

// Client is the consumed BulkVS API contract.
//
// Snapshot fetches return the provider's raw JSON rows; normalization
// into cache records happens once at ingestion (schema.ParseNumber /
// schema.ParseE911), never here.
type Client interface {
	// FetchNumbers returns the full number inventory snapshot.
	// A non-empty trunkGroup scopes the fetch to one trunk group;
	// the provider supports this filter for numbers only.
	FetchNumbers(ctx context.Context, trunkGroup string) ([]json.RawMessage, error)

	// FetchE911 returns the full E911 record snapshot. The provider
	// has no partition filter for E911; the fetch is always global.
	FetchE911(ctx context.Context) ([]json.RawMessage, error)

	// FetchNumber returns the raw record for one number, bypassing the
	// cache; edit pages use it to load a record fresh. Returns nil
	// without error when the provider has no such number.
	FetchNumber(ctx context.Context, tn string) (json.RawMessage, error)

	// FetchE911Record returns the raw E911 record for one number, nil
	// without error when none exists. The provider sometimes answers a
	// TN filter with an unrelated record; a row whose TN does not match
	// the request is treated as not found.
	FetchE911Record(ctx context.Context, tn string) (json.RawMessage, error)

	// UpdateNumber changes the mutable fields of one number.
	UpdateNumber(ctx context.Context, tn string, update NumberUpdate) error

	// DeleteNumber disconnects one number.
	DeleteNumber(ctx context.Context, tn string) error

	// SaveE911 creates or replaces the E911 record for a number.
	// addressID must come from a prior ValidateAddress call.
	SaveE911(ctx context.Context, tn, callerName, addressID string, sms []string) error

	// DeleteE911 removes the E911 record for a number.
	DeleteE911(ctx context.Context, tn string) error

	// SearchNumbers lists purchasable numbers for an NPA (area code)
	// and optional NXX (exchange).
	SearchNumbers(ctx context.Context, npa, nxx string) ([]json.RawMessage, error)

	// PurchaseNumber orders a number into a trunk group.
	PurchaseNumber(ctx context.Context, order PurchaseOrder) error

	// ValidateAddress validates a civic address and returns the
	// AddressID required by SaveE911.
	ValidateAddress(ctx context.Context, addr Address) (*AddressValidation, error)

	// LookupCNAM returns the caller name registered for a number.
	// Served by the cnam.bulkvs.com lookup host, authenticated with the
	// HTTP secret rather than the API credentials. An empty string
	// means no CNAM is on file.
	LookupCNAM(ctx context.Context, tn string) (string, error)

	// LookupLRN returns the local routing number data for a number as
	// the lookup host's verbatim JSON document. Served by
	// lrn.bulkvs.com with the same HTTP-secret authentication.
	LookupLRN(ctx context.Context, tn string) (json.RawMessage, error)
}

// NumberUpdate carries the fields UpdateNumber may change.
// Nil pointers mean "leave unchanged".
type NumberUpdate struct {
	Lidb        *string
	PortoutPIN  *string
	ReferenceID *string
	SMS         *bool
	MMS         *bool
}

// PurchaseOrder describes one number purchase.
type PurchaseOrder struct {
	TN          string
	TrunkGroup  string
	Lidb        string
	PortoutPIN  string
	ReferenceID string
}

// Address is a civic address submitted for validation.
type Address struct {
	StreetNumber string `json:"Street Number"`
	StreetName   string `json:"Street Name"`
	Location     string `json:"Location,omitempty"`
	City         string `json:"City"`
	State        string `json:"State"`
	Zip          string `json:"Zip"`
}

// AddressValidation is the provider's answer to ValidateAddress.
type AddressValidation struct {
	Status    string `json:"Status"`
	AddressID string `json:"AddressID"`
}
