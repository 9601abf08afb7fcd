package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CanonicalTN reduces a telephone number to its canonical digit-only
// form. Everything that is not an ASCII digit is dropped, so
// "+1 (202) 555-0100" and "12025550100" normalize to the same key.
func CanonicalTN(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseNumber normalizes one raw provider payload into a Number.
//
// The provider is inconsistent about field naming across endpoints and
// API revisions, so every field is resolved through an ordered list of
// candidate keys. Returns ErrMissingTN (wrapped) when no telephone
// number can be found; callers skip such rows.
func ParseNumber(raw json.RawMessage) (*Number, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse number payload: %w", err)
	}

	tn := CanonicalTN(stringField(doc, "TN", "tn", "telephoneNumber"))
	if tn == "" {
		return nil, ErrMissingTN
	}

	n := &Number{
		TN:          tn,
		Status:      stringField(doc, "Status", "status"),
		Lidb:        stringField(doc, "Lidb", "lidb"),
		ReferenceID: stringField(doc, "ReferenceID", "referenceID"),
		PortoutPIN:  stringField(doc, "Portout Pin", "portoutPin"),
		RawJSON:     raw,
	}

	if details := objectField(doc, "TN Details", "tnDetails"); details != nil {
		n.ActivationDate = stringField(details, "Activation Date", "activation_date")
		n.RateCenter = stringField(details, "Rate Center", "rate_center")
		n.Tier = stringField(details, "Tier", "tier")
	}

	if messaging := objectField(doc, "Messaging", "messaging"); messaging != nil {
		n.SMS = boolField(messaging, "Sms", "sms")
		n.MMS = boolField(messaging, "Mms", "mms")
	}

	return n, nil
}

// ParseE911 normalizes one raw provider payload into an E911Record.
// Returns ErrMissingTN when no telephone number can be found.
func ParseE911(raw json.RawMessage) (*E911Record, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse e911 payload: %w", err)
	}

	tn := CanonicalTN(stringField(doc, "TN", "tn"))
	if tn == "" {
		return nil, ErrMissingTN
	}

	rec := &E911Record{
		TN:           tn,
		CallerName:   stringField(doc, "Caller Name", "callerName"),
		AddressLine1: stringField(doc, "Address Line 1", "addressLine1"),
		AddressLine2: stringField(doc, "Address Line 2", "addressLine2"),
		City:         stringField(doc, "City", "city"),
		State:        stringField(doc, "State", "state"),
		Zip:          stringField(doc, "Zip", "zip"),
		AddressID:    stringField(doc, "AddressID", "addressID"),
		RawJSON:      raw,
	}

	// SMS-forwarding numbers arrive as a JSON array of strings.
	if list, ok := doc["Sms"].([]interface{}); ok {
		for _, v := range list {
			if s, ok := v.(string); ok && s != "" {
				rec.SMSNumbers = append(rec.SMSNumbers, CanonicalTN(s))
			}
		}
	}

	return rec, nil
}

// decodeObject unmarshals raw into a generic JSON object.
func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// stringField returns the first non-empty string value among keys.
func stringField(doc map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := doc[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// boolField returns the first boolean value among keys, false otherwise.
// The provider occasionally sends booleans as strings ("true"/"false").
func boolField(doc map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true")
		}
	}
	return false
}

// objectField returns the first nested object among keys, nil otherwise.
func objectField(doc map[string]interface{}, keys ...string) map[string]interface{} {
	for _, k := range keys {
		if m, ok := doc[k].(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}
