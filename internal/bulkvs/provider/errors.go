package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure. Callers use it to tell a
// network problem apart from an authenticated-but-rejected response.
type ErrorKind string

const (
	// KindNetwork covers connection, DNS and timeout failures; the
	// request may never have reached the provider.
	KindNetwork ErrorKind = "network"

	// KindAuth means the provider rejected the credentials (401/403).
	KindAuth ErrorKind = "auth"

	// KindRemote means the provider accepted the request but returned
	// an error response.
	KindRemote ErrorKind = "remote"

	// KindDecode means the response body was not usable JSON.
	KindDecode ErrorKind = "decode"
)

// Error is a typed BulkVS API failure.
type Error struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("bulkvs api %s error (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("bulkvs api %s error: %s", e.Kind, e.Message)
}

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindAuth
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNetwork
}
