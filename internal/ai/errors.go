package ai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredential is returned before any network call when no API key is configured
	ErrMissingCredential = errors.New("API key not found; set one with `formfill key set`")

	// ErrTransportFailure matches every *TransportError
	ErrTransportFailure = errors.New("provider request failed")

	// ErrAuthFailure matches a *TransportError whose status denied authorization
	ErrAuthFailure = errors.New("provider rejected the API key")

	// ErrMalformedResponse means the payload did not follow the formData schema
	ErrMalformedResponse = errors.New("invalid JSON response from provider")

	// ErrEmptyGeneratedData is a parseable response without any values.
	// It also matches ErrMalformedResponse.
	ErrEmptyGeneratedData = fmt.Errorf("%w: provider returned empty form data", ErrMalformedResponse)
)

// TransportError is a failed round trip to the provider. StatusCode is 0 when
// no HTTP response was received.
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	if e.isAuth() {
		return fmt.Sprintf("%s request failed (%d). Is your API key correct?", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransportFailure:
		return true
	case ErrAuthFailure:
		return e.isAuth()
	}
	return false
}

func (e *TransportError) isAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
