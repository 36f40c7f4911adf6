package source

import (
	"errors"
	"fmt"

	"github.com/gridkey/horizon/core/model"
)

// UnavailableError reports a connectivity or timeout failure. It counts
// against the source's circuit breaker.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials. It counts against the circuit
// breaker: retrying an auth failure on the same source is pointless.
type AuthError struct {
	Source string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("source %s authentication failed: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NoDataError reports that the provider answered but has no coverage for the
// window. Absence of data is not a fault and does not penalize the source.
type NoDataError struct {
	Source string
	Feed   model.FeedName
	Window model.Window
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("source %s has no %s data for %s", e.Source, e.Feed, e.Window)
}

// SchemaError reports a response whose fields do not match the expected
// shape.
type SchemaError struct {
	Source string
	Detail string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s schema mismatch: %s: %v", e.Source, e.Detail, e.Err)
	}
	return fmt.Sprintf("source %s schema mismatch: %s", e.Source, e.Detail)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsNoData reports whether err is an absence-of-coverage error.
func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}

// IsFault reports whether err should count against a source's
// consecutive-failure counter.
func IsFault(err error) bool {
	var ua *UnavailableError
	var au *AuthError
	return errors.As(err, &ua) || errors.As(err, &au)
}
