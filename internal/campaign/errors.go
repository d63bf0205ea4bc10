package campaign

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a campaign, recipient or token
	// cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when a tracking action targets a campaign
	// past its end date. Surfaced as 410 Gone; no state is touched.
	ErrExpired = errors.New("campaign expired")

	// ErrMalformedTarget is returned when the click endpoint's encoded
	// target parameter is missing or cannot be decoded.
	ErrMalformedTarget = errors.New("malformed target url")
)

// ValidationError reports a failed publish guard. The campaign is left
// untouched; the caller can fix the configuration and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// DeliveryError reports a transport failure for a single recipient
// during dispatch.
type DeliveryError struct {
	Email string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Email, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
