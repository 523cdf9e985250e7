// Package reliability wraps external calls with timeouts and retries and defines the error taxonomy
// shared by the search pipeline and the streaming job runner.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNotFound is returned by stores and providers when a keyed item does not exist.
var ErrNotFound = errors.New("not found")

// TimeoutError is returned when an operation does not finish within its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.After)
}

// RetryExhaustedError is returned when every attempt of a retried operation failed.
type RetryExhaustedError struct {
	Op        string
	Attempts  int
	LastError error
}

func (e *RetryExhaustedError) Error() string {
	return e.Op + ": max retries exhausted after " + strconv.Itoa(e.Attempts) + " attempts: " + errString(e.LastError)
}

// Unwrap returns the last error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.LastError
}

// ProviderError is a failure reported by the place provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.StatusCode, errString(e.Err))
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, errString(e.Err))
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// GeocodingFailure means a location text could not be resolved. It is a business outcome, not a fault.
type GeocodingFailure struct {
	Location string
	Err      error
}

func (e *GeocodingFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocoding %q failed: %v", e.Location, e.Err)
	}
	return fmt.Sprintf("geocoding %q failed", e.Location)
}

func (e *GeocodingFailure) Unwrap() error {
	return e.Err
}

// QuotaExceeded means an upstream rate limit or quota was hit.
type QuotaExceeded struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *QuotaExceeded) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: quota exceeded, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: quota exceeded", e.Provider)
}

// ValidationError is an invalid input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return "validation: " + e.Field + ": " + e.Message
}

// AuthError is a rejected credential. Never retried.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %s: unauthorized: %s", e.Provider, errString(e.Err))
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NarrationFailure is any failure of the narration collaborator.
type NarrationFailure struct {
	Narrator string
	Err      error
}

func (e *NarrationFailure) Error() string {
	return fmt.Sprintf("narration %s: %s", e.Narrator, errString(e.Err))
}

func (e *NarrationFailure) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is, or wraps, a timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// IsQuota reports whether err is, or wraps, a QuotaExceeded.
func IsQuota(err error) bool {
	var qe *QuotaExceeded
	return errors.As(err, &qe)
}

// IsGeocoding reports whether err is, or wraps, a GeocodingFailure.
func IsGeocoding(err error) bool {
	var ge *GeocodingFailure
	return errors.As(err, &ge)
}

// IsTransient reports whether err is worth retrying. Validation, auth, geocoding, quota and
// cancellation errors are permanent for the lifetime of a request.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotFound) {
		return false
	}
	var (
		ve *ValidationError
		ae *AuthError
		ge *GeocodingFailure
		qe *QuotaExceeded
	)
	if errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &ge) || errors.As(err, &qe) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 {
		return false
	}
	return true
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
