package altitude

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// A ValidationError is returned when a latitude or longitude is out of range.
type ValidationError struct {
	Latitude  float64
	Longitude float64
	Fields    []string
	cause     error
}

func newValidationError(latitude, longitude float64, cause error) *ValidationError {
	e := &ValidationError{
		Latitude:  latitude,
		Longitude: longitude,
		cause:     cause,
	}
	var validationErrors validator.ValidationErrors
	if errors.As(cause, &validationErrors) {
		for _, fieldError := range validationErrors {
			e.Fields = append(e.Fields, strings.ToLower(fieldError.Field()))
		}
	}
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid coordinate (%s;%s)", formatFloat(e.Latitude), formatFloat(e.Longitude))
	}
	return fmt.Sprintf("invalid coordinate (%s;%s): %s out of range",
		formatFloat(e.Latitude), formatFloat(e.Longitude), strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return e.cause }

// A TransportError is returned when a request to the remote service could not
// be completed or the service returned a non-success status.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int    // Zero if no response was received.
	Body       string // Trimmed response body, if any.
	cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.cause)
	}
}

func (e *TransportError) Unwrap() error { return e.cause }

// A ProtocolError is returned when the remote service's response cannot be
// decoded or does not match the request.
type ProtocolError struct {
	Reason   string
	Expected int // Expected number of results, if a count mismatch.
	Actual   int // Actual number of results, if a count mismatch.
	cause    error
}

func (e *ProtocolError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.cause)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.cause }

// A PersistenceError is returned when the cache could not be read or written.
// It does not invalidate any altitudes returned alongside it.
type PersistenceError struct {
	Op    string // "load" or "save".
	Name  string
	cause error
}

func (e *PersistenceError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s cache: %v", e.Op, e.cause)
	}
	return fmt.Sprintf("%s cache %s: %v", e.Op, e.Name, e.cause)
}

func (e *PersistenceError) Unwrap() error { return e.cause }
