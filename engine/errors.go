/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure path returns one of four kinds, each with a stable reason
  code the API hands back to the caller.

ERROR CATEGORIES:
  1. SchemaError     - Required columns or period columns missing (fatal to the request)
  2. ValidationError - Bad user input (returned with its reason, nothing written)
  3. NotFoundError   - No matching rows (an explained empty result)
  4. UpstreamError   - The external report renderer or archive failed (may be retried)

USAGE:
  Callers branch with errors.Is on the sentinels, or errors.As to read
  the reason code:

    var verr *engine.ValidationError
    if errors.As(err, &verr) && verr.Reason == engine.ReasonNotMultiple {
        ...
    }

SEE ALSO:
  - api/handlers.go: Maps each kind to an HTTP status
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchema is wrapped by every SchemaError.
	ErrSchema = errors.New("schema error")

	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is wrapped by every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrUpstream is wrapped by every UpstreamError.
	ErrUpstream = errors.New("upstream error")

	// ErrTableNotExist is returned by a Backend when the named table has no
	// backing file yet.
	ErrTableNotExist = errors.New("table does not exist")
)

// Reason codes.
const (
	ReasonMissingColumns         = "missing_columns"
	ReasonPeriodColumnMissing    = "period_column_missing"
	ReasonInvalidPackagingFactor = "invalid_packaging_factor"
	ReasonMissingField           = "missing_field"
	ReasonInvalidQuantity        = "invalid_quantity"
	ReasonNotMultiple            = "quantity_not_multiple_of_factor"
	ReasonDuplicateMaterial      = "duplicate_material"
	ReasonUnsupportedFormat      = "unsupported_format"
	ReasonNoMatchingProduct      = "no_matching_product"
	ReasonClientNotInCatalog     = "client_not_in_catalog"
	ReasonNoProductsForCategory  = "no_products_for_category"
	ReasonRendererFailed         = "renderer_failed"
	ReasonArchiveFailed          = "archive_failed"
)

// =============================================================================
// STRUCTURED ERRORS - Carry a reason code and context
// =============================================================================

// SchemaError reports a table whose columns do not satisfy the engine.
type SchemaError struct {
	Reason  string
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("schema: %s in %s: %s", e.Reason, e.Table, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("schema: %s in %s", e.Reason, e.Table)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ValidationError reports rejected user input. Factor is set for
// quantity_not_multiple_of_factor.
type ValidationError struct {
	Reason string
	Field  string
	Factor int
}

func (e *ValidationError) Error() string {
	switch {
	case e.Reason == ReasonNotMultiple:
		return fmt.Sprintf("validation: %s (factor %d)", e.Reason, e.Factor)
	case e.Field != "":
		return fmt.Sprintf("validation: %s: %s", e.Reason, e.Field)
	default:
		return "validation: " + e.Reason
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports that nothing matched the lookup.
type NotFoundError struct {
	Reason string
	Lookup string
}

func (e *NotFoundError) Error() string {
	if e.Lookup == "" {
		return "not found: " + e.Reason
	}
	return fmt.Sprintf("not found: %s (%s)", e.Reason, e.Lookup)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UpstreamError reports a failed call to an external collaborator.
// Status is the upstream HTTP status, 0 when no response was received.
type UpstreamError struct {
	Reason    string
	Status    int
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	msg := "upstream: " + e.Reason
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the transport cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

func missingField(field string) error {
	return &ValidationError{Reason: ReasonMissingField, Field: field}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	var up *UpstreamError
	return errors.As(err, &up) && up.Retryable
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates nothing matched.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ReasonOf returns the reason code carried by a typed engine error, or "".
func ReasonOf(err error) string {
	var (
		se *SchemaError
		ve *ValidationError
		ne *NotFoundError
		ue *UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Reason
	case errors.As(err, &ne):
		return ne.Reason
	case errors.As(err, &se):
		return se.Reason
	case errors.As(err, &ue):
		return ue.Reason
	}
	return ""
}
