// Package registry holds what the issuance, marketplace and retirement
// registries share: error kinds, namespaced record access, one-time
// configuration and post-commit events.
package registry

import (
	"errors"
	"net/http"
)

// Error kinds returned by every registry operation. Callers match them with
// errors.Is; the message after the kind carries the detail.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotVerified      = errors.New("issuer not verified")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidVintage   = errors.New("invalid vintage year")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrDuplicateProject = errors.New("duplicate project")
	ErrNotFound         = errors.New("not found")
	ErrNotActive        = errors.New("listing not active")
	ErrEscrowMismatch   = errors.New("escrow mismatch")
	ErrPaymentMismatch  = errors.New("payment mismatch")
	ErrCustodyError     = errors.New("custody error")

	ErrInvalidFee         = errors.New("invalid fee")
	ErrInvalidProjectID   = errors.New("invalid project id")
	ErrAlreadyInitialized = errors.New("registry already initialized")
	ErrNotInitialized     = errors.New("registry not initialized")
	ErrOverflow           = errors.New("counter overflow")
)

// StatusCode maps an error kind to the HTTP status the API answers with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotVerified):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidVintage),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidFee),
		errors.Is(err, ErrInvalidProjectID),
		errors.Is(err, ErrEscrowMismatch),
		errors.Is(err, ErrPaymentMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateProject),
		errors.Is(err, ErrNotActive),
		errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrCustodyError):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
