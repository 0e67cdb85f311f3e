package auth

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by this package matches exactly one of
// these through errors.Is; the boundary layer maps kinds to responses.
var (
	ErrValidation     = errors.New("auth: validation failed")
	ErrConflict       = errors.New("auth: already exists")
	ErrAuthentication = errors.New("auth: authentication failed")
	ErrToken          = errors.New("auth: token rejected")
	ErrAuthorization  = errors.New("auth: not authorized")
	ErrNotFound       = errors.New("auth: not found")
	ErrTransaction    = errors.New("auth: transaction failed")
)

// Authentication reasons.
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	ErrAccountDeactivated = fmt.Errorf("%w: account is deactivated", ErrAuthentication)
	ErrAccountUnavailable = fmt.Errorf("%w: user not found or inactive", ErrAuthentication)
	ErrWrongPassword      = fmt.Errorf("%w: current password is incorrect", ErrAuthentication)
)

// Token reasons.
var (
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrToken)
	ErrTokenInvalid   = fmt.Errorf("%w: invalid", ErrToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrToken)
	ErrTokenRevoked   = fmt.Errorf("%w: not found or revoked", ErrToken)
)

// Authorization reasons.
var (
	ErrForbidden   = fmt.Errorf("%w: insufficient permissions", ErrAuthorization)
	ErrCrossTenant = fmt.Errorf("%w: resource belongs to another organization", ErrAuthorization)
)

var kinds = []error{
	ErrValidation,
	ErrConflict,
	ErrAuthentication,
	ErrToken,
	ErrAuthorization,
	ErrNotFound,
	ErrTransaction,
}

// Kind returns the taxonomy kind err belongs to, or nil for untyped errors.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// TransactionError passes taxonomy errors through unchanged and reports any
// other failure as ErrTransaction, keeping the cause in the chain.
func TransactionError(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransaction, err)
}
