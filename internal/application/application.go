package application

import (
	"errors"
	"fmt"
)

// Role is the caller's role as established by the auth collaborator. Token
// issuance is out of scope; only role and ownership checks happen here.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Principal identifies the authenticated caller of a use case.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// Validation wraps a field-level problem so the HTTP layer maps it to 400.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Unauthorized wraps a role or ownership failure mapped to 403.
func Unauthorized(msg string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
}
