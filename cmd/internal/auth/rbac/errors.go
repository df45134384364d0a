package rbac

import (
	"errors"
	"fmt"
)

// ErrForbidden is the kind carried by every authorization failure.
var ErrForbidden = errors.New("forbidden")

// AuthorizationError describes why an identity was refused.
type AuthorizationError struct {
	SubjectID string
	Role      string
	Reason    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("forbidden: subject %q with role %q: %s", e.SubjectID, e.Role, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrForbidden }
