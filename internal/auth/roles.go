package auth

import (
	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// RequireRole is the capability check engine operations run before touching any state.
func RequireRole(principal domain.Principal, allowed ...domain.Role) error {
	if principal.ID == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	for _, role := range allowed {
		if principal.Role == role {
			return nil
		}
	}
	return apperrors.NewForbidden("insufficient role")
}
