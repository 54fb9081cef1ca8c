package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ValidateViewID validates a view ID.
func ValidateViewID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid view ID format")
	}
	return nil
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}

// ViewID rejects requests whose {id} route parameter is not a view id and
// whose tenant is missing or malformed.
func ViewID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ValidateTenantID(GetTenantID(r.Context())); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := ValidateViewID(chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
