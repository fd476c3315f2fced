package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// HTTPMiddleware rejects requests without a valid bearer token and stores
// the validated claims on the request context.
func (a *Authenticator) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "missing Authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			unauthorized(w, "invalid Authorization format, expected: Bearer <token>")
			return
		}

		claims, err := a.ValidateToken(r.Context(), tokenString)
		if err != nil {
			unauthorized(w, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// GetClaims returns the claims attached to the request, or nil when the
// request did not pass through HTTPMiddleware.
func GetClaims(r *http.Request) *Claims {
	return ClaimsFromContext(r.Context())
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
