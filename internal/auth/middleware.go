package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// CheckAuth gates every protected route. It verifies the bearer credential
// and puts the decoded claims on the request context; on any failure the
// wrapped handler never runs. The token's companyId is only a routing hint:
// handlers re-resolve the device's current company from the registry before
// anything authorization-sensitive.
func CheckAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			parts := strings.Fields(h)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				denied(w)
				return
			}
			claims, err := tokens.Verify(parts[1])
			if err != nil {
				denied(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func denied(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "access denied"})
}
