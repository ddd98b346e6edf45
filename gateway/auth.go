package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// operatorRole is the role claim required on tokens hitting the admin surface.
const operatorRole = "operator"

// SetAdminSecret configures the HS256 secret guarding the operator endpoints.
// With no secret configured the endpoints fail closed.
func (s *Server) SetAdminSecret(secret []byte) { s.adminSecret = secret }

// adminAuth requires a bearer token signed with the configured secret and
// carrying the operator role. The pause and disaster switches halt the whole
// engine, so they are never served unauthenticated.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.adminSecret) == 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "admin_auth_not_configured"})
			return
		}
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return s.adminSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
		if err != nil || !parsed.Valid {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		role, _ := claims["role"].(string)
		if !strings.EqualFold(strings.TrimSpace(role), operatorRole) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "insufficient_role"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
