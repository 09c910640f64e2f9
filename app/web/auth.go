package web

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// authMiddleware protects the API with basic auth against the configured
// bcrypt hash. The /ping route is handled by rest.Ping before this runs.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if ok && username == "tabvault" {
			if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="Tabvault"`)
		s.writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	})
}
