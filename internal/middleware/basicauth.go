package middleware

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"calsplit/internal/config"
)

// BasicAuth returns middleware enforcing HTTP basic auth against the
// configured credentials. The password is verified against a bcrypt hash;
// a nil config disables the check entirely.
func BasicAuth(ba *config.BasicAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if ba == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !credentialsMatch(ba, user, pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="calsplit"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func credentialsMatch(ba *config.BasicAuth, user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(ba.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(ba.PasswordHash), []byte(pass)) == nil
	return userOK && passOK
}
