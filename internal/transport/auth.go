package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const ctxSubject contextKey = "subject"

// SubjectFromContext extracts the authenticated caller identity from the
// request context. Empty when auth is disabled.
func SubjectFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSubject).(string)
	return v
}

// bearerAuth returns middleware that verifies JWT Bearer tokens using
// OIDC discovery. The /healthz endpoint bypasses authentication.
func bearerAuth(provider *oidc.Provider, audience string) func(http.Handler) http.Handler {
	verifier := provider.Verifier(&oidc.Config{ClientID: audience})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health probes bypass auth.
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}

			token, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
				return
			}

			var claims struct {
				Sub   string `json:"sub"`
				Email string `json:"email"`
			}
			if err := token.Claims(&claims); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			subject := claims.Sub
			if subject == "" {
				subject = claims.Email
			}
			ctx := r.Context()
			if subject != "" {
				ctx = context.WithValue(ctx, ctxSubject, subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
