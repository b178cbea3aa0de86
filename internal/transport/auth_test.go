package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIssuer is an in-process OIDC issuer: it serves discovery plus a JWKS
// for a generated RSA key and mints tokens signed with that key.
type fakeIssuer struct {
	key *rsa.PrivateKey
	srv *httptest.Server
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fi := &fakeIssuer{key: key}
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key: &key.PublicKey, KeyID: "test-kid", Algorithm: "RS256", Use: "sig",
	}}}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"issuer":   fi.srv.URL,
			"jwks_uri": fi.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, jwks)
	})

	fi.srv = httptest.NewServer(mux)
	t.Cleanup(fi.srv.Close)
	return fi
}

// mint signs a token for this issuer. Overrides are merged over a valid
// default claim set so each case states only what it breaks.
func (fi *fakeIssuer) mint(t *testing.T, overrides map[string]any) string {
	t.Helper()
	now := time.Now()
	claims := map[string]any{
		"iss": fi.srv.URL,
		"aud": "test-audience",
		"sub": "agent-123",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: fi.key},
		(&jose.SignerOptions{}).WithHeader("kid", "test-kid"),
	)
	require.NoError(t, err)

	raw, err := jwt.Signed(sig).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func (fi *fakeIssuer) middleware(t *testing.T) func(http.Handler) http.Handler {
	t.Helper()
	oidcCtx := oidc.InsecureIssuerURLContext(t.Context(), fi.srv.URL)
	provider, err := oidc.NewProvider(oidcCtx, fi.srv.URL)
	require.NoError(t, err)
	return bearerAuth(provider, "test-audience")
}

// subjectEcho writes the authenticated subject from the request context.
func subjectEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"subject": SubjectFromContext(r.Context()),
		})
	})
}

func TestBearerAuth(t *testing.T) {
	issuer := newFakeIssuer(t)
	handler := issuer.middleware(t)(subjectEcho())

	now := time.Now()

	tests := []struct {
		name        string
		path        string
		authHeader  string
		wantStatus  int
		wantSubject string
	}{
		{
			name:        "valid token",
			path:        "/mcp",
			authHeader:  "Bearer " + issuer.mint(t, nil),
			wantStatus:  http.StatusOK,
			wantSubject: "agent-123",
		},
		{
			name:       "missing header",
			path:       "/mcp",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			path: "/mcp",
			authHeader: "Bearer " + issuer.mint(t, map[string]any{
				"exp": now.Add(-time.Hour).Unix(),
				"iat": now.Add(-2 * time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong audience",
			path: "/mcp",
			authHeader: "Bearer " + issuer.mint(t, map[string]any{
				"aud": "wrong-audience",
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "health bypasses auth",
			path:       "/healthz",
			authHeader: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid format (Basic auth)",
			path:       "/mcp",
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantSubject != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantSubject, body["subject"])
			}
		})
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	assert.Empty(t, SubjectFromContext(t.Context()))
}
