package api

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func TestBearerTokenFromString(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "lowercase scheme", raw: "  bearer a.b.c ", want: "a.b.c"},
		{name: "blank", raw: "   ", wantErr: errMissingAuthorization},
		{name: "basic scheme", raw: "Basic dXNlcjpwYXNz", wantErr: errBadAuthorization},
		{name: "no token", raw: "Bearer", wantErr: errBadAuthorization},
		{name: "not a jwt", raw: "Bearer abc", wantErr: errBadAuthorization},
		{name: "many periods", raw: "Bearer " + strings.Repeat(".", 1000), wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerTokenFromString(tt.raw)
			if err != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if string(got) != tt.want {
				t.Fatalf("expected token %q, got %q", tt.want, string(got))
			}
		})
	}
}

func TestUserIDFromBearerHS256(t *testing.T) {
	auth := NewSharedSecretAuth(testSecret, "api://aud", "https://issuer/")

	userID, err := auth.UserIDFromBearer([]byte(signHS256(t, validClaims())))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromBearerRejectsBadClaims(t *testing.T) {
	auth := NewSharedSecretAuth(testSecret, "api://aud", "https://issuer/")
	tests := map[string]func(jwt.MapClaims){
		"expired":      func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"wrong aud":    func(c jwt.MapClaims) { c["aud"] = "api://other" },
		"wrong issuer": func(c jwt.MapClaims) { c["iss"] = "https://evil/" },
		"missing sub":  func(c jwt.MapClaims) { delete(c, "sub") },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			claims := validClaims()
			mutate(claims)
			if _, err := auth.UserIDFromBearer([]byte(signHS256(t, claims))); err == nil {
				t.Fatal("expected token to be rejected")
			}
		})
	}
}

func TestUserIDFromBearerRequiresExpiry(t *testing.T) {
	auth := NewSharedSecretAuth(testSecret, "", "")
	claims := validClaims()
	delete(claims, "exp")
	if _, err := auth.UserIDFromBearer([]byte(signHS256(t, claims))); !errors.Is(err, errTokenNoExpiry) {
		t.Fatalf("expected errTokenNoExpiry, got %v", err)
	}
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestRS256AuthWithoutJWKSFails(t *testing.T) {
	auth := NewAuth(nil, "", "", 0)
	// An HS256 token is refused by the RS256 parser before any key lookup.
	if _, err := auth.UserIDFromBearer([]byte(signHS256(t, validClaims()))); err == nil {
		t.Fatal("expected HS256 token to be rejected")
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := auth.UserIDFromBearer([]byte(signRS256(t, key, "k1"))); !errors.Is(err, errJWKSUnavailable) {
		t.Fatalf("expected errJWKSUnavailable, got %v", err)
	}
}

func TestRS256AuthCachesKeysByKID(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{"k1": keyfunc.NewGivenRSA(&key.PublicKey)})
	cache := newKeyCache(jwks, 0)
	if cache.ttl != defaultJWKSCacheTTL {
		t.Fatalf("expected default cache ttl, got %v", cache.ttl)
	}
	auth := newAuth("RS256", cache.lookup, "api://aud", "https://issuer/")

	for i := 0; i < 2; i++ {
		userID, err := auth.UserIDFromBearer([]byte(signRS256(t, key, "k1")))
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if userID != "user-123" {
			t.Fatalf("unexpected user id: %s", userID)
		}
	}
	if _, ok := cache.entries.Load("k1"); !ok {
		t.Fatal("expected key to be cached by kid")
	}
	if _, err := auth.UserIDFromBearer([]byte(signRS256(t, key, "unknown"))); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestRequireUserMiddleware(t *testing.T) {
	s := newTestServer(t, nil, NewSharedSecretAuth(testSecret, "", ""))

	rec := s.do(http.MethodGet, "/api/tasks", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Error; msg != errMissingAuthorization.Error() {
		t.Fatalf("unexpected error %q", msg)
	}

	header := http.Header{echo.HeaderAuthorization: {"Bearer " + signHS256(t, validClaims())}}
	if rec := s.do(http.MethodGet, "/api/tasks", "", header); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz must stay open, got %d", rec.Code)
	}
}
