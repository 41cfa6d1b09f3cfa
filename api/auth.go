package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	userIDKey           = "userID"
)

var (
	errTokenNoExpiry   = errors.New("token has no expiry")
	errTokenAudience   = errors.New("invalid audience")
	errTokenIssuer     = errors.New("invalid issuer")
	errTokenNoSubject  = errors.New("missing sub")
	errJWKSUnavailable = errors.New("jwks not configured")
)

// Auth resolves the user behind a bearer token. The signing method and key
// lookup are fixed at construction.
type Auth struct {
	audience string
	issuer   string
	parser   *jwt.Parser
	keys     jwt.Keyfunc
}

// NewAuth verifies RS256 tokens against jwks. Keys are memoised per kid for
// cacheTTL; a non-positive value picks the default.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, cacheTTL time.Duration) *Auth {
	return newAuth("RS256", newKeyCache(jwks, cacheTTL).lookup, audience, issuer)
}

// NewSharedSecretAuth verifies HS256 tokens signed with secret.
func NewSharedSecretAuth(secret []byte, audience, issuer string) *Auth {
	return newAuth("HS256", func(*jwt.Token) (any, error) { return secret, nil }, audience, issuer)
}

func newAuth(method string, keys jwt.Keyfunc, audience, issuer string) *Auth {
	return &Auth{
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{method})),
		keys:     keys,
	}
}

// UserIDFromAuthHeader resolves the user from an Authorization header value.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer resolves the user from a raw token. The registered time
// claims are checked by the parser; expiry is mandatory.
func (a *Auth) UserIDFromBearer(token []byte) (string, error) {
	if len(token) == 0 {
		return "", errBadAuthorization
	}
	var claims jwt.RegisteredClaims
	if _, err := a.parser.ParseWithClaims(readOnlyString(token), &claims, a.keys); err != nil {
		return "", err
	}
	if err := a.checkClaims(&claims); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (a *Auth) checkClaims(c *jwt.RegisteredClaims) error {
	switch {
	case c.ExpiresAt == nil:
		return errTokenNoExpiry
	case a.audience != "" && !c.VerifyAudience(a.audience, true):
		return errTokenAudience
	case a.issuer != "" && !c.VerifyIssuer(a.issuer, true):
		return errTokenIssuer
	case c.Subject == "":
		return errTokenNoSubject
	}
	return nil
}

// keyCache memoises JWKS lookups by kid.
type keyCache struct {
	jwks    *keyfunc.JWKS
	ttl     time.Duration
	entries sync.Map
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

func newKeyCache(jwks *keyfunc.JWKS, ttl time.Duration) *keyCache {
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	return &keyCache{jwks: jwks, ttl: ttl}
}

func (k *keyCache) lookup(token *jwt.Token) (any, error) {
	if k.jwks == nil {
		return nil, errJWKSUnavailable
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return k.jwks.Keyfunc(token)
	}
	if v, ok := k.entries.Load(kid); ok {
		if entry := v.(cachedKey); time.Now().Before(entry.expiresAt) {
			return entry.key, nil
		}
		k.entries.Delete(kid)
	}
	key, err := k.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	k.entries.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(k.ttl)})
	return key, nil
}

// RequireUser rejects requests without a valid bearer token and stores the
// token subject on the context.
func RequireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user, or "" when auth is disabled.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
