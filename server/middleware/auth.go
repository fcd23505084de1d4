package middleware

import (
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/mediascribe/errors"
)

// HeaderAPIKey carries a static API key.
const HeaderAPIKey = "X-API-Key"

// ContextKeySubject holds the authenticated caller: the JWT subject, or
// "api-key" for key-authenticated requests.
const ContextKeySubject = "subject"

// AuthConfig configures API key and bearer JWT authentication. Auth is on
// when at least one key or a JWT secret is configured.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
	// JWTSecret enables HS256 bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
	// SkipPaths are path prefixes that bypass authentication.
	SkipPaths []string `mapstructure:"skip_paths"`
}

// ApplyDefaults sets default skip paths.
func (c *AuthConfig) ApplyDefaults() {
	if len(c.SkipPaths) == 0 {
		c.SkipPaths = []string{"/health", "/info"}
	}
}

// Validate checks the secret strength when JWT is enabled.
func (c *AuthConfig) Validate() error {
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	for _, k := range c.APIKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("auth.api_keys must not contain empty keys")
		}
	}
	return nil
}

// Enabled reports whether any credential is configured.
func (c *AuthConfig) Enabled() bool {
	return len(c.APIKeys) > 0 || c.JWTSecret != ""
}

// Auth accepts either a configured X-API-Key or, when a secret is set, an
// HS256 bearer token. A wrong or missing API key is refused with 403; a bad
// bearer token with 401.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, gojwt.WithIssuer(cfg.JWTIssuer))
	}
	parser := gojwt.NewParser(opts...)
	keyFunc := func(*gojwt.Token) (any, error) { return []byte(cfg.JWTSecret), nil }

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		if cfg.JWTSecret != "" {
			if token, ok := bearer(c.GetHeader("Authorization")); ok {
				claims := &gojwt.RegisteredClaims{}
				if _, err := parser.ParseWithClaims(token, claims, keyFunc); err != nil {
					if stderrors.Is(err, gojwt.ErrTokenExpired) {
						abort(c, errors.TokenExpired())
					} else {
						abort(c, errors.InvalidToken())
					}
					return
				}
				c.Set(ContextKeySubject, claims.Subject)
				c.Next()
				return
			}
		}

		key := c.GetHeader(HeaderAPIKey)
		if key == "" || !validKey(key, cfg.APIKeys) {
			abort(c, errors.Forbidden("Invalid or missing API key."))
			return
		}
		c.Set(ContextKeySubject, "api-key")
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func validKey(key string, keys []string) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return found == 1
}
