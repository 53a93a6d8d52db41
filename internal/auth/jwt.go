package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("auth: authorization token is required")
	// ErrInvalidToken is returned for tokens that fail validation.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// Claims carried by cachebridge tokens.
type Claims struct {
	Caches []string `json:"caches,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthConfig holds JWT authenticator configuration
type JWTAuthConfig struct {
	Secret   string // HMAC secret
	Issuer   string // required issuer when set
	Audience string // required audience when set
}

// JWTAuthenticator validates HS256 tokens.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTAuthenticator creates a new JWT authenticator
func NewJWTAuthenticator(cfg JWTAuthConfig) (*JWTAuthenticator, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("JWT secret required for HS256")
	}
	return &JWTAuthenticator{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// Authenticate implements Authenticator
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := a.Validate(token)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{"sub": claims.Subject, "iss": claims.Issuer}
	if len(claims.Caches) > 0 {
		raw["caches"] = claims.Caches
	}
	return &Identity{Subject: claims.Subject, Caches: claims.Caches, Claims: raw}, nil
}

// Validate parses tokenString and checks its signature, lifetime, issuer
// and audience.
func (a *JWTAuthenticator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Generate issues a token for subject, valid for ttl and restricted to
// caches when any are given.
func (a *JWTAuthenticator) Generate(subject string, ttl time.Duration, caches ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		Caches: slices.Clone(caches),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
