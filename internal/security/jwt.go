package security

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims extends RegisteredClaims with application-specific fields.
type CustomClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWT authenticates bearer tokens. The principal is the token subject.
type JWT struct {
	keyFunc  jwt.Keyfunc
	methods  []string
	issuer   string
	audience string
}

// NewHMACJWT validates HMAC-signed tokens with a shared secret.
func NewHMACJWT(secret []byte, issuer string) *JWT {
	return &JWT{
		keyFunc: func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		},
		methods: []string{"HS256", "HS384", "HS512"},
		issuer:  issuer,
	}
}

// NewJWKSJWT validates RS256 tokens against keys published by a JWKS endpoint.
func NewJWKSJWT(c *JWKSClient, issuer, audience string) *JWT {
	return &JWT{
		keyFunc:  c.Keyfunc,
		methods:  []string{"RS256"},
		issuer:   issuer,
		audience: audience,
	}
}

func (j *JWT) Name() string { return "JWT" }

func (j *JWT) Authenticate(r *http.Request) (Identity, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return Identity{}, ErrNoCredentials
	}
	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		// Basic and other schemes belong to other mechanisms.
		return Identity{}, ErrNoCredentials
	}

	var claims CustomClaims
	token, err := jwt.ParseWithClaims(parts[1], &claims, j.keyFunc, jwt.WithValidMethods(j.methods))
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	if claims.ExpiresAt == nil {
		return Identity{}, errors.New("token missing exp claim")
	}
	if time.Now().After(claims.ExpiresAt.Time) {
		return Identity{}, errors.New("token is expired")
	}
	if j.issuer != "" && claims.Issuer != j.issuer {
		return Identity{}, errors.New("invalid token issuer")
	}
	if j.audience != "" {
		found := false
		for _, aud := range claims.Audience {
			if aud == j.audience {
				found = true
				break
			}
		}
		if !found {
			return Identity{}, errors.New("invalid token audience")
		}
	}
	return Identity{Principal: claims.Subject, Role: claims.Role}, nil
}

func (j *JWT) Challenge(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", "Bearer")
}
