package api

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	// AdminRole is the role required by admin endpoints.
	AdminRole = "router-admin"

	adminIssuer  = "hybridrouter"
	adminKeyInfo = "hybridrouter-admin-jwt"
	minSecretLen = 16
)

var (
	// ErrWeakSecret is returned for admin secrets shorter than 16 bytes.
	ErrWeakSecret = errors.New("api: admin secret too short")
	// ErrMissingRole is returned for tokens without the admin role.
	ErrMissingRole = errors.New("api: token lacks admin role")
)

// AdminClaims are the JWT claims of an admin token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// DeriveAdminKey derives the HS256 signing key from the operator secret.
func DeriveAdminKey(secret string) ([]byte, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	r := hkdf.New(sha256.New, []byte(secret), []byte(adminIssuer), []byte(adminKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}
	return key, nil
}

// AdminAuth issues and verifies admin tokens.
type AdminAuth struct {
	key []byte
	now func() time.Time
}

// NewAdminAuth derives the signing key from secret.
func NewAdminAuth(secret string) (*AdminAuth, error) {
	key, err := DeriveAdminKey(secret)
	if err != nil {
		return nil, err
	}
	return &AdminAuth{key: key, now: time.Now}, nil
}

// Issue signs an admin token for subject valid for ttl.
func (a *AdminAuth) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("api: token subject is required")
	}
	now := a.now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    adminIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: []string{AdminRole},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}

// Verify parses tokenStr and checks signature, issuer, expiry and role.
func (a *AdminAuth) Verify(tokenStr string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject is required")
	}
	if !slices.Contains(claims.Roles, AdminRole) {
		return nil, ErrMissingRole
	}
	return claims, nil
}

// Require wraps next so it only runs for a valid admin bearer token. A nil
// AdminAuth rejects every request.
func (a *AdminAuth) Require(next func(http.ResponseWriter, *http.Request, *AdminClaims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			WriteUnauthorized(w, r, "Admin authentication not configured")
			return
		}
		scheme, tokenStr, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || scheme != "Bearer" || tokenStr == "" {
			WriteUnauthorized(w, r, "Invalid Authorization header format (expected 'Bearer <token>')")
			return
		}
		claims, err := a.Verify(tokenStr)
		if errors.Is(err, ErrMissingRole) {
			WriteForbidden(w, r, "")
			return
		}
		if err != nil {
			WriteUnauthorized(w, r, "Invalid or expired token")
			return
		}
		next(w, r, claims)
	}
}
