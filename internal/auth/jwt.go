// Package auth verifies bearer credentials and yields the caller principal.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"gympay/internal/domain"
)

var (
	// ErrUnauthorized is returned when the credential is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Claims is the token payload. The subject carries the principal id.
type Claims struct {
	Role  domain.Role `json:"role"`
	Email string      `json:"email,omitempty"`
	jwt.StandardClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator for tokens signed with secret.
func NewAuthenticator(secret, issuer string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Verify parses a bearer credential ("Bearer <token>" or the bare token).
func (a *Authenticator) Verify(credential string) (*domain.Principal, error) {
	tokenString := strings.TrimSpace(credential)
	if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "bearer ") {
		tokenString = strings.TrimSpace(tokenString[7:])
	}
	if tokenString == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, ErrUnauthorized
	}
	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	switch claims.Role {
	case domain.RoleParent, domain.RoleStaff, domain.RoleAdmin:
	default:
		return nil, ErrUnauthorized
	}

	return &domain.Principal{
		ID:    claims.Subject,
		Role:  claims.Role,
		Email: claims.Email,
	}, nil
}

// Issue signs a token for principal. Used by the operator CLI and tests.
func (a *Authenticator) Issue(principal domain.Principal) (string, error) {
	now := a.now()
	claims := Claims{
		Role:  principal.Role,
		Email: principal.Email,
		StandardClaims: jwt.StandardClaims{
			Subject:   principal.ID,
			Issuer:    a.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(a.ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
