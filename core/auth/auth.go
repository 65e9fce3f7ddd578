// Package auth issues and verifies bearer tokens and holds the authorization rules.
package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

var (
	// errors
	ErrMissingToken = core.NewError(core.KindUnauthenticated, "missing or malformed token")
	ErrInvalidToken = core.NewError(core.KindUnauthenticated, "invalid token")
	ErrTokenExpired = core.NewError(core.KindUnauthenticated, "token expired")
	ErrForbidden    = core.NewError(core.KindForbidden, "permission denied")

	signingMethod = jwt.SigningMethodHS256
	NowFunc       = time.Now // mockable
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Role string `json:"role"`
}

func (c Claims) UserID() string { return c.Subject }
func (c Claims) IsAdmin() bool  { return c.Role == user.RoleAdmin }

// Rule is an authorization predicate over verified claims.
type Rule func(c Claims) bool

// AdminOnly grants access to admins.
func AdminOnly() Rule {
	return func(c Claims) bool { return c.IsAdmin() }
}

// SelfOrAdmin grants access to the owner of the resource or to admins.
func SelfOrAdmin(resourceUserID string) Rule {
	return func(c Claims) bool {
		return c.IsAdmin() || (resourceUserID != "" && c.UserID() == resourceUserID)
	}
}

// Authorize returns ErrForbidden unless rule grants access.
func Authorize(c Claims, rule Rule) error {
	if rule(c) {
		return nil
	}
	return ErrForbidden
}

type Authority struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

var _ user.TokenIssuer = (*Authority)(nil)

func NewAuthority(conf *core.Config) *Authority {
	return &Authority{
		key:    []byte(conf.SecretKey),
		issuer: conf.AppName,
		ttl:    conf.Server.JWTExpirationDelta,
	}
}

// Issue generates a signed JWT token string for usr.
func (a *Authority) Issue(usr user.User) (string, error) {
	now := NowFunc()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   usr.ID,
			ExpiresAt: now.Add(a.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role: usr.Role,
	}
	token := jwt.NewWithClaims(signingMethod, claims)
	ss, err := token.SignedString(a.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Verify parses tokenStr and returns its claims.
func (a *Authority) Verify(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, ErrMissingToken
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, ErrInvalidToken
		}
		return a.key, nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" || !user.IsValidRole(claims.Role) {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
