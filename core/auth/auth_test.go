package auth

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

func newTestAuthority() *Authority {
	conf := &core.Config{AppName: "Admissions", SecretKey: "secret"}
	conf.Server.JWTExpirationDelta = 2 * time.Hour
	return NewAuthority(conf)
}

func TestAuthority_IssueVerify(t *testing.T) {
	a := newTestAuthority()
	student := user.User{ID: "u-1", Role: user.RoleStudent}

	validToken, err := a.Issue(student)
	require.NoError(t, err)

	// generate an expired token
	NowFunc = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	expiredToken, err := a.Issue(student)
	NowFunc = time.Now // reset
	require.NoError(t, err)

	otherKey := &Authority{key: []byte("other"), issuer: "Admissions", ttl: time.Hour}
	forgedToken, err := otherKey.Issue(student)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		StandardClaims: jwt.StandardClaims{Subject: "u-1", ExpiresAt: time.Now().Add(time.Hour).Unix()},
		Role:           user.RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badRoleToken, err := a.Issue(user.User{ID: "u-2", Role: "superuser"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "no token", wantErr: ErrMissingToken},
		{name: "garbage", token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "wrong key", token: forgedToken, wantErr: ErrInvalidToken},
		{name: "alg none", token: noneToken, wantErr: ErrInvalidToken},
		{name: "unknown role", token: badRoleToken, wantErr: ErrInvalidToken},
		{name: "expired token", token: expiredToken, wantErr: ErrTokenExpired},
		{name: "valid token", token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := a.Verify(tt.token)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, student.ID, claims.UserID())
			assert.Equal(t, user.RoleStudent, claims.Role)
			assert.Equal(t, "Admissions", claims.Issuer)
		})
	}
}

func TestAuthorize(t *testing.T) {
	student := Claims{StandardClaims: jwt.StandardClaims{Subject: "s-1"}, Role: user.RoleStudent}
	admin := Claims{StandardClaims: jwt.StandardClaims{Subject: "a-1"}, Role: user.RoleAdmin}

	tests := []struct {
		name    string
		claims  Claims
		rule    Rule
		wantErr error
	}{
		{name: "student not admin", claims: student, rule: AdminOnly(), wantErr: ErrForbidden},
		{name: "admin is admin", claims: admin, rule: AdminOnly()},
		{name: "student self", claims: student, rule: SelfOrAdmin("s-1")},
		{name: "student other", claims: student, rule: SelfOrAdmin("s-2"), wantErr: ErrForbidden},
		{name: "student empty id", claims: Claims{Role: user.RoleStudent}, rule: SelfOrAdmin(""), wantErr: ErrForbidden},
		{name: "admin other", claims: admin, rule: SelfOrAdmin("s-2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, Authorize(tt.claims, tt.rule))
		})
	}
}
