package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/admissions/core/auth"
)

const (
	contextClaimsKey = "claims"
	contextObjectKey = "object"

	bearerPrefix = "Bearer "
	tokenParam   = "token"
)

// bearerToken extracts the token from the Authorization header, falling back on the token query parameter.
func bearerToken(ctx echo.Context, allowQuery bool) string {
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	if allowQuery {
		return ctx.QueryParam(tokenParam)
	}
	return ""
}

// authMiddleware verifies the bearer token and stores its claims in the context.
func authMiddleware(authority *auth.Authority) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := authority.Verify(bearerToken(ctx, false))
			if err != nil {
				return err
			}
			ctx.Set(contextClaimsKey, claims)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (auth.Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(auth.Claims); ok {
		return claims, nil
	}
	return auth.Claims{}, auth.ErrMissingToken
}
