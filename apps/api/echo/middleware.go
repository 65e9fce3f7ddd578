package echoapi

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/user"
	"github.com/trezcool/admissions/services/metrics"
	"github.com/trezcool/admissions/services/ratelimit"
)

func adminMiddleware() echo.MiddlewareFunc {
	return ruleMiddleware(func(echo.Context) auth.Rule { return auth.AdminOnly() })
}

// selfOrAdminMiddleware guards the routes scoped to the :id user.
func selfOrAdminMiddleware() echo.MiddlewareFunc {
	return ruleMiddleware(func(ctx echo.Context) auth.Rule { return auth.SelfOrAdmin(ctx.Param("id")) })
}

func ruleMiddleware(ruleFor func(echo.Context) auth.Rule) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if err = auth.Authorize(claims, ruleFor(ctx)); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// ctxUserMiddleware loads the :id user into the context as "object".
func ctxUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}
			ctx.Set(contextObjectKey, usr)
			return next(ctx)
		}
	}
}

// rateLimitMiddleware limits requests per client IP. A failing limiter lets requests through.
func rateLimitMiddleware(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if limiter == nil {
				return next(ctx)
			}
			ok, err := limiter.Allow(ctx.Request().Context(), ctx.RealIP())
			if err != nil {
				ctx.Logger().Warn(fmt.Sprintf("rate limiter: %v", err))
				return next(ctx)
			}
			if !ok {
				metrics.RecordRateLimited()
				return errHttpRateLimited
			}
			return next(ctx)
		}
	}
}
