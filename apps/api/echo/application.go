package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/auth"
)

type applicationApi struct {
	svc      *application.Service
	validate *validator.Validate
}

func registerApplicationAPI(g *echo.Group, authed echo.MiddlewareFunc, svc *application.Service, validate *validator.Validate) {
	api := applicationApi{svc: svc, validate: validate}

	ag := g.Group("/applications", authed)
	ag.POST("", api.submit)
	ag.GET("", api.query, adminMiddleware())
	ag.POST("/:id/review", api.review, adminMiddleware())
	ag.POST("/:id/approve", api.approve, adminMiddleware())
	ag.POST("/:id/reject", api.reject, adminMiddleware())
}

type SubmitResponse struct {
	Success     bool                    `json:"success"`
	Application application.Application `json:"application"`
}

func (api *applicationApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data application.NewApplication
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.Submit(ctx.Request().Context(), claims, data)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	return ctx.JSON(http.StatusOK, SubmitResponse{Success: true, Application: app})
}

func (api *applicationApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	apps, err := api.svc.QueryAll(ctx.Request().Context(), claims, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	return ctx.JSON(http.StatusOK, apps)
}

type transitionFunc func(ctx context.Context, requester auth.Claims, id string) (application.Application, error)

func (api *applicationApi) transition(ctx echo.Context, fn transitionFunc) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if _, err = fn(ctx.Request().Context(), claims, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "changing application status")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *applicationApi) review(ctx echo.Context) error {
	return api.transition(ctx, api.svc.MarkInReview)
}

func (api *applicationApi) approve(ctx echo.Context) error {
	return api.transition(ctx, api.svc.Approve)
}

func (api *applicationApi) reject(ctx echo.Context) error {
	return api.transition(ctx, api.svc.Reject)
}
