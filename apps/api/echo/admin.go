package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/activity"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/notification"
	"github.com/trezcool/admissions/core/profile"
	"github.com/trezcool/admissions/core/user"
)

var errUnknownUser = "unknown user"

type adminApi struct {
	log        *activity.Log
	hub        *notification.Hub
	usrSvc     *user.Service
	appSvc     *application.Service
	profileSvc *profile.Service
	validate   *validator.Validate
}

func registerAdminAPI(
	g *echo.Group,
	authed echo.MiddlewareFunc,
	log *activity.Log,
	hub *notification.Hub,
	usrSvc *user.Service,
	appSvc *application.Service,
	profileSvc *profile.Service,
	validate *validator.Validate,
) {
	api := adminApi{
		log:        log,
		hub:        hub,
		usrSvc:     usrSvc,
		appSvc:     appSvc,
		profileSvc: profileSvc,
		validate:   validate,
	}

	ag := g.Group("/admin", authed, adminMiddleware())
	ag.GET("/activity", api.activity)
	ag.GET("/notifications/count", api.notificationsCount)
	ag.POST("/notifications", api.sendNotification)
	ag.GET("/stats", api.stats)
}

type (
	CountResponse struct {
		Count int64 `json:"count"`
	}

	SendNotificationRequest struct {
		UserID      string `json:"userId" validate:"required"`
		Title       string `json:"title" validate:"required,notblank,max=200"`
		Description string `json:"description" validate:"max=2000"`
	}

	SendNotificationResponse struct {
		Success   bool `json:"success"`
		Delivered int  `json:"delivered"`
	}
)

func (req *SendNotificationRequest) Validate(validate *validator.Validate) error {
	req.UserID = core.CleanString(req.UserID)
	req.Title = core.CleanString(req.Title)
	req.Description = core.CleanString(req.Description)
	return validate.Struct(req)
}

func (api *adminApi) activity(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.log.List())
}

func (api *adminApi) notificationsCount(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, CountResponse{Count: api.hub.Sent()})
}

func (api *adminApi) sendNotification(ctx echo.Context) error {
	var data SendNotificationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendNotificationRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), data.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "userId", Error: errUnknownUser})
		}
		return errors.Wrap(err, "finding user by ID")
	}

	if err = api.profileSvc.Notify(ctx.Request().Context(), usr.ID, data.Title, data.Description); err != nil {
		return errors.Wrap(err, "storing notification")
	}
	delivered := api.hub.Emit(usr.ID, notification.NewAdhoc(data.Title))
	api.log.Append(activity.TypeNotificationSent, fmt.Sprintf("notification %q sent to %s", data.Title, usr.Name))

	return ctx.JSON(http.StatusOK, SendNotificationResponse{Success: true, Delivered: delivered})
}

func (api *adminApi) stats(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	stats, err := api.appSvc.Stats(ctx.Request().Context(), claims)
	if err != nil {
		return errors.Wrap(err, "counting applications")
	}
	return ctx.JSON(http.StatusOK, stats)
}
