package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/profile"
	"github.com/trezcool/admissions/core/user"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

type userApi struct {
	svc        *user.Service
	profileSvc *profile.Service
	appSvc     *application.Service
	validate   *validator.Validate
}

func registerUserAPI(
	g *echo.Group,
	authed echo.MiddlewareFunc,
	svc *user.Service,
	profileSvc *profile.Service,
	appSvc *application.Service,
	validate *validator.Validate,
) {
	api := userApi{
		svc:        svc,
		profileSvc: profileSvc,
		appSvc:     appSvc,
		validate:   validate,
	}

	// un-authed endpoints
	g.POST("/register", api.register)
	g.POST("/login", api.login)
	g.POST("/reset-password", api.resetPassword)

	// detail endpoints
	dg := g.Group("/users/:id", authed, selfOrAdminMiddleware(), ctxUserMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.GET("/notifications", api.notifications)
	dg.GET("/classes", api.classes)
	dg.GET("/lessons", api.lessons)
	dg.GET("/documents", api.documents)
	dg.GET("/application-status", api.applicationStatus)
}

type (
	RegisterResponse struct {
		Success bool      `json:"success"`
		UserID  string    `json:"userId"`
		Role    string    `json:"role"`
		Token   string    `json:"token"`
		User    user.User `json:"user"`
	}

	LoginResponse struct {
		Success bool   `json:"success"`
		UserID  string `json:"userId"`
		Role    string `json:"role"`
		Token   string `json:"token"`
	}
)

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, token, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusOK, RegisterResponse{
		Success: true,
		UserID:  usr.ID,
		Role:    usr.Role,
		Token:   token,
		User:    usr,
	})
}

func (api *userApi) login(ctx echo.Context) error {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, token, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Success: true, UserID: usr.ID, Role: usr.Role, Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func ctxUser(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return user.User{}, errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return usr, nil
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := ctxUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) notifications(ctx echo.Context) error {
	usr, err := ctxUser(ctx)
	if err != nil {
		return err
	}
	ns, err := api.profileSvc.Notifications(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *userApi) classes(ctx echo.Context) error {
	usr, err := ctxUser(ctx)
	if err != nil {
		return err
	}
	classes, err := api.profileSvc.Classes(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *userApi) lessons(ctx echo.Context) error {
	usr, err := ctxUser(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.profileSvc.Lessons(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *userApi) documents(ctx echo.Context) error {
	usr, err := ctxUser(ctx)
	if err != nil {
		return err
	}
	docs, err := api.profileSvc.Documents(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying documents")
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *userApi) applicationStatus(ctx echo.Context) error {
	usr, err := ctxUser(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	app, err := api.appSvc.GetStatus(ctx.Request().Context(), claims, usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting application status")
	}
	return ctx.JSON(http.StatusOK, app.StatusView())
}
