package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/activity"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/notification"
	"github.com/trezcool/admissions/core/profile"
	"github.com/trezcool/admissions/core/user"
	"github.com/trezcool/admissions/services/metrics"
	"github.com/trezcool/admissions/services/ratelimit"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		DB         *sqlx.DB
		UserSvc    *user.Service
		Authority  *auth.Authority
		AppSvc     *application.Service
		ProfileSvc *profile.Service
		Hub        *notification.Hub
		Activity   *activity.Log
		Limiter    ratelimit.Limiter
		Validate   *validator.Validate
		Translator ut.Translator

		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in TEST mode
	if !conf.TestMode {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: conf.Server.CORSOrigins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}),
		middleware.BodyLimit(conf.Server.BodyLimit),
		metrics.Middleware(),
	)

	s.app.GET("/", home)
	s.app.GET("/ws", newRealtimeHandler(s.deps.Authority, s.deps.Hub, s.deps.Logger).serve)

	g := s.app.Group("/api", rateLimitMiddleware(s.deps.Limiter))
	authed := authMiddleware(s.deps.Authority)

	registerHealthAPI(g, s.deps.DB)
	registerUserAPI(g, authed, s.deps.UserSvc, s.deps.ProfileSvc, s.deps.AppSvc, s.deps.Validate)
	registerApplicationAPI(g, authed, s.deps.AppSvc, s.deps.Validate)
	registerAdminAPI(g, authed, s.deps.Activity, s.deps.Hub, s.deps.UserSvc, s.deps.AppSvc, s.deps.ProfileSvc, s.deps.Validate)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Shutdown stops accepting connections and waits for outstanding requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

// Errors receives the error the listener stopped with.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives SIGINT, SIGTERM and shutdown requests from handlers.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Admissions API!")
}

// SuccessResponse is the body of endpoints that return nothing else.
type SuccessResponse struct {
	Success bool `json:"success"`
}
