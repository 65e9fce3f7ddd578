package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof on the debug mux
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/trezcool/admissions/apps/api/echo"
	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/activity"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/notification"
	"github.com/trezcool/admissions/core/profile"
	"github.com/trezcool/admissions/core/user"
	emailsvc "github.com/trezcool/admissions/services/email"
	logsvc "github.com/trezcool/admissions/services/logger"
	"github.com/trezcool/admissions/services/metrics"
	"github.com/trezcool/admissions/services/ratelimit"
	"github.com/trezcool/admissions/storage/database"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)
	defer logger.Close()
	defer dbLogger.Close()

	// set up DB
	db, err := database.Open(conf.Database)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()
	if err = database.Ping(context.Background(), db, conf.Database.ConnectAttempts, conf.Database.ConnectDelay); err != nil {
		dbLogger.Fatal(fmt.Sprintf("connecting to database: %v", err), err)
	}
	if err = database.Migrate(db); err != nil {
		dbLogger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	// optional redis, shared by the rate limiter of every instance
	var redisClient *redis.Client
	if conf.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: conf.Redis.Addr, Password: conf.Redis.Password})
		if err = redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer redisClient.Close()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	appRepo := sqlxrepos.NewApplicationRepository(db)

	authority := auth.NewAuthority(conf)
	hub := notification.NewHub()
	activityLog := activity.NewLog(conf.ActivityLogCapacity)
	usrSvc := user.NewService(usrRepo, authority, mailSvc, conf)
	profileSvc := profile.NewService(sqlxrepos.NewProfileRepository(db), appRepo)
	appSvc := application.NewService(application.Deps{
		Repo:     appRepo,
		Users:    usrSvc,
		Notifier: hub,
		Activity: activityLog,
		Inbox:    profileSvc,
		MailSvc:  mailSvc,
		Metrics:  metrics.Recorder{},
		Logger:   logger,
	})

	limiter := ratelimit.New(conf.Server.RateLimit, redisClient)
	if mem, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mem.StartCleanup(ctx, conf.Server.RateLimit.Window)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus collectors of services/metrics.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("realtime_sessions", expvar.Func(func() interface{} { return hub.Total() }))

	if err = metrics.RegisterHub(metrics.Registry, hub); err != nil {
		logger.Fatal(fmt.Sprintf("registering hub metrics: %v", err), err)
	}
	http.Handle("/metrics", metrics.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			DB:         db,
			UserSvc:    usrSvc,
			Authority:  authority,
			AppSvc:     appSvc,
			ProfileSvc: profileSvc,
			Hub:        hub,
			Activity:   activityLog,
			Limiter:    limiter,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
