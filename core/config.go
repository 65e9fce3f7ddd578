package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	RateLimitConfig struct {
		Window    time.Duration
		Threshold int
	}

	ServerConfig struct {
		Host               string
		Port               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		CORSOrigins        []string
		BodyLimit          string
		JWTExpirationDelta time.Duration
		RateLimit          RateLimitConfig
	}

	DatabaseConfig struct {
		Engine          string // postgres | sqlite
		URL             string
		ConnectAttempts int
		ConnectDelay    time.Duration
	}

	RedisConfig struct {
		Addr     string
		Password string
	}

	AuthConfig struct {
		BcryptCost int
	}

	Config struct {
		AppName             string
		Env                 string
		Build               string
		Debug               bool
		TestMode            bool
		SecretKey           string
		FrontendBaseURL     string
		DefaultFromEmail    mail.Address
		SendgridAPIKey      string
		RollbarToken        string
		ActivityLogCapacity int

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Auth     AuthConfig
	}
)

// Address returns the API listen address.
func (c ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Admissions")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "k2z!x7@v0q-admissions-dev-secret-0j3m(h#p")
	conf.SetDefault("frontendBaseURL", "http://localhost:19006")
	conf.SetDefault("defaultFromEmail", "Admissions <noreply@localhost>")
	conf.SetDefault("sendgridAPIKey", "")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("activityLogCapacity", 20)

	conf.SetDefault("server.host", "0.0.0.0")
	conf.SetDefault("server.port", "5000")
	conf.SetDefault("server.debugHost", "0.0.0.0:5001")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.corsOrigins", []string{"*"})
	conf.SetDefault("server.bodyLimit", "1M")
	conf.SetDefault("server.jwtExpirationDelta", 2*time.Hour)
	conf.SetDefault("server.rateLimit.window", time.Minute)
	conf.SetDefault("server.rateLimit.threshold", 100)

	conf.SetDefault("database.engine", "sqlite")
	conf.SetDefault("database.url", "file:admissions.db?_pragma=foreign_keys(1)")
	conf.SetDefault("database.connectAttempts", 10)
	conf.SetDefault("database.connectDelay", 2*time.Second)

	conf.SetDefault("redis.addr", "")
	conf.SetDefault("redis.password", "")

	conf.SetDefault("auth.bcryptCost", 12)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
		conf.SetDefault("database.url", "file::memory:")
		conf.SetDefault("auth.bcryptCost", 10)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// ADMISSIONS_SERVER_PORT -> server.port
	conf.SetEnvPrefix("admissions")
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.AutomaticEnv()

	from, err := mail.ParseAddress(conf.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	bcryptCost := conf.GetInt("auth.bcryptCost")
	if bcryptCost < 10 {
		bcryptCost = 10
	}

	return &Config{
		AppName:             conf.GetString("appName"),
		Env:                 env,
		Build:               conf.GetString("build"),
		Debug:               conf.GetBool("debug"),
		TestMode:            conf.GetBool("testMode"),
		SecretKey:           conf.GetString("secretKey"),
		FrontendBaseURL:     conf.GetString("frontendBaseURL"),
		DefaultFromEmail:    *from,
		SendgridAPIKey:      conf.GetString("sendgridAPIKey"),
		RollbarToken:        conf.GetString("rollbarToken"),
		ActivityLogCapacity: conf.GetInt("activityLogCapacity"),
		Server: ServerConfig{
			Host:               conf.GetString("server.host"),
			Port:               conf.GetString("server.port"),
			DebugHost:          conf.GetString("server.debugHost"),
			ShutdownTimeout:    conf.GetDuration("server.shutdownTimeout"),
			CORSOrigins:        conf.GetStringSlice("server.corsOrigins"),
			BodyLimit:          conf.GetString("server.bodyLimit"),
			JWTExpirationDelta: conf.GetDuration("server.jwtExpirationDelta"),
			RateLimit: RateLimitConfig{
				Window:    conf.GetDuration("server.rateLimit.window"),
				Threshold: conf.GetInt("server.rateLimit.threshold"),
			},
		},
		Database: DatabaseConfig{
			Engine:          conf.GetString("database.engine"),
			URL:             conf.GetString("database.url"),
			ConnectAttempts: conf.GetInt("database.connectAttempts"),
			ConnectDelay:    conf.GetDuration("database.connectDelay"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redis.addr"),
			Password: conf.GetString("redis.password"),
		},
		Auth: AuthConfig{
			BcryptCost: bcryptCost,
		},
	}
}
