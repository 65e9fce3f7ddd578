package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/user"
	logsvc "github.com/trezcool/admissions/services/logger"
	"github.com/trezcool/admissions/storage/database"
)

// OpenDB returns a migrated in-memory database, closed when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	return openSQLite(t, "file::memory:")
}

// OpenFileDB returns a migrated database in a file under t.TempDir(), like the default config uses.
func OpenFileDB(t *testing.T) *sqlx.DB {
	t.Helper()
	return openSQLite(t, "file:"+filepath.Join(t.TempDir(), "admissions.db")+"?_pragma=foreign_keys(1)")
}

func openSQLite(t *testing.T, url string) *sqlx.DB {
	t.Helper()
	db, err := database.Open(core.DatabaseConfig{Engine: database.EngineSQLite, URL: url})
	if err != nil {
		t.Fatalf("database.Open(): %v", err)
	}
	if err = database.Ping(context.Background(), db, 1, 0); err != nil {
		t.Fatalf("database.Ping(): %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("database.Migrate(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestConfig returns a config suitable for tests without reading the environment.
func TestConfig() *core.Config {
	conf := &core.Config{
		AppName:             "Admissions",
		Env:                 "TEST",
		TestMode:            true,
		SecretKey:           "test-secret",
		FrontendBaseURL:     "http://localhost:19006",
		ActivityLogCapacity: 20,
	}
	conf.DefaultFromEmail.Address = "noreply@test.cd"
	conf.Server.JWTExpirationDelta = 2 * time.Hour
	conf.Server.BodyLimit = "1M"
	conf.Server.CORSOrigins = []string{"*"}
	conf.Server.RateLimit = core.RateLimitConfig{Window: time.Minute, Threshold: 1000}
	conf.Auth.BcryptCost = 10
	return conf
}

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd, role string, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Millisecond)
	}
	if role == "" {
		role = user.RoleStudent
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Email:     core.CleanString(email, true /* lower */),
		Name:      name,
		Initials:  user.DeriveInitials(name),
		Role:      role,
		Group:     user.DefaultGroup,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd, 10); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateApplication(t *testing.T, repo application.Repository, student user.User, status application.Status, docs ...string) application.Application {
	t.Helper()
	now := core.Now()
	if status == "" {
		status = application.StatusPending
	}
	if docs == nil {
		docs = []string{}
	}
	app, err := repo.CreateApplication(context.Background(), application.Application{
		ID:            uuid.NewString(),
		StudentID:     student.ID,
		StudentName:   student.Name,
		Email:         student.Email,
		Status:        status,
		Documents:     docs,
		SubmittedDate: now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("CreateApplication() failed: %v", err)
	}
	return app
}

// NewLogger returns a silent logger that never reports to rollbar.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), TestConfig())
	logger.Enable(false)
	return logger
}

// ClaimsFor returns the claims a valid token of usr would carry.
func ClaimsFor(usr user.User) auth.Claims {
	return auth.Claims{StandardClaims: jwt.StandardClaims{Subject: usr.ID}, Role: usr.Role}
}
