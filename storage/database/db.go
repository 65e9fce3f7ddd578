package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/admissions/core"
	appfs "github.com/trezcool/admissions/fs"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"

	MigrationsDir = "migrations"
)

var errUnknownEngine = errors.New("unknown database engine")

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(EngineSQLite, sqlx.QUESTION)
}

// Open connects to the configured database. It does not wait for it to be ready; see Ping.
func Open(conf core.DatabaseConfig) (*sqlx.DB, error) {
	switch conf.Engine {
	case EnginePostgres, EngineSQLite:
	default:
		return nil, errors.Wrap(errUnknownEngine, conf.Engine)
	}

	url := conf.URL
	if conf.Engine == EngineSQLite {
		url = sqliteURL(url)
	}
	db, err := sqlx.Open(conf.Engine, url)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Engine == EngineSQLite {
		// sqlite has a single writer, and every new connection to :memory: would get an empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// sqliteURL adds the pragmas the API needs unless the URL sets them already.
// Writers from other processes (e.g. the admin CLI) wait instead of failing with SQLITE_BUSY.
func sqliteURL(url string) string {
	pragmas := []string{"busy_timeout(5000)"}
	if !strings.Contains(url, ":memory:") {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	for _, pragma := range pragmas {
		name := pragma[:strings.IndexByte(pragma, '(')]
		if strings.Contains(url, "_pragma="+name) {
			continue
		}
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "_pragma=" + pragma
	}
	return url
}

// Ping waits for the database to be ready, trying at most attempts times, delay apart.
func Ping(ctx context.Context, db *sqlx.DB, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping cancelled")
		case <-time.After(delay):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

// StatusCheck reports whether the database answers a trivial query.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	var ok int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&ok)
}

func gooseDialect(driverName string) string {
	if driverName == EngineSQLite {
		return "sqlite3"
	}
	return driverName
}

// Prepare sets goose up for the embedded migrations of db.
func Prepare(db *sqlx.DB) error {
	goose.SetBaseFS(appfs.FS)
	goose.SetLogger(goose.NopLogger())
	return errors.Wrap(goose.SetDialect(gooseDialect(db.DriverName())), "setting goose dialect")
}

func Migrate(db *sqlx.DB) error {
	if err := Prepare(db); err != nil {
		return err
	}
	if err := goose.Up(db.DB, MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique/primary key constraint failure.
func IsUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == "23505"
	case *sqlite.Error:
		switch e.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}
