package logsvc

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/user"
)

// RollbarLogger reports to rollbar and mirrors every entry to a std logger.
// It owns its rollbar client and never touches the package-level one, so it is safe for concurrent use.
//
// Besides the message, entries accept:
//   - error: reported with its stack
//   - map[string]interface{}: custom data
//   - user.User or auth.Claims: the person the entry relates to (first one wins)
//   - application.Application: added to the custom data
type RollbarLogger struct {
	std    *log.Logger
	client *rollbar.Client
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	client := rollbar.New(conf.RollbarToken, strings.ToLower(conf.Env), conf.Build, conf.Server.Host, "")
	client.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, client: client}
}

// Enable must be called before the logger is shared.
func (l RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled)
}

type entry struct {
	ctx    context.Context // carries the person
	custom map[string]interface{}
	errs   []error
	extra  []interface{}
	person string // id, for the std log
}

func (l RollbarLogger) parse(args []interface{}) entry {
	e := entry{ctx: context.Background(), custom: make(map[string]interface{})}
	setPerson := func(id, name, email string) {
		if e.person == "" && id != "" {
			e.ctx = rollbar.NewPersonContext(e.ctx, &rollbar.Person{Id: id, Username: name, Email: email})
			e.person = id
		}
	}

	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			setPerson(a.ID, a.Name, a.Email)
		case auth.Claims:
			setPerson(a.UserID(), a.Role, "")
		case application.Application:
			e.custom["applicationId"] = a.ID
			e.custom["applicationStatus"] = string(a.Status)
		case map[string]interface{}:
			for k, v := range a {
				e.custom[k] = v
			}
		case error:
			e.errs = append(e.errs, a)
		case nil:
		default:
			e.extra = append(e.extra, a)
		}
	}
	if len(e.extra) > 0 {
		e.custom["extra"] = fmt.Sprint(e.extra...)
	}
	return e
}

// report sends one item: the first error with its stack, or msg alone.
func (l RollbarLogger) report(level, msg string, e entry) {
	var extras map[string]interface{}
	if len(e.custom) > 0 {
		extras = e.custom
	}
	if len(e.errs) > 0 {
		if msg != "" {
			extras = make(map[string]interface{}, len(e.custom)+1)
			for k, v := range e.custom {
				extras[k] = v
			}
			extras["message"] = msg
		}
		l.client.ErrorWithStackSkipWithExtrasAndContext(e.ctx, level, e.errs[0], 3, extras)
		return
	}
	l.client.MessageWithExtrasAndContext(e.ctx, level, msg, extras)
}

func (l RollbarLogger) print(level, msg string, e entry) {
	line := "[" + level + "] " + msg
	if e.person != "" {
		line += " user=" + e.person
	}
	l.std.Println(line)
	for _, err := range e.errs {
		l.std.Printf("%+v\n", err)
	}
	if len(e.custom) > 0 {
		l.std.Printf("%v\n", e.custom)
	}
}

func (l RollbarLogger) log(level, label, msg string, args []interface{}) {
	e := l.parse(args)
	l.report(level, msg, e)
	l.print(label, msg, e)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(rollbar.DEBUG, "DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(rollbar.INFO, "INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(rollbar.WARN, "WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(rollbar.ERR, "ERROR", msg, args)
}

// Close flushes the pending rollbar items.
func (l RollbarLogger) Close() error {
	return l.client.Close()
}

// Fatal flushes rollbar before exiting.
func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, "FATAL", msg, args)
	_ = l.client.Close()
	l.std.Fatal(msg)
}
