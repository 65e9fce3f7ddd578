package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	. "github.com/trezcool/admissions/apps/api/echo"
	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/activity"
	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/notification"
	"github.com/trezcool/admissions/core/profile"
	"github.com/trezcool/admissions/core/user"
	"github.com/trezcool/admissions/services/email"
	"github.com/trezcool/admissions/services/ratelimit"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
	"github.com/trezcool/admissions/tests"
)

type testEnv struct {
	app        *Server
	db         *sqlx.DB
	usrRepo    user.Repository
	appRepo    application.Repository
	authority  *auth.Authority
	hub        *notification.Hub
	log        *activity.Log
	profileSvc *profile.Service
	mailSvc    *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T, confFns ...func(*core.Config)) *testEnv {
	t.Helper()
	conf := testutil.TestConfig()
	for _, fn := range confFns {
		fn(conf)
	}
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up DB & repos
	env := &testEnv{db: testutil.OpenDB(t)}
	env.usrRepo = sqlxrepos.NewUserRepository(env.db)
	env.appRepo = sqlxrepos.NewApplicationRepository(env.db)

	// set up services
	env.authority = auth.NewAuthority(conf)
	env.hub = notification.NewHub()
	env.log = activity.NewLog(conf.ActivityLogCapacity)
	env.mailSvc = emailsvc.NewConsoleServiceMock(conf)
	env.profileSvc = profile.NewService(sqlxrepos.NewProfileRepository(env.db), env.appRepo)
	usrSvc := user.NewService(env.usrRepo, env.authority, env.mailSvc, conf)
	appSvc := application.NewService(application.Deps{
		Repo:     env.appRepo,
		Users:    usrSvc,
		Notifier: env.hub,
		Activity: env.log,
		Inbox:    env.profileSvc,
		MailSvc:  env.mailSvc,
		Logger:   logger,
	})

	// shared limiter when a redis address is configured, as in main
	var redisClient *redis.Client
	if conf.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: conf.Redis.Addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
		t.Cleanup(func() { _ = redisClient.Close() })
	}

	// set up server
	env.app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		DB:             env.db,
		UserSvc:        usrSvc,
		Authority:      env.authority,
		AppSvc:         appSvc,
		ProfileSvc:     env.profileSvc,
		Hub:            env.hub,
		Activity:       env.log,
		Limiter:        ratelimit.New(conf.Server.RateLimit, redisClient),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return env
}

func errResp(kind core.Kind, msg string, fields ...map[string]string) ErrorResponse {
	resp := ErrorResponse{Kind: kind, Message: msg}
	if len(fields) > 0 {
		resp.Fields = fields[0]
	}
	return resp
}

var (
	testCtx = context.Background()

	errMissingToken = errResp(core.KindUnauthenticated, "missing or malformed token")
	errForbidden    = errResp(core.KindForbidden, "permission denied")
	errNotFound     = errResp(core.KindNotFound, "not found")
)

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	token, err := env.authority.Issue(usr)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func (env *testEnv) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			wantCode := tt.wantCode
			if wantCode == 0 {
				wantCode = http.StatusOK
			}
			tt.wantCode = wantCode
			checkCodeAndData(t, tt, rec)
		})
	}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarchall(t *testing.T, data []byte, dst interface{}) {
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("unmarchall(%s): %v", data, err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
