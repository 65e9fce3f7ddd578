package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core/user"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
	"github.com/trezcool/admissions/tests"
)

func setup(t *testing.T) *commandLine {
	db := testutil.OpenDB(t)
	return &commandLine{
		db:         db,
		usrRepo:    sqlxrepos.NewUserRepository(db),
		profileSvc: newProfileService(db),
		bcryptCost: 10,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
	wantOut    string
}

func (cli *commandLine) exec(args []string) (string, error) {
	var out bytes.Buffer
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func runCliTests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(fd int) ([]byte, error) {
				return []byte(tt.pwd), nil
			}
			out, err := cli.exec(tt.args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				require.NoError(t, err)
				if tt.wantOut != "" {
					assert.Contains(t, out, tt.wantOut)
				}
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s), only received 0"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
	}
	runCliTests(t, cli, tests, nil)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no email", args: []string{"adduser"}, pwd: "pw", wantErrStr: `required flag(s) "email" not set`},
		{name: "no password", args: []string{"adduser", "--email", "a@x.com", "--name", "A"}, wantErr: errEmptyPassword},
		{name: "new user needs a name", args: []string{"adduser", "--email", "a@x.com"}, pwd: "pw", wantErrStr: "--name is required for a new user"},
		{name: "student", args: []string{"adduser", "--email", "Thuto@X.com", "--name", "Thuto Moleps"}, pwd: "pw123456", wantOut: "created student thuto@x.com"},
		{name: "admin", args: []string{"adduser", "--email", "boss@x.com", "--name", "Boss", "--admin"}, pwd: "pw123456", wantOut: "created admin boss@x.com"},
		{name: "existing user", args: []string{"adduser", "--email", "thuto@x.com"}, pwd: "new-pass-1", wantOut: "updated password of thuto@x.com"},
	}
	runCliTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		usr, err := cli.usrRepo.GetUserByEmail(ctx, tt.args[2])
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword(tt.pwd))
	})

	thuto, err := cli.usrRepo.GetUserByEmail(ctx, "thuto@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, thuto.Role)
	assert.Equal(t, "TM", thuto.Initials)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, "User", "awe@test.cd", "mdr", user.RoleStudent)

	tests := []cliTest{
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
		{name: "no email", args: []string{"resetpassword"}, pwd: "lol", wantErrStr: `required flag(s) "email" not set`},
		{name: "email but no password", args: []string{"resetpassword", "--email", usr.Email}, wantErr: errEmptyPassword},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@x.com"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", usr.Email}, pwd: "lmao", wantOut: "password of awe@test.cd reset"},
	}
	runCliTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		refreshed, err := cli.usrRepo.GetUserByID(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
		assert.NoError(t, refreshed.CheckPassword(tt.pwd))
	})
}

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	thuto := testutil.CreateUser(t, cli.usrRepo, "Thuto Moleps", "thuto@x.com", "", user.RoleStudent)

	dir := t.TempDir()
	valid := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
profiles:
  - email: thuto@x.com
    classes:
      - {subject: DM-Discrete Mathematics, instructor: Dr. Smith, time: "Mon 10:00-12:00"}
      - {subject: CS-Computer Science, instructor: Prof. Lee, time: "Wed 14:00-16:00"}
    lessons:
      - {name: DM-Discrete Mathematics, week: Week 1}
    notifications:
      - {title: Welcome Thuto!, description: Your semester starts soon.}
`), 0o600))
	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("profiles:\n  - email: nobody@x.com\n"), 0o600))
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("profiles: [\n"), 0o600))

	tests := []cliTest{
		{name: "no file", args: []string{"seed"}, wantErrStr: "accepts 1 arg(s), received 0"},
		{name: "unknown user", args: []string{"seed", unknown}, wantErrStr: "nobody@x.com: user not found"},
		{name: "seed", args: []string{"seed", valid}, wantOut: "seeded thuto@x.com: 2 classes, 1 lessons, 1 notifications"},
	}
	runCliTests(t, cli, tests, nil)

	_, err := cli.exec([]string{"seed", broken})
	assert.ErrorContains(t, err, "parsing seed file")

	classes, err := cli.profileSvc.Classes(ctx, thuto.ID)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
	ns, err := cli.profileSvc.Notifications(ctx, thuto.ID)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "Welcome Thuto!", ns[0].Title)
}

func Test_commandLine_users(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, cli.usrRepo, "Alice", "alice@x.com", "", user.RoleStudent)
	testutil.CreateUser(t, cli.usrRepo, "Boss", "boss@x.com", "", user.RoleAdmin)

	out, err := cli.exec([]string{"users"})
	require.NoError(t, err)
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "alice@x.com")
	assert.Contains(t, out, "admin")
}
