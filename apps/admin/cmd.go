package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/admissions/core/profile"
	"github.com/trezcool/admissions/core/user"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("password cannot be empty")
)

type userStore interface {
	user.Repository
	QueryAllUsers(ctx context.Context) ([]user.User, error)
}

type commandLine struct {
	db         *sqlx.DB
	usrRepo    userStore
	profileSvc *profile.Service
	bcryptCost int
}

func newProfileService(db *sqlx.DB) *profile.Service {
	return profile.NewService(sqlxrepos.NewProfileRepository(db), sqlxrepos.NewApplicationRepository(db))
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Admissions administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.seedCmd(),
		cli.usersCmd(),
	)
	return root
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

func (cli *commandLine) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List all users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := cli.usrRepo.QueryAllUsers(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tCREATED")
			for _, usr := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", usr.ID, usr.Email, usr.Name, usr.Role, usr.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
