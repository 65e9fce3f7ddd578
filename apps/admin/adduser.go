package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, email string
	var isAdmin bool

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or set the password of an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			usr, created, err := cli.addUser(cmd.Context(), name, email, pwd, isAdmin)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", usr.Role, usr.Email, usr.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "updated password of %s\n", usr.Email)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringVar(&name, "name", "", "the user's full name (new users only)")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "create an admin instead of a student")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// addUser creates a user.User, or resets its password when the email is taken.
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, isAdmin bool) (user.User, bool, error) {
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err = usr.SetPassword(pwd, cli.bcryptCost); err != nil {
			return user.User{}, false, err
		}
		return usr, false, cli.usrRepo.UpdatePassword(ctx, usr.ID, usr.PasswordHash, core.Now())
	case errors.Cause(err) != user.ErrNotFound:
		return user.User{}, false, err
	}

	if name == "" {
		return user.User{}, false, errors.New("--name is required for a new user")
	}
	role := user.RoleStudent
	if isAdmin {
		role = user.RoleAdmin
	}
	now := core.Now()
	usr = user.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Initials:  user.DeriveInitials(name),
		Role:      role,
		Group:     user.DefaultGroup,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(pwd, cli.bcryptCost); err != nil {
		return user.User{}, false, err
	}
	usr, err = cli.usrRepo.CreateUser(ctx, usr)
	return usr, err == nil, err
}
