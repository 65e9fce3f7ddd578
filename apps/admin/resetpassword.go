package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/admissions/core"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password. The password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
			if err != nil {
				return err
			}
			if err = usr.SetPassword(pwd, cli.bcryptCost); err != nil {
				return err
			}
			if err = cli.usrRepo.UpdatePassword(ctx, usr.ID, usr.PasswordHash, core.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password of %s reset\n", usr.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
