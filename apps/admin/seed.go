package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/admissions/core/profile"
)

type (
	seedNotification struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
	}

	seedProfile struct {
		Email         string             `yaml:"email"`
		Classes       []profile.Class    `yaml:"classes"`
		Lessons       []profile.Lesson   `yaml:"lessons"`
		Notifications []seedNotification `yaml:"notifications"`
	}

	seedFile struct {
		Profiles []seedProfile `yaml:"profiles"`
	}
)

func (cli *commandLine) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load classes, lessons and notifications of existing users from a YAML file",
		Example: `profiles:
  - email: thuto@example.com
    classes:
      - {subject: DM-Discrete Mathematics, instructor: Dr. Smith, time: "Mon 10:00-12:00"}
    lessons:
      - {name: DM-Discrete Mathematics, week: Week 1}
    notifications:
      - {title: Welcome Thuto!, description: Your semester starts soon.}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var file seedFile
			if err = yaml.Unmarshal(data, &file); err != nil {
				return errors.Wrap(err, "parsing seed file")
			}
			for _, p := range file.Profiles {
				if err = cli.seedProfile(cmd.Context(), p); err != nil {
					return errors.Wrap(err, p.Email)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s: %d classes, %d lessons, %d notifications\n",
					p.Email, len(p.Classes), len(p.Lessons), len(p.Notifications))
			}
			return nil
		},
	}
}

func (cli *commandLine) seedProfile(ctx context.Context, p seedProfile) error {
	usr, err := cli.usrRepo.GetUserByEmail(ctx, p.Email)
	if err != nil {
		return err
	}
	if err = cli.profileSvc.AddClasses(ctx, usr.ID, p.Classes...); err != nil {
		return err
	}
	if err = cli.profileSvc.AddLessons(ctx, usr.ID, p.Lessons...); err != nil {
		return err
	}
	for _, n := range p.Notifications {
		if err = cli.profileSvc.Notify(ctx, usr.ID, n.Title, n.Description); err != nil {
			return err
		}
	}
	return nil
}
