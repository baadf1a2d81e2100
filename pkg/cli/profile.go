package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/usecase/profile"
	"github.com/urfave/cli/v3"
)

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage the user profile",
		Commands: []*cli.Command{
			profileImportCommand(),
			profileShowCommand(),
		},
	}
}

func profileImportCommand() *cli.Command {
	var (
		cfg       config
		inputPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to a YAML profile file",
			Destination: &inputPath,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "import",
		Usage: "Import a user profile from YAML",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			f, err := os.Open(inputPath)
			if err != nil {
				return goerr.Wrap(err, "failed to open profile file", goerr.V("path", inputPath))
			}
			defer f.Close()

			cfg.setupLogger()
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			p, err := profile.New(repo).Import(ctx, f)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Imported profile for %s\n", p.UserID)
			return nil
		},
	}
}

func profileShowCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, queryFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show the stored user profile",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if cfg.userID == "" {
				return goerr.New("user-id is required")
			}

			cfg.setupLogger()
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			p, err := profile.New(repo).Show(ctx, cfg.userID)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "User: %s (%s)\n", p.DisplayName, p.UserID)
			if p.Bio != "" {
				fmt.Fprintf(w, "Bio: %s\n", p.Bio)
			}
			if len(p.Interests) > 0 {
				fmt.Fprintf(w, "Interests: %s\n", strings.Join(p.Interests, ", "))
			}
			for k, v := range p.Preferences {
				fmt.Fprintf(w, "Preference %s: %s\n", k, v)
			}
			return nil
		},
	}
}
