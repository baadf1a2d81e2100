package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/usecase/history"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Manage conversation history",
		Commands: []*cli.Command{
			historyListCommand(),
			historyShowCommand(),
			historyDeleteCommand(),
			historyExportCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	var (
		cfg   config
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of conversations",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List recent conversations",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			convs, err := history.New(repo).List(ctx, int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, conv := range convs {
				room := conv.RoomID
				if room == "" {
					room = "-"
				}
				fmt.Fprintf(w, "%s  %s  %s  %s\n",
					conv.ID, conv.UpdatedAt.Format("2006-01-02 15:04"), conv.InterfaceType, room)
			}
			return nil
		},
	}
}

func historyShowCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a conversation with its summaries and turns",
		ArgsUsage: "<conversation-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("conversation ID is required")
			}

			cfg.setupLogger()
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			conv, err := history.New(repo).Show(ctx, model.ConversationID(c.Args().First()))
			if err != nil {
				return err
			}

			printConversation(c.Root().Writer, conv)
			return nil
		},
	}
}

func historyDeleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a conversation",
		ArgsUsage: "<conversation-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("conversation ID is required")
			}

			cfg.setupLogger()
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			id := model.ConversationID(c.Args().First())
			if err := history.New(repo).Delete(ctx, id); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Deleted conversation %s\n", id)
			return nil
		},
	}
}

func historyExportCommand() *cli.Command {
	var (
		cfg    config
		bucket string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket for the export",
			Sources:     cli.EnvVars("NOCTUA_EXPORT_BUCKET"),
			Destination: &bucket,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "export",
		Usage:     "Export a conversation as JSON to Cloud Storage",
		ArgsUsage: "<conversation-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("conversation ID is required")
			}

			cfg.setupLogger()
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			storage, err := cfg.newStorage(ctx, bucket)
			if err != nil {
				return err
			}

			uc := history.New(repo, history.WithStorage(storage))
			key, err := uc.Export(ctx, model.ConversationID(c.Args().First()))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Exported to gs://%s/%s\n", bucket, key)
			return nil
		},
	}
}
