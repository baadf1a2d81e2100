package cli

import (
	"context"

	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/usecase/query"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg    config
		roomID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "room",
			Aliases:     []string{"r"},
			Usage:       "Room ID to continue an existing conversation",
			Sources:     cli.EnvVars("NOCTUA_ROOM_ID"),
			Destination: &roomID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, queryFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a one-shot question against the knowledge base",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.processor.ProcessQuery(ctx, c.Args().First(), &query.Options{
				RoomID:        roomID,
				UserID:        cfg.userID,
				InterfaceType: model.InterfaceCLI,
			})
			if err != nil {
				return err
			}

			printResult(c.Root().Writer, result)
			return nil
		},
	}
}
