package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/usecase/query"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
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
		Name:  "chat",
		Usage: "Interactive chat against the knowledge base",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			// All turns of one session share a room
			if roomID == "" {
				roomID = "chat-" + uuid.NewString()
			}

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Chat session started. Type 'exit' to quit.\n")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "exit" || line == "quit" {
					break
				}
				if line == "" {
					continue
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " thinking..."
				sp.Start()

				result, err := rt.processor.ProcessQuery(ctx, line, &query.Options{
					RoomID:        roomID,
					UserID:        cfg.userID,
					InterfaceType: model.InterfaceCLI,
				})
				sp.Stop()

				if err != nil {
					fmt.Fprintf(w, "Error: %s\n", err)
					continue
				}

				fmt.Fprintf(w, "\n")
				printResult(w, result)
				fmt.Fprintf(w, "\n")
			}

			fmt.Fprintf(w, "Bye.\n")
			return nil
		},
	}
}
