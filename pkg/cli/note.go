package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/urfave/cli/v3"
)

func noteCommand() *cli.Command {
	return &cli.Command{
		Name:  "note",
		Usage: "Manage knowledge notes",
		Commands: []*cli.Command{
			noteNewCommand(),
			noteSearchCommand(),
			noteListCommand(),
			noteShowCommand(),
		},
	}
}

func noteNewCommand() *cli.Command {
	var (
		cfg       config
		title     string
		inputPath string
		tags      []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "title",
			Aliases:     []string{"t"},
			Usage:       "Note title (defaults to the first line of the content)",
			Destination: &title,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to a file containing the note content ('-' for stdin)",
			Destination: &inputPath,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Usage:       "Tag to attach (repeatable)",
			Destination: &tags,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, queryFlags(&cfg)...)

	return &cli.Command{
		Name:      "new",
		Usage:     "Create a new note",
		ArgsUsage: "[content]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			content, err := readNoteContent(c, inputPath)
			if err != nil {
				return err
			}

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.notes.Create(ctx, title, content, tags)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Created note %s: %s\n", n.ID, n.Title)
			return nil
		},
	}
}

func readNoteContent(c *cli.Command, inputPath string) (string, error) {
	if inputPath == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read stdin")
		}
		return string(data), nil
	}
	if inputPath != "" {
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read input file", goerr.V("path", inputPath))
		}
		return string(data), nil
	}
	if c.Args().Len() == 0 {
		return "", goerr.New("note content is required (argument or --input)")
	}
	return strings.Join(c.Args().Slice(), " "), nil
}

func noteSearchCommand() *cli.Command {
	var (
		cfg   config
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of results",
			Value:       5,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search notes by similarity",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("search query is required")
			}

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			refs, err := rt.notes.Search(ctx, strings.Join(c.Args().Slice(), " "), int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(refs) == 0 {
				fmt.Fprintf(w, "No matching notes.\n")
				return nil
			}
			for _, ref := range refs {
				fmt.Fprintf(w, "%s  %s\n", ref.ID, ref.Title)
				if len(ref.Tags) > 0 {
					fmt.Fprintf(w, "    tags: %s\n", strings.Join(ref.Tags, ", "))
				}
			}
			return nil
		},
	}
}

func noteListCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of notes to skip",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of notes",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List stored notes",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			items, err := rt.notes.List(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, n := range items {
				fmt.Fprintf(w, "%s  %s  %s\n", n.ID, n.UpdatedAt.Format("2006-01-02"), n.Title)
			}
			return nil
		},
	}
}

func noteShowCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a note",
		ArgsUsage: "<note-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("note ID is required")
			}

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.notes.Get(ctx, model.NoteID(c.Args().First()))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "# %s\n\n%s\n", n.Title, n.Content)
			if len(n.Tags) > 0 {
				fmt.Fprintf(w, "\ntags: %s\n", strings.Join(n.Tags, ", "))
			}
			return nil
		},
	}
}
