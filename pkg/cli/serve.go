package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/usecase/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

type askParams struct {
	Question string `json:"question" jsonschema:"Question to answer from the knowledge base"`
	RoomID   string `json:"room_id,omitempty" jsonschema:"Room ID to continue an existing conversation"`
}

type searchParams struct {
	Query string `json:"query" jsonschema:"Search text"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of results"`
}

func serveCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, queryFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Expose the knowledge base as an MCP server over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			server := mcp.NewServer(&mcp.Implementation{
				Name:    "noctua",
				Version: "0.1.0",
			}, nil)

			mcp.AddTool(server, &mcp.Tool{
				Name:        "ask_knowledge",
				Description: "Answer a question using the personal knowledge base, profile, and conversation history",
			}, func(ctx context.Context, req *mcp.CallToolRequest, params *askParams) (*mcp.CallToolResult, any, error) {
				result, err := rt.processor.ProcessQuery(ctx, params.Question, &query.Options{
					RoomID:        params.RoomID,
					UserID:        cfg.userID,
					InterfaceType: model.InterfaceMCP,
				})
				if err != nil {
					return nil, nil, err
				}
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						&mcp.TextContent{Text: result.Answer},
					},
				}, nil, nil
			})

			mcp.AddTool(server, &mcp.Tool{
				Name:        "search_notes",
				Description: "Search stored notes by semantic similarity",
			}, func(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
				refs, err := rt.notes.Search(ctx, params.Query, params.Limit)
				if err != nil {
					return nil, nil, err
				}
				encoded, err := json.MarshalIndent(refs, "", "  ")
				if err != nil {
					return nil, nil, goerr.Wrap(err, "failed to encode search results")
				}
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						&mcp.TextContent{Text: string(encoded)},
					},
				}, nil, nil
			})

			fmt.Fprintf(c.Root().ErrWriter, "MCP server listening on stdio\n")
			if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
				return goerr.Wrap(err, "MCP server failed")
			}
			return nil
		},
	}
}
