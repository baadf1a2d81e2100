package cli

import (
	"fmt"
	"io"

	"github.com/m-mizutani/noctua/pkg/model"
)

func printResult(w io.Writer, result *model.QueryResult) {
	fmt.Fprintf(w, "%s\n", result.Answer)

	if len(result.Citations) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for _, c := range result.Citations {
			fmt.Fprintf(w, "  - [%s] %s\n", c.Source, c.Title)
		}
	}
}

func printConversation(w io.Writer, conv *model.Conversation) {
	fmt.Fprintf(w, "Conversation: %s\n", conv.ID)
	if conv.RoomID != "" {
		fmt.Fprintf(w, "Room: %s\n", conv.RoomID)
	}
	fmt.Fprintf(w, "Interface: %s\n", conv.InterfaceType)
	fmt.Fprintf(w, "Updated: %s\n", conv.UpdatedAt.Format("2006-01-02 15:04:05"))

	if len(conv.Summaries) > 0 {
		fmt.Fprintf(w, "\nSummaries:\n")
		for _, s := range conv.Summaries {
			fmt.Fprintf(w, "  - %s\n", s.Content)
		}
	}

	if len(conv.ActiveTurns) > 0 {
		fmt.Fprintf(w, "\nRecent turns:\n")
		for _, t := range conv.ActiveTurns {
			fmt.Fprintf(w, "> %s\n%s\n\n", t.Query, t.Response)
		}
	}
}
