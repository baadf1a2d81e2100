package query

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
)

const systemPrompt = `You are an assistant maintaining a personal knowledge base. Answer the user's question using the provided conversation history, notes, profile, and external sources. Ground your answer in the provided material and say so when it does not cover the question.`

//go:embed prompt/answer.md
var answerPromptRaw string

var answerPromptTmpl = template.Must(template.New("answer").Parse(answerPromptRaw))

func buildPrompt(history string, gathered *gatheredContext, userQuery string) (string, error) {
	var buf bytes.Buffer
	err := answerPromptTmpl.Execute(&buf, map[string]any{
		"History":  history,
		"Notes":    gathered.notes,
		"Profile":  gathered.profile,
		"External": gathered.external,
		"Query":    userQuery,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to execute answer prompt template")
	}
	return buf.String(), nil
}
