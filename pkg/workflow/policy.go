package workflow

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const redactedMark = "[REDACTED]"

// regoPrintHook implements print.Hook interface for Rego print() statements
type regoPrintHook struct{}

func (h *regoPrintHook) Print(ctx print.Context, message string) error {
	logging.Default().Debug("rego print", "message", message)
	return nil
}

// Policy gates note ingestion with a Rego policy. The policy decides
// whether a note is accepted, which extra tags it gets, and which
// substrings of its content must be masked before it is stored.
type Policy struct {
	ingest *rego.PreparedEvalQuery
}

// Decision is the outcome of evaluating the ingest policy for one note.
type Decision struct {
	Allow  bool
	Reason string
	Tags   []string
	Redact []string
}

// New loads all Rego files under policyDir and prepares the ingest query.
// An empty policyDir, or one containing no .rego files, yields a Policy
// that accepts every note unchanged.
func New(ctx context.Context, policyDir string) (*Policy, error) {
	if policyDir == "" {
		return &Policy{}, nil
	}

	ingest, err := loadPolicies(ctx, policyDir)
	if err != nil {
		return nil, err
	}
	return &Policy{ingest: ingest}, nil
}

// Evaluate runs the ingest policy against the note and returns the
// decision. The note itself is not modified.
func (p *Policy) Evaluate(ctx context.Context, note *model.Note) (*Decision, error) {
	if p.ingest == nil {
		return &Decision{Allow: true}, nil
	}

	input := map[string]any{
		"title":   note.Title,
		"content": note.Content,
		"tags":    note.Tags,
	}

	rs, err := p.ingest.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate ingest policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Decision{Allow: true}, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid ingest policy result")
	}

	decision := &Decision{
		Reason: getString(data, "reason"),
		Tags:   getStrings(data, "tags"),
		Redact: getStrings(data, "redact"),
	}
	if allow, ok := data["allow"].(bool); ok {
		decision.Allow = allow
	}
	return decision, nil
}

// Apply folds an allow decision into the note: extra tags are appended
// (duplicates skipped) and redacted substrings are masked in the content.
func (d *Decision) Apply(note *model.Note) {
	for _, tag := range d.Tags {
		if !containsTag(note.Tags, tag) {
			note.Tags = append(note.Tags, tag)
		}
	}
	for _, secret := range d.Redact {
		if secret == "" {
			continue
		}
		note.Content = strings.ReplaceAll(note.Content, secret, redactedMark)
		note.Title = strings.ReplaceAll(note.Title, secret, redactedMark)
	}
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getStrings(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
