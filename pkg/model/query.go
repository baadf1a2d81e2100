package model

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrContextUnavailable = goerr.New("mandatory context unavailable")
	ErrModelInvocation    = goerr.New("model invocation failed")
	ErrValidation         = goerr.New("structured output validation failed")
	ErrNotInitialized     = goerr.New("query processor is not initialized")
)

// Citation points at a piece of retrieved context the answer relies on
type Citation struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// NoteRef is a retrieved note with its relevance score
type NoteRef struct {
	ID      NoteID   `json:"id"`
	Title   string   `json:"title"`
	Excerpt string   `json:"excerpt"`
	Tags    []string `json:"tags,omitempty"`
	Score   float64  `json:"score"`
}

// ProfileRef is the prompt-ready view of the user profile
type ProfileRef struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Summary     string `json:"summary"`
}

// ExternalRef is a retrieved external source excerpt
type ExternalRef struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

// QueryResult is the outcome of one processed query. Object is set only when
// the caller supplied a result schema.
type QueryResult struct {
	Answer          string         `json:"answer"`
	Citations       []*Citation    `json:"citations"`
	RelatedNotes    []*NoteRef     `json:"related_notes"`
	Object          any            `json:"object,omitempty"`
	Profile         *ProfileRef    `json:"profile,omitempty"`
	ExternalSources []*ExternalRef `json:"external_sources,omitempty"`
}

// DefaultFillPolicy controls whether missing optional fields with documented
// defaults are filled in after a failed validation before re-validating once.
type DefaultFillPolicy string

const (
	FillDefaults   DefaultFillPolicy = "fill"
	RejectDefaults DefaultFillPolicy = "reject"
)

// ResultSchema declares the structured output contract for a query. When
// ProfileRequired is set, a failed profile fetch aborts the whole query
// instead of degrading to partial context.
type ResultSchema struct {
	Schema          *jsonschema.Schema
	ProfileRequired bool
	FillPolicy      DefaultFillPolicy
}
