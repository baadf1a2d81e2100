package query

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/adapter"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/memory"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/utils/logging"
	"google.golang.org/genai"
)

// DefaultQuery replaces an empty or whitespace-only query before any
// retrieval step.
const DefaultQuery = "What topics from my notes deserve a closer look right now?"

const (
	defaultGatherTimeout    = 10 * time.Second
	defaultMaxContextTokens = 4000
	defaultNoteLimit        = 5
	defaultExternalLimit    = 3
)

// Processor orchestrates a single query: it gathers context from the other
// subsystems over the bus, assembles a prompt from the conversation memory
// and the retrieved context, invokes the model, and persists the exchange
// as a new turn.
type Processor struct {
	bus    *bus.Bus
	memory *memory.Manager
	gemini adapter.Gemini

	externalEnabled  bool
	gatherTimeout    time.Duration
	maxContextTokens int

	mu          sync.Mutex
	initialized bool
	rooms       map[string]model.ConversationID
}

type Option func(*Processor)

// WithExternalSources enables external-search context gathering
func WithExternalSources() Option {
	return func(p *Processor) {
		p.externalEnabled = true
	}
}

// WithGatherTimeout sets the per-collaborator timeout for context gathering
func WithGatherTimeout(d time.Duration) Option {
	return func(p *Processor) {
		p.gatherTimeout = d
	}
}

// WithMaxContextTokens bounds the conversation history included in prompts
func WithMaxContextTokens(n int) Option {
	return func(p *Processor) {
		p.maxContextTokens = n
	}
}

func New(b *bus.Bus, mem *memory.Manager, gemini adapter.Gemini, options ...Option) *Processor {
	p := &Processor{
		bus:              b,
		memory:           mem,
		gemini:           gemini,
		gatherTimeout:    defaultGatherTimeout,
		maxContextTokens: defaultMaxContextTokens,
		rooms:            make(map[string]model.ConversationID),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Initialize prepares the processor for use. ProcessQuery fails with
// ErrNotInitialized until it has been called.
func (p *Processor) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	p.bus.Subscribe(model.ContextQuery, model.TypeConversationDeleted, p.handleConversationDeleted)
	p.initialized = true
	return nil
}

// handleConversationDeleted releases room bindings to a deleted
// conversation so the next query for the room starts a fresh one.
func (p *Processor) handleConversationDeleted(ctx context.Context, msg *model.Message) (any, error) {
	del, ok := msg.Payload.(*model.ConversationDeleted)
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidMessage, "unexpected payload",
			goerr.V("type", msg.Type))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for room, id := range p.rooms {
		if id == del.ConversationID {
			delete(p.rooms, room)
		}
	}
	return nil, nil
}

// Options customize a single ProcessQuery call.
type Options struct {
	RoomID        string
	UserID        string
	UserName      string
	InterfaceType model.InterfaceType
	Schema        *model.ResultSchema
}

// ProcessQuery runs the full pipeline for one user query and returns the
// answer with the context it was grounded on. An empty query is replaced
// with DefaultQuery. When opts.Schema is supplied the model is asked for
// structured output, which is validated before it is returned.
func (p *Processor) ProcessQuery(ctx context.Context, userQuery string, opts *Options) (*model.QueryResult, error) {
	logger := logging.From(ctx)

	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil, goerr.Wrap(model.ErrNotInitialized, "call Initialize first")
	}
	p.mu.Unlock()

	if opts == nil {
		opts = &Options{}
	}
	userQuery = strings.TrimSpace(userQuery)
	if userQuery == "" {
		userQuery = DefaultQuery
	}

	conv, err := p.ensureConversation(ctx, opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to ensure conversation")
	}

	gathered := p.gatherContext(ctx, userQuery, opts)
	if gathered.err != nil {
		return nil, gathered.err
	}

	history, err := p.memory.ContextForPrompt(ctx, conv.ID, p.maxContextTokens)
	if err != nil {
		logger.Warn("failed to build conversation context, continuing without it",
			"conversation_id", conv.ID, "error", err)
		history = ""
	}

	prompt, err := buildPrompt(history, gathered, userQuery)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build prompt")
	}

	answer, err := p.invokeModel(ctx, prompt, opts.Schema)
	if err != nil {
		return nil, goerr.Wrap(model.ErrModelInvocation, err.Error())
	}

	result := &model.QueryResult{
		Answer:          answer,
		Citations:       citations(gathered),
		RelatedNotes:    gathered.notes,
		Profile:         gathered.profile,
		ExternalSources: gathered.external,
	}

	var validationErr error
	if opts.Schema != nil && opts.Schema.Schema != nil {
		obj, err := validateStructured(answer, opts.Schema)
		if err != nil {
			// The raw answer still exists, so the turn is persisted
			// below before the error surfaces to the caller.
			validationErr = err
		} else {
			result.Object = obj
		}
	}

	turn := &model.Turn{
		Query:    userQuery,
		Response: answer,
		UserID:   opts.UserID,
		UserName: opts.UserName,
	}
	if err := p.memory.AddTurn(ctx, conv.ID, turn); err != nil {
		return nil, goerr.Wrap(err, "failed to persist turn", goerr.V("conversation_id", conv.ID))
	}

	p.bus.Notify(ctx, model.NewNotification(model.ContextQuery, model.TypeConversationUpdated, &model.ConversationUpdate{
		ConversationID: conv.ID,
		TurnID:         turn.ID,
		RoomID:         opts.RoomID,
	}))

	if validationErr != nil {
		return nil, validationErr
	}
	return result, nil
}

// ensureConversation binds a room to a conversation, creating one on first
// use. Calls without a room get a fresh one-shot conversation.
func (p *Processor) ensureConversation(ctx context.Context, opts *Options) (*model.Conversation, error) {
	ifType := opts.InterfaceType
	if ifType == "" {
		ifType = model.InterfaceCLI
	}

	if opts.RoomID == "" {
		return p.memory.CreateConversation(ctx, "", ifType)
	}

	// The lock spans check and create so two first queries for the same
	// room cannot both create a conversation.
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.rooms[opts.RoomID]; ok {
		return p.memory.GetConversation(ctx, id)
	}

	conv, err := p.memory.CreateConversation(ctx, opts.RoomID, ifType)
	if err != nil {
		return nil, err
	}
	p.rooms[opts.RoomID] = conv.ID
	return conv, nil
}

func (p *Processor) invokeModel(ctx context.Context, prompt string, schema *model.ResultSchema) (string, error) {
	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	if schema != nil && schema.Schema != nil {
		converted, err := convertJSONSchemaToGenai(schema.Schema)
		if err != nil {
			return "", goerr.Wrap(err, "failed to convert result schema")
		}
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = converted
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := p.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", goerr.New("empty model response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", goerr.New("model returned empty answer")
	}
	return answer, nil
}

// citations maps the context actually handed to the model into the
// citation list attached to the result.
func citations(g *gatheredContext) []*model.Citation {
	out := []*model.Citation{}
	for _, note := range g.notes {
		out = append(out, &model.Citation{
			Source:  "note",
			Title:   note.Title,
			Excerpt: note.Excerpt,
		})
	}
	for _, ext := range g.external {
		out = append(out, &model.Citation{
			Source:  ext.Source,
			Title:   ext.Title,
			Excerpt: ext.Excerpt,
		})
	}
	return out
}
