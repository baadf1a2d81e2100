package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/adapter"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/memory"
	"github.com/m-mizutani/noctua/pkg/repository"
	"github.com/m-mizutani/noctua/pkg/service/summarizer"
	"github.com/m-mizutani/noctua/pkg/source/external"
	"github.com/m-mizutani/noctua/pkg/source/notes"
	"github.com/m-mizutani/noctua/pkg/source/profile"
	"github.com/m-mizutani/noctua/pkg/usecase/history"
	"github.com/m-mizutani/noctua/pkg/usecase/note"
	"github.com/m-mizutani/noctua/pkg/usecase/query"
	"github.com/m-mizutani/noctua/pkg/utils/logging"
	"github.com/m-mizutani/noctua/pkg/workflow"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Repository
	project  string
	database string

	// Adapters
	geminiProject  string
	geminiLocation string

	// Behavior
	userID    string
	policyDir string
	external  bool
	logLevel  string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("NOCTUA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// queryFlags returns flags shared by the query-driven commands
func queryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User ID for profile lookup",
			Sources:     cli.EnvVars("NOCTUA_USER_ID"),
			Destination: &cfg.userID,
		},
		&cli.BoolFlag{
			Name:        "external",
			Usage:       "Enable external source lookup",
			Sources:     cli.EnvVars("NOCTUA_EXTERNAL"),
			Destination: &cfg.external,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policy files gating note ingestion",
			Sources:     cli.EnvVars("NOCTUA_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// setupLogger applies the configured log level to the default logger
func (cfg *config) setupLogger() {
	logging.SetDefault(logging.New(cfg.logLevel, os.Stdout))
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// runtime bundles the wired subsystems behind the query-driven commands
type runtime struct {
	repo      repository.Repository
	bus       *bus.Bus
	memory    *memory.Manager
	processor *query.Processor
	notes     *note.UseCase
	history   *history.UseCase
}

// newRuntime wires the bus, memory manager, context sources, and query
// processor together.
func (cfg *config) newRuntime(ctx context.Context) (*runtime, error) {
	cfg.setupLogger()

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	mgr, err := memory.New(repo, summarizer.New(gemini), memory.DefaultConfig())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory manager")
	}

	b := bus.New()
	mgr.Register(b)

	noteSearch := notes.New(repo, gemini)
	noteSearch.Register(b)
	profile.New(repo).Register(b)
	if cfg.external {
		external.New().Register(b)
	}

	var processorOpts []query.Option
	if cfg.external {
		processorOpts = append(processorOpts, query.WithExternalSources())
	}
	processor := query.New(b, mgr, gemini, processorOpts...)
	if err := processor.Initialize(ctx); err != nil {
		b.Close()
		return nil, goerr.Wrap(err, "failed to initialize query processor")
	}

	policy, err := workflow.New(ctx, cfg.policyDir)
	if err != nil {
		b.Close()
		return nil, goerr.Wrap(err, "failed to load ingest policy")
	}

	return &runtime{
		repo:      repo,
		bus:       b,
		memory:    mgr,
		processor: processor,
		notes:     note.New(repo, noteSearch, note.WithPolicy(policy), note.WithBus(b)),
		history:   history.New(repo, history.WithBus(b)),
	}, nil
}

// Close drains and shuts down the bus
func (r *runtime) Close() {
	r.bus.Close()
}
