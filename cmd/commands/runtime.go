package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"filippo.io/age"
	"github.com/cloudwego/eino/components/tool"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/pokus/internal/actors"
	"github.com/dohr-michael/pokus/internal/callbacks"
	"github.com/dohr-michael/pokus/internal/config"
	"github.com/dohr-michael/pokus/internal/events"
	"github.com/dohr-michael/pokus/internal/graph"
	"github.com/dohr-michael/pokus/internal/handlers"
	"github.com/dohr-michael/pokus/internal/memory"
	"github.com/dohr-michael/pokus/internal/models"
	"github.com/dohr-michael/pokus/internal/router"
	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/storage"
	"github.com/dohr-michael/pokus/internal/storage/sqlitedb"
	"github.com/dohr-michael/pokus/internal/tasks"
)

// defaultMaxIterations bounds the tool-calling loop of agent handlers.
const defaultMaxIterations = 8

// loadConfig reads the --config file. A missing file yields the defaults.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("config not found, using defaults", "path", path)
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default slog handler.
func setupLogging(cmd *cli.Command, cfg *config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// stores holds the checkpoint and memory backends selected by storage.driver.
type stores struct {
	checkpoints sessions.Store
	memory      memory.Store
	db          *sqlitedb.DB
}

func (s *stores) Close() {
	if s.checkpoints != nil {
		s.checkpoints.Close()
	}
	if s.memory != nil {
		s.memory.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	switch cfg.Storage.Driver {
	case "memory":
		s.checkpoints = sessions.NewMemStore()
		s.memory = memory.NewMemStore()
	case "file":
		s.checkpoints = sessions.NewFileStore(filepath.Join(cfg.Storage.Dir, "sessions"))
		s.memory = memory.NewFileStore(filepath.Join(cfg.Storage.Dir, "memory"))
	case "sqlite":
		db, err := sqlitedb.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.checkpoints = sessions.NewSQLStore(db)
		s.memory = memory.NewSQLStore(db)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	identity, err := memoryIdentity(cfg.Memory)
	if err != nil {
		s.Close()
		return nil, err
	}
	if identity != nil {
		s.memory = memory.NewSealedStore(s.memory, identity)
		slog.Debug("memory encryption enabled", "recipient", identity.Recipient().String())
	}
	return s, nil
}

// memoryIdentity returns the age identity sealing memory payloads, or nil.
func memoryIdentity(cfg config.MemoryConfig) (*age.X25519Identity, error) {
	if cfg.EncryptionKey != "" {
		return memory.ParseIdentity(cfg.EncryptionKey)
	}
	if cfg.KeyFile == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("memory key file: %w", err)
	}
	return memory.LoadIdentity(cfg.KeyFile)
}

// loadTaskDefinitions returns built-ins plus catalog tasks, with
// tasks.disabled applied. Later definitions replace earlier ones by id.
func loadTaskDefinitions(cfg config.TasksConfig) ([]*tasks.TaskDefinition, error) {
	var defs []*tasks.TaskDefinition
	if cfg.BuiltinEnabled() {
		defs = append(defs, tasks.Builtin()...)
	}
	loaded, err := tasks.LoadDirs(cfg.Dirs, cfg.Pattern)
	if err != nil {
		return nil, err
	}
	defs = append(defs, loaded...)

	for _, def := range defs {
		if slices.Contains(cfg.Disabled, def.ID) {
			def.Enabled = false
		}
	}
	return defs, nil
}

// engine is a fully wired orchestration engine.
type engine struct {
	cfg       *config.Config
	bus       *events.Bus
	stores    *stores
	models    *models.Registry
	registry  *tasks.Registry
	binder    *handlers.Binder
	locker    *sessions.Locker
	pool      *actors.ActorPool
	graph     *graph.Graph
	journal   *storage.EventLogger
	webSearch string
}

func newEngine(ctx context.Context, cfg *config.Config, bus *events.Bus) (*engine, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	e := &engine{
		cfg:       cfg,
		bus:       bus,
		stores:    st,
		models:    models.NewRegistry(cfg.Models),
		registry:  tasks.NewRegistry(),
		locker:    sessions.NewLocker(),
		pool:      actors.NewActorPool(cfg.Turns.MaxConcurrent),
		webSearch: "none",
	}

	directModel, err := e.models.Default(ctx)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("init default model: %w", err)
	}

	var shared []tool.BaseTool
	search, err := handlers.NewWebSearchTool(ctx, cfg.WebSearch)
	if err != nil {
		slog.Warn("web search disabled", "provider", cfg.WebSearch.Provider, "error", err)
	} else if search != nil {
		shared = append(shared, search)
		e.webSearch = cfg.WebSearch.Provider
	}
	e.binder, err = handlers.NewBinder(ctx, e.models, shared, defaultMaxIterations)
	if err != nil {
		e.Close()
		return nil, err
	}

	if err := e.loadTasks(ctx, cfg.Tasks); err != nil {
		e.Close()
		return nil, err
	}

	var classifier router.Classifier
	if m, err := e.models.Resolve(ctx, cfg.Router.Model); err != nil {
		slog.Warn("routing model unavailable, every turn falls back to direct response", "error", err)
	} else {
		classifier = router.NewModelClassifier(m)
	}
	rt := router.NewEngine(e.registry, classifier, router.Options{
		HistoryWindow:     cfg.Router.HistoryWindow,
		SnippetChars:      cfg.Router.SnippetChars,
		FollowupMaxTokens: cfg.Router.FollowupMaxTokens,
		Timeout:           cfg.Router.Timeout.Duration(),
		StickyFollowups:   cfg.Router.StickyFollowups,
	})

	e.graph, err = graph.New(graph.Config{
		Registry:        e.registry,
		Router:          rt,
		Checkpoints:     st.checkpoints,
		Memory:          st.memory,
		Direct:          handlers.NewDirectHandler(directModel, handlers.DefaultDirectPrompt, e.registry.RoutingInfo),
		Bus:             bus,
		Pool:            e.pool,
		Locker:          e.locker,
		TurnTimeout:     cfg.Turns.Timeout.Duration(),
		KeywordFallback: cfg.Router.KeywordFallbackEnabled(),
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	callbacks.Install(bus)
	if cfg.Events.Journal {
		e.journal = storage.NewEventLogger(filepath.Join(cfg.Storage.Dir, "journal"), bus)
	}
	return e, nil
}

// loadTasks binds and registers the configured tasks. Previously registered
// tasks missing from the new set are disabled.
func (e *engine) loadTasks(ctx context.Context, cfg config.TasksConfig) error {
	defs, err := loadTaskDefinitions(cfg)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	e.binder.BindAll(ctx, defs)

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if err := e.registry.Register(def); err != nil {
			slog.Warn("skip task", "id", def.ID, "source", def.Source, "error", err)
			continue
		}
		seen[def.ID] = true
	}
	for _, def := range e.registry.List() {
		if !seen[def.ID] && def.Enabled {
			_ = e.registry.SetEnabled(def.ID, false)
			slog.Info("task removed from catalog, disabled", "id", def.ID)
		}
	}

	registered, enabled := e.registry.Counts()
	slog.Info("tasks loaded", "registered", registered, "enabled", enabled)
	return nil
}

// reload applies a reloaded config's task section.
func (e *engine) reload(ctx context.Context, cfg *config.Config) {
	if err := e.loadTasks(ctx, cfg.Tasks); err != nil {
		slog.Error("reload tasks", "error", err)
		return
	}
	registered, enabled := e.registry.Counts()
	e.bus.Publish(events.NewTypedEvent(events.SourceGateway,
		events.TasksReloadedPayload{Registered: registered, Enabled: enabled}))
}

func (e *engine) Close() {
	if e.journal != nil {
		e.journal.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	e.stores.Close()
}
