package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akozyrev/scholium/pkg/agent"
	"github.com/akozyrev/scholium/pkg/auth"
	"github.com/akozyrev/scholium/pkg/config"
	"github.com/akozyrev/scholium/pkg/embedder"
	"github.com/akozyrev/scholium/pkg/llms"
	"github.com/akozyrev/scholium/pkg/search"
	"github.com/akozyrev/scholium/pkg/server"
	"github.com/akozyrev/scholium/pkg/store"
	"github.com/akozyrev/scholium/pkg/task"
	"github.com/akozyrev/scholium/pkg/tool"
	"github.com/akozyrev/scholium/pkg/tool/articletool"
	"github.com/akozyrev/scholium/pkg/tool/searchtool"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cli.Config == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	dbPool := config.NewDBPool()
	defer dbPool.Close()

	db, err := dbPool.Get(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	articleStore, err := store.NewArticleStore(db)
	if err != nil {
		return fmt.Errorf("failed to create article store: %w", err)
	}

	emb, err := embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
		APIKey:    cfg.Embedder.APIKey,
		BaseURL:   cfg.Embedder.BaseURL,
		Model:     cfg.Embedder.Model,
		Dimension: cfg.Embedder.Dimension,
		Timeout:   time.Duration(cfg.Embedder.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	provider, err := llms.NewOpenAIProvider(llms.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create llm provider: %w", err)
	}

	engine, err := search.NewEngine(emb, articleStore)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	registry, err := buildRegistry(engine, articleStore, cfg)
	if err != nil {
		return err
	}

	loop, err := agent.New(provider, registry, agent.Config{MaxTurns: cfg.Agent.MaxTurns})
	if err != nil {
		return fmt.Errorf("failed to create agent loop: %w", err)
	}

	authn, err := auth.NewAuthenticator(
		cfg.Auth.Secret,
		cfg.Auth.Issuer,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute,
		credentialStore{articleStore},
		verifyPassword,
	)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	srv, err := server.New(server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}, server.Deps{
		Searcher: engine,
		Articles: articleStore,
		Agent:    loop,
		Provider: provider,
		Jobs:     task.NewStore(),
		Auth:     authn,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	slog.Info("scholium starting",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"model", provider.GetModelName(),
		"embedder", cfg.Embedder.Model,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildRegistry(engine *search.Engine, articleStore *store.ArticleStore, cfg *config.Config) (*tool.Registry, error) {
	alpha := 0.7
	if cfg.Search.Alpha != nil {
		alpha = *cfg.Search.Alpha
	}

	searchTool, err := searchtool.New(engine, searchtool.Defaults{
		Limit:     cfg.Search.Limit,
		Preselect: cfg.Search.Preselect,
		Alpha:     alpha,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}

	fetchTool, err := articletool.NewFetchTool(articleStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch tool: %w", err)
	}

	relatedTool, err := articletool.NewRelatedTool(articleStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create related tool: %w", err)
	}

	registry, err := tool.NewRegistry(searchTool, fetchTool, relatedTool)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	return registry, nil
}

// credentialStore adapts the article store's users table to the auth layer.
type credentialStore struct {
	store *store.ArticleStore
}

func (c credentialStore) Lookup(ctx context.Context, username string) (*auth.User, error) {
	u, err := c.store.GetUserByEmail(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, auth.ErrInvalidCredentials
	}
	return &auth.User{ID: u.ID, Email: u.Email, Password: u.PasswordHash}, nil
}

// verifyPassword is the credential verifier seam. Deployments that store
// hashed passwords replace this with their hash comparison.
func verifyPassword(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// ValidateCmd validates a configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}
