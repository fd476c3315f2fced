// Package server exposes the service over HTTP: article reads, hybrid
// search, the agent endpoints (synchronous and background-job variants),
// login, health and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/akozyrev/scholium/pkg/auth"
	"github.com/akozyrev/scholium/pkg/llms"
	"github.com/akozyrev/scholium/pkg/search"
	"github.com/akozyrev/scholium/pkg/store"
	"github.com/akozyrev/scholium/pkg/task"
	"github.com/akozyrev/scholium/pkg/tool"
)

// The HTTP layer clamps the requested turn budget; the loop itself only
// applies its configured default.
const (
	minMaxTurns = 1
	maxMaxTurns = 8
)

// Searcher runs the two-stage hybrid search.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]store.ArticleMeta, error)
}

// ArticleReader is the read-side store surface the handlers use.
type ArticleReader interface {
	GetArticle(ctx context.Context, id int64) (*store.Article, error)
	ListArticles(ctx context.Context, filter store.ListFilter) ([]store.ArticleMeta, error)
	FetchTexts(ctx context.Context, ids []int64) (map[int64]store.ArticleText, error)
	SearchByKeywords(ctx context.Context, keywords []string, mode string, partial bool, limit int) ([]store.ArticleMeta, error)
	RelatedSemantic(ctx context.Context, articleID int64, topN int) ([]store.ArticleMeta, error)
	RelatedKeywords(ctx context.Context, articleID int64, topN int) ([]store.ArticleMeta, error)
	TopicTimeline(ctx context.Context, topicName, granularity string) ([]store.TimelineBucket, error)
	TopArticlesByTopic(ctx context.Context, topicName string, limit int) ([]store.ArticleMeta, error)
}

// AgentRunner drives one bounded agent conversation.
type AgentRunner interface {
	Run(ctx context.Context, userGoal string, maxTurns int, report tool.Reporter) (string, error)
}

// Config configures the HTTP server.
type Config struct {
	Host string
	Port int
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Searcher Searcher
	Articles ArticleReader
	Agent    AgentRunner
	Provider llms.Provider
	Jobs     *task.Store
	Auth     *auth.Authenticator
}

// Server is the HTTP front of the service.
type Server struct {
	config     Config
	deps       Deps
	metrics    *Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a server. All deps are required except Auth; a nil Auth
// disables authentication entirely (useful for local development).
func New(config Config, deps Deps) (*Server, error) {
	if deps.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if deps.Articles == nil {
		return nil, fmt.Errorf("article reader is required")
	}
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("job store is required")
	}

	s := &Server{
		config:  config,
		deps:    deps,
		metrics: NewMetrics(),
		logger:  slog.Default(),
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(loggingMiddleware)
	r.Use(s.metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		if s.deps.Auth != nil {
			r.Use(s.deps.Auth.HTTPMiddleware)
		}

		r.Route("/api/articles", func(r chi.Router) {
			r.Get("/", s.handleListArticles)
			r.Get("/search", s.handleArticleSearch)
			r.Get("/search/keyword", s.handleKeywordSearch)
			r.Get("/topic/{topic}/timeline", s.handleTopicTimeline)
			r.Get("/topic/{topic}/top", s.handleTopByTopic)
			r.Get("/{id}", s.handleGetArticle)
			r.Get("/{id}/related", s.handleRelated)
		})

		r.Route("/api/agent", func(r chi.Router) {
			r.Post("/combined-search", s.handleCombinedSearch)
			r.Post("/fetch-articles", s.handleFetchArticles)
			r.Post("/get-related-articles", s.handleGetRelatedArticles)
			r.Post("/call-llm", s.handleCallLLM)
			r.Post("/agent-loop", s.handleAgentLoop)
			r.Post("/agent-loop/start", s.handleAgentLoopStart)
			r.Get("/agent-loop/status/{id}", s.handleAgentLoopStatus)
		})
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func clampMaxTurns(n int) int {
	if n < minMaxTurns {
		return minMaxTurns
	}
	if n > maxMaxTurns {
		return maxMaxTurns
	}
	return n
}
