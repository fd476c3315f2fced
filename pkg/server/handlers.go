package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/akozyrev/scholium/pkg/auth"
	"github.com/akozyrev/scholium/pkg/llms"
	"github.com/akozyrev/scholium/pkg/search"
	"github.com/akozyrev/scholium/pkg/store"
)

// Fallback tuning applied when a request leaves a knob unset. These mirror
// the config defaults; the engine itself only clamps.
const (
	defaultSearchLimit  = 10
	defaultPreselect    = 200
	defaultAlpha        = 0.7
	defaultRelatedTopN  = 10
	defaultListLimit    = 20
	defaultKeywordLimit = 10
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing left to do but log.
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -------- Auth --------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		writeError(w, http.StatusNotImplemented, "authentication is not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// -------- Articles --------

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ListFilter{
		Topic:  q.Get("topic"),
		Tag:    q.Get("tag"),
		Query:  q.Get("q"),
		Limit:  intParam(q.Get("limit"), defaultListLimit),
		Offset: intParam(q.Get("offset"), 0),
	}

	var err error
	if filter.DateFrom, err = dateParam(q.Get("date_from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_from, expected YYYY-MM-DD")
		return
	}
	if filter.DateTo, err = dateParam(q.Get("date_to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_to, expected YYYY-MM-DD")
		return
	}

	metas, err := s.deps.Articles.ListArticles(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(metas))
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}

	article, err := s.deps.Articles.GetArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "article not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load article")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleArticleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	opts := search.Options{
		Limit:     intParam(r.URL.Query().Get("limit"), defaultSearchLimit),
		Preselect: defaultPreselect,
		Alpha:     defaultAlpha,
	}

	metas, err := s.runSearch(r.Context(), q, opts)
	if err != nil {
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(metas))
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	raw := query.Get("q")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keywords = append(keywords, part)
		}
	}

	mode := query.Get("mode")
	if mode == "" {
		mode = "any"
	}
	partial := query.Get("partial") == "true"
	limit := intParam(query.Get("limit"), defaultKeywordLimit)

	metas, err := s.deps.Articles.SearchByKeywords(r.Context(), keywords, mode, partial, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "keyword search failed")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(metas))
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}

	method := r.URL.Query().Get("method")
	topN := intParam(r.URL.Query().Get("top_n"), defaultRelatedTopN)

	metas, err := s.related(r.Context(), id, method, topN)
	if err != nil {
		if errors.Is(err, errUnknownMethod) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to find related articles")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(metas))
}

func (s *Server) handleTopicTimeline(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "month"
	}

	buckets, err := s.deps.Articles.TopicTimeline(r.Context(), topic, granularity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build timeline")
		return
	}

	if buckets == nil {
		buckets = []store.TimelineBucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"topic":    topic,
		"timeline": buckets,
	})
}

func (s *Server) handleTopByTopic(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	limit := intParam(r.URL.Query().Get("limit"), defaultSearchLimit)

	metas, err := s.deps.Articles.TopArticlesByTopic(r.Context(), topic, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load top articles")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(metas))
}

// -------- Agent --------

type combinedSearchRequest struct {
	Query     string   `json:"query"`
	Limit     *int     `json:"limit,omitempty"`
	Preselect *int     `json:"preselect,omitempty"`
	Alpha     *float64 `json:"alpha,omitempty"`
}

func (s *Server) handleCombinedSearch(w http.ResponseWriter, r *http.Request) {
	var req combinedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := search.Options{
		Limit:     defaultSearchLimit,
		Preselect: defaultPreselect,
		Alpha:     defaultAlpha,
	}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	if req.Preselect != nil {
		opts.Preselect = *req.Preselect
	}
	if req.Alpha != nil {
		opts.Alpha = *req.Alpha
	}

	metas, err := s.runSearch(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": orEmpty(metas)})
}

type fetchArticlesRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleFetchArticles(w http.ResponseWriter, r *http.Request) {
	var req fetchArticlesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	texts, err := s.deps.Articles.FetchTexts(r.Context(), req.IDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch articles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": texts})
}

type relatedArticlesRequest struct {
	ArticleID int64  `json:"article_id"`
	Method    string `json:"method,omitempty"`
	TopN      *int   `json:"top_n,omitempty"`
}

func (s *Server) handleGetRelatedArticles(w http.ResponseWriter, r *http.Request) {
	var req relatedArticlesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ArticleID == 0 {
		writeError(w, http.StatusBadRequest, "article_id is required")
		return
	}

	topN := defaultRelatedTopN
	if req.TopN != nil {
		topN = *req.TopN
	}

	metas, err := s.related(r.Context(), req.ArticleID, req.Method, topN)
	if err != nil {
		if errors.Is(err, errUnknownMethod) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to find related articles")
		return
	}

	related := make([]map[string]any, 0, len(metas))
	for _, m := range metas {
		item := map[string]any{"id": m.ID}
		if m.Score != nil {
			item["score"] = *m.Score
		}
		related = append(related, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"related": related}})
}

type callLLMRequest struct {
	Messages []llms.Message `json:"messages"`
}

func (s *Server) handleCallLLM(w http.ResponseWriter, r *http.Request) {
	var req callLLMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	completion, err := s.deps.Provider.Generate(r.Context(), req.Messages, nil)
	if err != nil {
		var infErr *llms.InferenceError
		if errors.As(err, &infErr) && infErr.StatusCode >= 400 && infErr.StatusCode < 500 {
			writeError(w, http.StatusBadGateway, infErr.Message)
			return
		}
		writeError(w, http.StatusBadGateway, "model request failed")
		return
	}

	content := llms.ParseContent(completion.Content)
	var result map[string]any
	if content.IsParsed() {
		result = map[string]any{"parsed": content.Parsed}
	} else {
		result = map[string]any{"raw": content.Raw}
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type agentLoopRequest struct {
	UserGoal string `json:"user_goal"`
	MaxTurns *int   `json:"max_turns,omitempty"`
}

func (r agentLoopRequest) turns() int {
	if r.MaxTurns == nil {
		// The loop applies its configured default.
		return 0
	}
	return clampMaxTurns(*r.MaxTurns)
}

func (s *Server) handleAgentLoop(w http.ResponseWriter, r *http.Request) {
	var req agentLoopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserGoal == "" {
		writeError(w, http.StatusBadRequest, "user_goal is required")
		return
	}

	start := time.Now()
	result, err := s.deps.Agent.Run(r.Context(), req.UserGoal, req.turns(), nil)
	if err != nil {
		s.metrics.RecordAgentRun(time.Since(start), "error")
		writeError(w, http.StatusBadGateway, "agent run failed")
		return
	}
	s.metrics.RecordAgentRun(time.Since(start), "ok")

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleAgentLoopStart(w http.ResponseWriter, r *http.Request) {
	var req agentLoopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserGoal == "" {
		writeError(w, http.StatusBadRequest, "user_goal is required")
		return
	}

	var userID string
	if claims := auth.GetClaims(r); claims != nil {
		userID = claims.Subject
	}

	goal, turns := req.UserGoal, req.turns()

	// The job outlives the request; it runs on the server's lifetime, not
	// the request context.
	jobID := s.deps.Jobs.Start(context.Background(), userID, func(ctx context.Context, progress func(string)) (string, error) {
		start := time.Now()
		result, err := s.deps.Agent.Run(ctx, goal, turns, progress)
		if err != nil {
			s.metrics.RecordAgentRun(time.Since(start), "error")
			return "", err
		}
		s.metrics.RecordAgentRun(time.Since(start), "ok")
		return result, nil
	})

	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (s *Server) handleAgentLoopStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.deps.Jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"started_at":  job.StartedAt,
		"finished_at": job.FinishedAt,
		"result":      job.Result,
		"error":       job.Error,
		"message":     job.Message,
		"log":         job.Log,
	})
}

// -------- Helpers --------

var errUnknownMethod = errors.New("unknown method, expected semantic or keywords")

func (s *Server) related(ctx context.Context, id int64, method string, topN int) ([]store.ArticleMeta, error) {
	switch method {
	case "", "semantic":
		return s.deps.Articles.RelatedSemantic(ctx, id, topN)
	case "keywords":
		return s.deps.Articles.RelatedKeywords(ctx, id, topN)
	default:
		return nil, errUnknownMethod
	}
}

func (s *Server) runSearch(ctx context.Context, query string, opts search.Options) ([]store.ArticleMeta, error) {
	start := time.Now()
	metas, err := s.deps.Searcher.Search(ctx, query, opts)
	s.metrics.RecordSearch(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return metas, nil
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func dateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// orEmpty turns a nil slice into an empty one so responses serialize as
// [] instead of null.
func orEmpty(metas []store.ArticleMeta) []store.ArticleMeta {
	if metas == nil {
		return []store.ArticleMeta{}
	}
	return metas
}
