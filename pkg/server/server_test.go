package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozyrev/scholium/pkg/auth"
	"github.com/akozyrev/scholium/pkg/llms"
	"github.com/akozyrev/scholium/pkg/search"
	"github.com/akozyrev/scholium/pkg/store"
	"github.com/akozyrev/scholium/pkg/task"
	"github.com/akozyrev/scholium/pkg/tool"
)

type fakeSearcher struct {
	lastQuery string
	lastOpts  search.Options
	metas     []store.ArticleMeta
	err       error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts search.Options) ([]store.ArticleMeta, error) {
	f.lastQuery = query
	f.lastOpts = opts
	return f.metas, f.err
}

type fakeArticles struct {
	articles map[int64]*store.Article
	texts    map[int64]store.ArticleText
	metas    []store.ArticleMeta
	filter   store.ListFilter
}

func (f *fakeArticles) GetArticle(ctx context.Context, id int64) (*store.Article, error) {
	if a, ok := f.articles[id]; ok {
		return a, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeArticles) ListArticles(ctx context.Context, filter store.ListFilter) ([]store.ArticleMeta, error) {
	f.filter = filter
	return f.metas, nil
}

func (f *fakeArticles) FetchTexts(ctx context.Context, ids []int64) (map[int64]store.ArticleText, error) {
	return f.texts, nil
}

func (f *fakeArticles) SearchByKeywords(ctx context.Context, keywords []string, mode string, partial bool, limit int) ([]store.ArticleMeta, error) {
	return f.metas, nil
}

func (f *fakeArticles) RelatedSemantic(ctx context.Context, articleID int64, topN int) ([]store.ArticleMeta, error) {
	return f.metas, nil
}

func (f *fakeArticles) RelatedKeywords(ctx context.Context, articleID int64, topN int) ([]store.ArticleMeta, error) {
	return f.metas, nil
}

func (f *fakeArticles) TopicTimeline(ctx context.Context, topicName, granularity string) ([]store.TimelineBucket, error) {
	return nil, nil
}

func (f *fakeArticles) TopArticlesByTopic(ctx context.Context, topicName string, limit int) ([]store.ArticleMeta, error) {
	return f.metas, nil
}

type fakeAgent struct {
	lastGoal  string
	lastTurns int
	result    string
	err       error
}

func (f *fakeAgent) Run(ctx context.Context, userGoal string, maxTurns int, report tool.Reporter) (string, error) {
	f.lastGoal = userGoal
	f.lastTurns = maxTurns
	if report != nil {
		report("[tool call] combined_search")
	}
	return f.result, f.err
}

type fakeProvider struct {
	completion *llms.Completion
	err        error
}

func (f *fakeProvider) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (*llms.Completion, error) {
	return f.completion, f.err
}

func (f *fakeProvider) GetModelName() string { return "stub" }

type fixtures struct {
	searcher *fakeSearcher
	articles *fakeArticles
	agent    *fakeAgent
	provider *fakeProvider
	jobs     *task.Store
}

func newTestServer(t *testing.T, authn *auth.Authenticator) (*Server, *fixtures) {
	t.Helper()

	f := &fixtures{
		searcher: &fakeSearcher{},
		articles: &fakeArticles{
			articles: map[int64]*store.Article{
				1: {ID: 1, Title: "Quantum batteries", Body: "full text"},
			},
			texts: map[int64]store.ArticleText{
				1: {Title: "Quantum batteries", Body: "full text"},
			},
		},
		agent:    &fakeAgent{result: "final answer"},
		provider: &fakeProvider{completion: &llms.Completion{Content: "hello"}},
		jobs:     task.NewStore(),
	}

	srv, err := New(Config{Host: "127.0.0.1", Port: 0}, Deps{
		Searcher: f.searcher,
		Articles: f.articles,
		Agent:    f.agent,
		Provider: f.provider,
		Jobs:     f.jobs,
		Auth:     authn,
	})
	require.NoError(t, err)
	return srv, f
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestGetArticle(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/articles/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Quantum batteries", decodeBody(t, rec)["title"])

	rec = doJSON(t, router, http.MethodGet, "/api/articles/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/articles/notanid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListArticlesFilters(t *testing.T) {
	srv, f := newTestServer(t, nil)

	rec := doJSON(t, srv.Router(), http.MethodGet,
		"/api/articles/?topic=physics&tag=space&q=laser&limit=5&offset=10&date_from=2024-01-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "physics", f.articles.filter.Topic)
	assert.Equal(t, "space", f.articles.filter.Tag)
	assert.Equal(t, "laser", f.articles.filter.Query)
	assert.Equal(t, 5, f.articles.filter.Limit)
	assert.Equal(t, 10, f.articles.filter.Offset)
	require.NotNil(t, f.articles.filter.DateFrom)
	assert.Equal(t, 2024, f.articles.filter.DateFrom.Year())

	// Empty result serializes as a JSON array, not null.
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListArticlesBadDate(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/articles/?date_from=January", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCombinedSearchDefaults(t *testing.T) {
	srv, f := newTestServer(t, nil)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/agent/combined-search",
		map[string]any{"query": "black holes"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "black holes", f.searcher.lastQuery)
	assert.Equal(t, 10, f.searcher.lastOpts.Limit)
	assert.Equal(t, 200, f.searcher.lastOpts.Preselect)
	assert.InDelta(t, 0.7, f.searcher.lastOpts.Alpha, 1e-9)
}

func TestCombinedSearchOverrides(t *testing.T) {
	srv, f := newTestServer(t, nil)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/agent/combined-search",
		map[string]any{"query": "black holes", "limit": 3, "preselect": 50, "alpha": 0.0})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 3, f.searcher.lastOpts.Limit)
	assert.Equal(t, 50, f.searcher.lastOpts.Preselect)
	// Explicit zero alpha means pure full-text ranking, not the default.
	assert.Zero(t, f.searcher.lastOpts.Alpha)
}

func TestCombinedSearchRequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/agent/combined-search", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchArticles(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/agent/fetch-articles",
		map[string]any{"ids": []int64{1}})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody(t, rec)["result"].(map[string]any)
	assert.Contains(t, result, "1")

	rec = doJSON(t, router, http.MethodPost, "/api/agent/fetch-articles", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelatedUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/agent/get-related-articles",
		map[string]any{"article_id": 1, "method": "astrology"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallLLMParsedAndRaw(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantKey string
	}{
		{"json object parses", `{"verdict":"ok"}`, "parsed"},
		{"prose stays raw", "just some text", "raw"},
		{"bare scalar stays raw", "42", "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, f := newTestServer(t, nil)
			f.provider.completion = &llms.Completion{Content: tt.content}

			rec := doJSON(t, srv.Router(), http.MethodPost, "/api/agent/call-llm",
				map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
			require.Equal(t, http.StatusOK, rec.Code)

			result := decodeBody(t, rec)["result"].(map[string]any)
			assert.Contains(t, result, tt.wantKey)
		})
	}
}

func TestAgentLoopSync(t *testing.T) {
	srv, f := newTestServer(t, nil)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/agent/agent-loop",
		map[string]any{"user_goal": "write a post", "max_turns": 50})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "final answer", decodeBody(t, rec)["result"])
	assert.Equal(t, "write a post", f.agent.lastGoal)
	// Requested budget is clamped at the HTTP boundary.
	assert.Equal(t, 8, f.agent.lastTurns)
}

func TestAgentLoopTurnClamping(t *testing.T) {
	tests := []struct {
		name      string
		maxTurns  *int
		wantTurns int
	}{
		{"absent uses loop default", nil, 0},
		{"below floor", intPtr(0), 1},
		{"above ceiling", intPtr(100), 8},
		{"in range", intPtr(4), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, f := newTestServer(t, nil)

			body := map[string]any{"user_goal": "goal"}
			if tt.maxTurns != nil {
				body["max_turns"] = *tt.maxTurns
			}
			rec := doJSON(t, srv.Router(), http.MethodPost, "/api/agent/agent-loop", body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantTurns, f.agent.lastTurns)
		})
	}
}

func TestBackgroundJobFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/agent/agent-loop/start",
		map[string]any{"user_goal": "write a post"})
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doJSON(t, router, http.MethodGet, "/api/agent/agent-loop/status/"+jobID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		if body["status"] == string(task.StatusDone) {
			assert.Equal(t, "final answer", body["result"])
			log := body["log"].([]any)
			require.Len(t, log, 1)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished, last status %v", body["status"])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/agent/agent-loop/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type singleUserStore struct{ user *auth.User }

func (s singleUserStore) Lookup(ctx context.Context, username string) (*auth.User, error) {
	if s.user != nil && username == s.user.Email {
		return s.user, nil
	}
	return nil, auth.ErrInvalidCredentials
}

func TestAuthProtectedRoutes(t *testing.T) {
	authn, err := auth.NewAuthenticator(
		"0123456789abcdef0123456789abcdef", "scholium", time.Hour,
		singleUserStore{&auth.User{ID: "u-1", Email: "alice@example.com", Password: "secret"}},
		func(stored, presented string) bool { return stored == presented },
	)
	require.NoError(t, err)

	srv, _ := newTestServer(t, authn)
	router := srv.Router()

	// Unauthenticated requests bounce off the protected surface.
	rec := doJSON(t, router, http.MethodGet, "/api/articles/1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health and login stay open.
	rec = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "alice@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decodeBody(t, rec)["access_token"].(string)
	require.NotEmpty(t, token)

	req := httptest.NewRequest(http.MethodGet, "/api/articles/1", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	authRec := httptest.NewRecorder()
	router.ServeHTTP(authRec, req)
	assert.Equal(t, http.StatusOK, authRec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	authn, err := auth.NewAuthenticator(
		"0123456789abcdef0123456789abcdef", "scholium", time.Hour,
		singleUserStore{}, func(stored, presented string) bool { return false },
	)
	require.NoError(t, err)

	srv, _ := newTestServer(t, authn)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/auth/login",
		map[string]string{"email": "ghost@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	// Generate some traffic first.
	doJSON(t, router, http.MethodGet, "/health", nil)

	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scholium_http_requests_total")
}

func intPtr(n int) *int { return &n }
