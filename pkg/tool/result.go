package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/akozyrev/scholium/pkg/store"
)

// Preview budgets keep progress lines bounded.
const (
	maxTextPreview = 140
	maxListPreview = 5
)

// Result is a tagged tool outcome. Each variant owns its one-line progress
// summary; Body is what gets serialized back to the model.
type Result interface {
	// Summary renders a bounded human-readable line for progress reporting.
	Summary() string

	// Body returns the JSON-encodable payload for the tool-result message.
	Body() any
}

// Encode serializes a result body for the conversation. A body that cannot
// be marshaled degrades to an error payload rather than failing dispatch.
func Encode(r Result) string {
	data, err := json.Marshal(r.Body())
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to encode tool result: %s"}`, err)
	}
	return string(data)
}

// SearchResult carries ranked search hits.
type SearchResult struct {
	Hits []store.ArticleMeta
}

func (r *SearchResult) Summary() string {
	if len(r.Hits) == 0 {
		return "search: no results"
	}
	titles := make([]string, 0, maxListPreview)
	for i, h := range r.Hits {
		if i == maxListPreview {
			break
		}
		titles = append(titles, truncate(h.Title, maxTextPreview/maxListPreview))
	}
	more := ""
	if len(r.Hits) > maxListPreview {
		more = ", ..."
	}
	return fmt.Sprintf("search: %d results (%s%s)", len(r.Hits), strings.Join(titles, "; "), more)
}

func (r *SearchResult) Body() any {
	type hit struct {
		ID    int64    `json:"id"`
		Title string   `json:"title"`
		Date  string   `json:"date"`
		Score *float64 `json:"score,omitempty"`
	}
	hits := make([]hit, len(r.Hits))
	for i, h := range r.Hits {
		hits[i] = hit{
			ID:    h.ID,
			Title: h.Title,
			Date:  h.Date.Format("2006-01-02"),
			Score: h.Score,
		}
	}
	return hits
}

// FetchResult carries full article texts keyed by id.
type FetchResult struct {
	Articles map[int64]store.ArticleText
}

func (r *FetchResult) Summary() string {
	if len(r.Articles) == 0 {
		return "fetch: no articles found"
	}
	previews := make([]string, 0, maxListPreview)
	for id, a := range r.Articles {
		if len(previews) == maxListPreview {
			break
		}
		previews = append(previews, fmt.Sprintf("%d: %s", id, truncate(a.Title, 40)))
	}
	return fmt.Sprintf("fetch: %d articles (%s)", len(r.Articles), strings.Join(previews, "; "))
}

func (r *FetchResult) Body() any {
	return r.Articles
}

// RelatedItem is one related-article reference.
type RelatedItem struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// RelatedResult carries related-article references.
type RelatedResult struct {
	Related []RelatedItem
}

func (r *RelatedResult) Summary() string {
	if len(r.Related) == 0 {
		return "related: none found"
	}
	refs := make([]string, 0, maxListPreview)
	for i, rel := range r.Related {
		if i == maxListPreview {
			break
		}
		refs = append(refs, fmt.Sprintf("%d (%.3f)", rel.ID, rel.Score))
	}
	more := ""
	if len(r.Related) > maxListPreview {
		more = ", ..."
	}
	return fmt.Sprintf("related: %d articles (%s%s)", len(r.Related), strings.Join(refs, "; "), more)
}

func (r *RelatedResult) Body() any {
	return map[string]any{"related": r.Related}
}

// ScalarResult carries a plain value.
type ScalarResult struct {
	Value any
}

func (r *ScalarResult) Summary() string {
	return truncate(fmt.Sprint(r.Value), maxTextPreview)
}

func (r *ScalarResult) Body() any {
	return r.Value
}

// ErrorResult is the error-shaped outcome the registry substitutes for any
// dispatch failure.
type ErrorResult struct {
	Message string
}

func (r *ErrorResult) Summary() string {
	return "error: " + truncate(r.Message, maxTextPreview)
}

func (r *ErrorResult) Body() any {
	return map[string]any{"error": r.Message}
}

func truncate(s string, limit int) string {
	if limit < 4 {
		limit = 4
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
