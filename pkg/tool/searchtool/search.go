// Package searchtool exposes the hybrid article search as an agent tool.
package searchtool

import (
	"context"
	"fmt"

	"github.com/akozyrev/scholium/pkg/search"
	"github.com/akozyrev/scholium/pkg/tool"
)

// Args are the combined_search parameters as advertised to the model.
type Args struct {
	Query     string   `json:"query" jsonschema:"required,description=Free-text search query"`
	Limit     *int     `json:"limit,omitempty" jsonschema:"description=Maximum results to return,default=10,minimum=1,maximum=100"`
	Preselect *int     `json:"preselect,omitempty" jsonschema:"description=Vector candidate pool size,default=200"`
	Alpha     *float64 `json:"alpha,omitempty" jsonschema:"description=Weight of semantic similarity versus full-text rank,default=0.7,minimum=0,maximum=1"`
}

// Defaults fill in omitted tuning parameters.
type Defaults struct {
	Limit     int
	Preselect int
	Alpha     float64
}

// SearchTool runs the two-stage hybrid search.
type SearchTool struct {
	engine   *search.Engine
	defaults Defaults
	schema   map[string]any
}

// New creates the combined_search tool.
func New(engine *search.Engine, defaults Defaults) (*SearchTool, error) {
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if defaults.Limit < 1 {
		defaults.Limit = 10
	}
	if defaults.Preselect < 1 {
		defaults.Preselect = 200
	}
	if defaults.Alpha == 0 {
		defaults.Alpha = 0.7
	}
	return &SearchTool{
		engine:   engine,
		defaults: defaults,
		schema:   tool.MustSchema(&Args{}),
	}, nil
}

func (t *SearchTool) Name() string {
	return "combined_search"
}

func (t *SearchTool) Description() string {
	return "Searches articles by meaning and text relevance combined. Returns ranked matches with id, title, date, and score."
}

func (t *SearchTool) Schema() map[string]any {
	return t.schema
}

// Call runs the search with defaults applied for omitted parameters.
func (t *SearchTool) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	var parsed Args
	if err := tool.DecodeArgs(args, &parsed); err != nil {
		return nil, err
	}
	if parsed.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	opts := search.Options{
		Limit:     t.defaults.Limit,
		Preselect: t.defaults.Preselect,
		Alpha:     t.defaults.Alpha,
	}
	if parsed.Limit != nil {
		opts.Limit = *parsed.Limit
	}
	if parsed.Preselect != nil {
		opts.Preselect = *parsed.Preselect
	}
	if parsed.Alpha != nil {
		opts.Alpha = *parsed.Alpha
	}

	hits, err := t.engine.Search(ctx, parsed.Query, opts)
	if err != nil {
		return nil, err
	}
	return &tool.SearchResult{Hits: hits}, nil
}

var _ tool.Tool = (*SearchTool)(nil)
