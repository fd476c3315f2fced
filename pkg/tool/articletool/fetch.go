// Package articletool exposes article reads as agent tools: bulk text fetch
// and related-article lookup.
package articletool

import (
	"context"
	"fmt"

	"github.com/akozyrev/scholium/pkg/store"
	"github.com/akozyrev/scholium/pkg/tool"
)

// TextFetcher is the store surface the fetch tool needs.
type TextFetcher interface {
	FetchTexts(ctx context.Context, ids []int64) (map[int64]store.ArticleText, error)
}

// FetchArgs are the fetch_articles parameters.
type FetchArgs struct {
	IDs []int64 `json:"ids" jsonschema:"required,description=Article ids to fetch"`
}

// FetchTool returns full article texts by id.
type FetchTool struct {
	fetcher TextFetcher
	schema  map[string]any
}

// NewFetchTool creates the fetch_articles tool.
func NewFetchTool(fetcher TextFetcher) (*FetchTool, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("text fetcher is required")
	}
	return &FetchTool{
		fetcher: fetcher,
		schema:  tool.MustSchema(&FetchArgs{}),
	}, nil
}

func (t *FetchTool) Name() string {
	return "fetch_articles"
}

func (t *FetchTool) Description() string {
	return "Returns the full texts of articles for a list of ids."
}

func (t *FetchTool) Schema() map[string]any {
	return t.schema
}

func (t *FetchTool) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	var parsed FetchArgs
	if err := tool.DecodeArgs(args, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.IDs) == 0 {
		return nil, fmt.Errorf("ids is required")
	}

	texts, err := t.fetcher.FetchTexts(ctx, parsed.IDs)
	if err != nil {
		return nil, err
	}
	return &tool.FetchResult{Articles: texts}, nil
}

var _ tool.Tool = (*FetchTool)(nil)
