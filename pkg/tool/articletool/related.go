package articletool

import (
	"context"
	"fmt"

	"github.com/akozyrev/scholium/pkg/store"
	"github.com/akozyrev/scholium/pkg/tool"
)

// RelatedFinder is the store surface the related tool needs.
type RelatedFinder interface {
	RelatedSemantic(ctx context.Context, articleID int64, topN int) ([]store.ArticleMeta, error)
	RelatedKeywords(ctx context.Context, articleID int64, topN int) ([]store.ArticleMeta, error)
}

// RelatedArgs are the get_related_articles parameters.
type RelatedArgs struct {
	ArticleID int64  `json:"article_id" jsonschema:"required,description=Article to find neighbors for"`
	Method    string `json:"method,omitempty" jsonschema:"description=Relation method,enum=semantic,enum=keywords,default=semantic"`
	TopN      *int   `json:"top_n,omitempty" jsonschema:"description=Number of related articles,default=10,minimum=1,maximum=50"`
}

// RelatedTool finds articles related to a given one. For the semantic
// method the score is a vector distance (smaller is closer); for keywords
// it is the shared-keyword count (larger is closer).
type RelatedTool struct {
	finder RelatedFinder
	schema map[string]any
}

// NewRelatedTool creates the get_related_articles tool.
func NewRelatedTool(finder RelatedFinder) (*RelatedTool, error) {
	if finder == nil {
		return nil, fmt.Errorf("related finder is required")
	}
	return &RelatedTool{
		finder: finder,
		schema: tool.MustSchema(&RelatedArgs{}),
	}, nil
}

func (t *RelatedTool) Name() string {
	return "get_related_articles"
}

func (t *RelatedTool) Description() string {
	return "Finds articles related to the given one and returns their ids with a relation score. For the semantic method a smaller score means closer similarity."
}

func (t *RelatedTool) Schema() map[string]any {
	return t.schema
}

func (t *RelatedTool) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	var parsed RelatedArgs
	if err := tool.DecodeArgs(args, &parsed); err != nil {
		return nil, err
	}
	if parsed.ArticleID == 0 {
		return nil, fmt.Errorf("article_id is required")
	}

	topN := 10
	if parsed.TopN != nil {
		topN = *parsed.TopN
	}

	var (
		metas []store.ArticleMeta
		err   error
	)
	switch parsed.Method {
	case "", "semantic":
		metas, err = t.finder.RelatedSemantic(ctx, parsed.ArticleID, topN)
	case "keywords":
		metas, err = t.finder.RelatedKeywords(ctx, parsed.ArticleID, topN)
	default:
		return nil, fmt.Errorf("unknown method %q (valid: semantic, keywords)", parsed.Method)
	}
	if err != nil {
		return nil, err
	}

	related := make([]tool.RelatedItem, len(metas))
	for i, m := range metas {
		item := tool.RelatedItem{ID: m.ID}
		if m.Score != nil {
			item.Score = *m.Score
		}
		related[i] = item
	}
	return &tool.RelatedResult{Related: related}, nil
}

var _ tool.Tool = (*RelatedTool)(nil)
