package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/akozyrev/scholium/pkg/pgvector"
)

const (
	vectorCandidatesSQL = `
SELECT a.id, a.title, a.date, a.release_number,
       e.embedding <-> $1::vector AS distance
FROM article_embeddings e
JOIN articles a ON a.id = e.article_id
ORDER BY distance
LIMIT $2`

	fulltextScoresSQL = `
SELECT a.id,
       ts_rank_cd(
           to_tsvector('russian', a.title || ' ' || a.body),
           plainto_tsquery('russian', $1)
       ) AS ft_score
FROM articles a
WHERE a.id = ANY($2::int[])`

	fetchTextsSQL = `
SELECT id, title, body
FROM articles
WHERE id = ANY($1::int[])`

	getArticleSQL = `
SELECT
  a.id,
  a.title,
  a.body,
  a.date,
  COALESCE(a.source_link, ''),
  COALESCE(a.article_link, ''),
  a.release_number,
  (
    SELECT td.name
    FROM article_topics at
    JOIN topic_dictionary td ON td.id = at.topic_id
    WHERE at.article_id = a.id
    LIMIT 1
  ) AS topic_name,
  COALESCE(
    (SELECT array_agg(k.keyword) FROM keywords k WHERE k.article_id = a.id),
    ARRAY[]::text[]
  ) AS keywords,
  COALESCE(
    (SELECT array_agg(t.name)
     FROM tags t
     JOIN article_tags at ON at.tag_id = t.id
     WHERE at.article_id = a.id),
    ARRAY[]::text[]
  ) AS tags,
  (SELECT s.summary FROM summaries s WHERE s.article_id = a.id ORDER BY s.id DESC LIMIT 1) AS summary,
  a.extra_links
FROM articles a
WHERE a.id = $1`

	articleEmbeddingSQL = `
SELECT embedding FROM article_embeddings WHERE article_id = $1`

	relatedSemanticSQL = `
SELECT a.id, a.title, a.date, a.release_number, s.summary,
       e.embedding <-> $1::vector AS distance
FROM article_embeddings e
JOIN articles a ON a.id = e.article_id
LEFT JOIN summaries s ON a.id = s.article_id
WHERE e.article_id <> $2
ORDER BY distance
LIMIT $3`

	relatedKeywordsSQL = `
SELECT a.id, a.title, a.date, a.release_number, s.summary, COUNT(*) AS overlap
FROM keywords k
JOIN articles a ON a.id = k.article_id
LEFT JOIN summaries s ON a.id = s.article_id
WHERE k.keyword IN (
    SELECT keyword FROM keywords WHERE article_id = $1
) AND a.id <> $1
GROUP BY a.id, a.title, a.date, a.release_number, s.summary
ORDER BY overlap DESC
LIMIT $2`

	topicTimelineSQL = `
SELECT date_trunc($2, a.date)::date AS period, COUNT(*) AS cnt
FROM articles a
LEFT JOIN article_topics at ON at.article_id = a.id
LEFT JOIN topic_dictionary td ON td.id = at.topic_id
WHERE td.name ILIKE $1
GROUP BY period
ORDER BY period`

	topArticlesByTopicSQL = `
SELECT a.id, a.title, a.date, a.release_number
FROM articles a
LEFT JOIN article_topics at ON at.article_id = a.id
LEFT JOIN topic_dictionary td ON td.id = at.topic_id
WHERE td.name ILIKE $1
ORDER BY a.date DESC
LIMIT $2`
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = sql.ErrNoRows

// ArticleStore runs article queries against a shared *sql.DB pool.
// Connections are acquired per call and released on every exit path by the
// database/sql layer.
type ArticleStore struct {
	db *sql.DB
}

// NewArticleStore creates an ArticleStore over the given connection pool.
func NewArticleStore(db *sql.DB) (*ArticleStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &ArticleStore{db: db}, nil
}

// VectorCandidates returns the preselect nearest articles to the query
// vector, ordered ascending by distance. It performs nearest-neighbor
// retrieval only; final scoring belongs to the caller.
func (s *ArticleStore) VectorCandidates(ctx context.Context, queryVector []float32, preselect int) ([]Candidate, error) {
	literal := pgvector.Encode(queryVector)

	rows, err := s.db.QueryContext(ctx, vectorCandidatesSQL, literal, preselect)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Date, &c.ReleaseNumber, &c.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	return candidates, nil
}

// FulltextScores computes a full-text relevance score for each of the given
// article ids against the query. Articles missing from the result simply
// have no full-text signal; callers default those to zero.
func (s *ArticleStore) FulltextScores(ctx context.Context, query string, ids []int64) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(ctx, fulltextScoresSQL, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query fulltext scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[int64]float64, len(ids))
	for rows.Next() {
		var id int64
		var score sql.NullFloat64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan fulltext score: %w", err)
		}
		if score.Valid {
			scores[id] = score.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fulltext scores: %w", err)
	}
	return scores, nil
}

// FetchTexts returns title and body for each existing id. Missing ids are
// silently absent from the result.
func (s *ArticleStore) FetchTexts(ctx context.Context, ids []int64) (map[int64]ArticleText, error) {
	rows, err := s.db.QueryContext(ctx, fetchTextsSQL, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article texts: %w", err)
	}
	defer rows.Close()

	texts := make(map[int64]ArticleText, len(ids))
	for rows.Next() {
		var id int64
		var t ArticleText
		if err := rows.Scan(&id, &t.Title, &t.Body); err != nil {
			return nil, fmt.Errorf("failed to scan article text: %w", err)
		}
		texts[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read article texts: %w", err)
	}
	return texts, nil
}

// GetArticle returns the full article with topic, keywords, tags, and the
// latest summary. Returns ErrNotFound when the id does not exist.
func (s *ArticleStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var a Article
	var topic, summary sql.NullString
	var keywords, tags pq.StringArray
	var extraLinks []byte

	err := s.db.QueryRowContext(ctx, getArticleSQL, id).Scan(
		&a.ID, &a.Title, &a.Body, &a.Date,
		&a.SourceLink, &a.ArticleLink, &a.ReleaseNumber,
		&topic, &keywords, &tags, &summary, &extraLinks,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}

	a.TopicName = topic.String
	a.Summary = summary.String
	a.Keywords = keywords
	a.Tags = tags
	a.ExtraLinks = map[string]string{}
	if len(extraLinks) > 0 {
		// Ingestion stores extra_links as a JSON object; tolerate junk.
		_ = json.Unmarshal(extraLinks, &a.ExtraLinks)
	}
	return &a, nil
}

// ArticleEmbedding returns the stored embedding for an article, or
// ErrNotFound when the article has no embedding row.
func (s *ArticleStore) ArticleEmbedding(ctx context.Context, articleID int64) ([]float32, error) {
	var raw any
	err := s.db.QueryRowContext(ctx, articleEmbeddingSQL, articleID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get embedding for article %d: %w", articleID, err)
	}
	vec, err := pgvector.DecodeValue(raw)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// RelatedSemantic returns the topN articles nearest to the given article's
// own embedding, most similar first. An article without an embedding row has
// no semantic neighbors and yields an empty result.
func (s *ArticleStore) RelatedSemantic(ctx context.Context, articleID int64, topN int) ([]ArticleMeta, error) {
	emb, err := s.ArticleEmbedding(ctx, articleID)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, relatedSemanticSQL, pgvector.Encode(emb), articleID, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to query related articles: %w", err)
	}
	defer rows.Close()

	return scanRankedMetas(rows)
}

// RelatedKeywords returns the topN articles sharing the most keywords with
// the given article, highest overlap first.
func (s *ArticleStore) RelatedKeywords(ctx context.Context, articleID int64, topN int) ([]ArticleMeta, error) {
	rows, err := s.db.QueryContext(ctx, relatedKeywordsSQL, articleID, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to query related articles: %w", err)
	}
	defer rows.Close()

	return scanRankedMetas(rows)
}

// scanRankedMetas reads (id, title, date, release_number, summary, score)
// rows into metas with Score populated.
func scanRankedMetas(rows *sql.Rows) ([]ArticleMeta, error) {
	var metas []ArticleMeta
	for rows.Next() {
		var m ArticleMeta
		var summary sql.NullString
		var score float64
		if err := rows.Scan(&m.ID, &m.Title, &m.Date, &m.ReleaseNumber, &summary, &score); err != nil {
			return nil, fmt.Errorf("failed to scan related article: %w", err)
		}
		m.Summary = summary.String
		m.Score = &score
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read related articles: %w", err)
	}
	return metas, nil
}

// SearchByKeywords finds articles by keyword match. mode is "any" or "all";
// partial switches exact matching to substring matching.
func (s *ArticleStore) SearchByKeywords(ctx context.Context, keywords []string, mode string, partial bool, limit int) ([]ArticleMeta, error) {
	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}
	if limit < 1 {
		limit = 20
	}

	var (
		query string
		args  []any
	)
	if !partial {
		lowered := make([]string, len(cleaned))
		for i, k := range cleaned {
			lowered[i] = strings.ToLower(k)
		}
		if mode == "all" {
			query = `
SELECT a.id, a.title, a.date
FROM articles a
JOIN keywords k ON k.article_id = a.id
WHERE lower(k.keyword) = ANY($1::text[])
GROUP BY a.id, a.title, a.date
HAVING COUNT(DISTINCT lower(k.keyword)) >= $2
ORDER BY a.date DESC
LIMIT $3`
			args = []any{pq.Array(lowered), distinctCount(lowered), limit}
		} else {
			query = `
SELECT DISTINCT a.id, a.title, a.date
FROM articles a
JOIN keywords k ON k.article_id = a.id
WHERE lower(k.keyword) = ANY($1::text[])
ORDER BY a.date DESC
LIMIT $2`
			args = []any{pq.Array(lowered), limit}
		}
	} else {
		patterns := make([]string, len(cleaned))
		for i, k := range cleaned {
			patterns[i] = "%" + k + "%"
		}
		if mode == "all" {
			query = `
SELECT a.id, a.title, a.date
FROM articles a
WHERE (
  SELECT COUNT(DISTINCT patt)
  FROM unnest($1::text[]) AS patt
  WHERE EXISTS (
    SELECT 1 FROM keywords k WHERE k.article_id = a.id AND k.keyword ILIKE patt
  )
) >= $2
ORDER BY a.date DESC
LIMIT $3`
			args = []any{pq.Array(patterns), distinctCount(patterns), limit}
		} else {
			query = `
SELECT DISTINCT a.id, a.title, a.date
FROM articles a
JOIN keywords k ON k.article_id = a.id
WHERE EXISTS (
  SELECT 1 FROM unnest($1::text[]) AS patt WHERE k.keyword ILIKE patt
)
ORDER BY a.date DESC
LIMIT $2`
			args = []any{pq.Array(patterns), limit}
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search by keywords: %w", err)
	}
	defer rows.Close()

	var metas []ArticleMeta
	for rows.Next() {
		var m ArticleMeta
		if err := rows.Scan(&m.ID, &m.Title, &m.Date); err != nil {
			return nil, fmt.Errorf("failed to scan keyword match: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keyword matches: %w", err)
	}
	return metas, nil
}

func distinctCount(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// ListArticles returns article metadata newest-first, narrowed by filter.
func (s *ArticleStore) ListArticles(ctx context.Context, filter ListFilter) ([]ArticleMeta, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Topic != "" {
		conds = append(conds, fmt.Sprintf("td.name ILIKE %s", arg(filter.Topic)))
	}
	if filter.Tag != "" {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM article_tags at2 JOIN tags t2 ON t2.id = at2.tag_id WHERE at2.article_id = a.id AND t2.name ILIKE %s)",
			arg(filter.Tag)))
	}
	if filter.DateFrom != nil {
		conds = append(conds, fmt.Sprintf("a.date >= %s", arg(*filter.DateFrom)))
	}
	if filter.DateTo != nil {
		conds = append(conds, fmt.Sprintf("a.date <= %s", arg(*filter.DateTo)))
	}
	if filter.Query != "" {
		p := arg("%" + filter.Query + "%")
		conds = append(conds, fmt.Sprintf("(a.title ILIKE %s OR a.body ILIKE %s)", p, p))
	}

	whereSQL := ""
	if len(conds) > 0 {
		whereSQL = "WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	query := fmt.Sprintf(`
SELECT a.id, a.title, a.date, a.release_number,
       COALESCE(array_agg(DISTINCT t.name) FILTER (WHERE t.id IS NOT NULL), '{}') AS tags,
       COALESCE(array_agg(DISTINCT k.keyword) FILTER (WHERE k.keyword IS NOT NULL), '{}') AS keywords
FROM articles a
LEFT JOIN article_tags at ON at.article_id = a.id
LEFT JOIN tags t ON t.id = at.tag_id
LEFT JOIN keywords k ON k.article_id = a.id
LEFT JOIN article_topics atp ON atp.article_id = a.id
LEFT JOIN topic_dictionary td ON td.id = atp.topic_id
%s
GROUP BY a.id
ORDER BY a.date DESC
LIMIT %s OFFSET %s`, whereSQL, arg(limit), arg(filter.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var metas []ArticleMeta
	for rows.Next() {
		var m ArticleMeta
		var tags, keywords pq.StringArray
		if err := rows.Scan(&m.ID, &m.Title, &m.Date, &m.ReleaseNumber, &tags, &keywords); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		m.Tags = tags
		m.Keywords = keywords
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read article rows: %w", err)
	}
	return metas, nil
}

// TopicTimeline counts articles per period for a topic. granularity is
// "month" or "year"; anything else falls back to month.
func (s *ArticleStore) TopicTimeline(ctx context.Context, topicName, granularity string) ([]TimelineBucket, error) {
	if granularity != "month" && granularity != "year" {
		granularity = "month"
	}

	rows, err := s.db.QueryContext(ctx, topicTimelineSQL, topicName, granularity)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic timeline: %w", err)
	}
	defer rows.Close()

	var buckets []TimelineBucket
	for rows.Next() {
		var b TimelineBucket
		if err := rows.Scan(&b.Period, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan timeline bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	return buckets, nil
}

// TopArticlesByTopic returns the newest articles under a topic.
func (s *ArticleStore) TopArticlesByTopic(ctx context.Context, topicName string, limit int) ([]ArticleMeta, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, topArticlesByTopicSQL, topicName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top articles: %w", err)
	}
	defer rows.Close()

	var metas []ArticleMeta
	for rows.Next() {
		var m ArticleMeta
		if err := rows.Scan(&m.ID, &m.Title, &m.Date, &m.ReleaseNumber); err != nil {
			return nil, fmt.Errorf("failed to scan top article: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top articles: %w", err)
	}
	return metas, nil
}
