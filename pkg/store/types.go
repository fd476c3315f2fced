// Package store is the PostgreSQL article store. It owns all SQL the
// service runs: article reads, keyword search, related-article queries, and
// the vector-candidate and full-text ranking primitives the hybrid search
// engine composes.
package store

import "time"

// Article is the full article row with its joined metadata.
type Article struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Date          time.Time         `json:"date"`
	SourceLink    string            `json:"source_link,omitempty"`
	ArticleLink   string            `json:"article_link,omitempty"`
	ReleaseNumber *int              `json:"release_number,omitempty"`
	TopicName     string            `json:"topic_name,omitempty"`
	Keywords      []string          `json:"keywords"`
	Tags          []string          `json:"tags"`
	Summary       string            `json:"summary,omitempty"`
	ExtraLinks    map[string]string `json:"extra_links,omitempty"`
}

// ArticleMeta is the projection returned by ranking and listing operations.
// Score is populated only by ranking operations and is absent otherwise.
type ArticleMeta struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Date          time.Time `json:"date"`
	ReleaseNumber *int      `json:"release_number,omitempty"`
	Keywords      []string  `json:"keywords,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Score         *float64  `json:"score,omitempty"`
}

// ArticleText is the body payload returned by bulk fetch.
type ArticleText struct {
	Title string `json:"title"`
	Body  string `json:"full_text"`
}

// Candidate is an ephemeral (article, distance) pair produced by the
// vector-similarity stage. It lives only within one search invocation.
type Candidate struct {
	ID            int64
	Title         string
	Date          time.Time
	ReleaseNumber *int
	Distance      float64
}

// ListFilter narrows ListArticles output.
type ListFilter struct {
	Topic    string
	Tag      string
	DateFrom *time.Time
	DateTo   *time.Time
	Query    string
	Limit    int
	Offset   int
}

// TimelineBucket is one period of a topic timeline.
type TimelineBucket struct {
	Period time.Time `json:"period"`
	Count  int       `json:"count"`
}
