package models

import "time"

// CheckFrequency controls how often a monitoring query is re-checked.
type CheckFrequency string

// Supported check frequencies.
const (
	FrequencyHourly CheckFrequency = "hourly"
	FrequencyDaily  CheckFrequency = "daily"
	FrequencyWeekly CheckFrequency = "weekly"
)

// Valid reports whether f is a known frequency.
func (f CheckFrequency) Valid() bool {
	return f == FrequencyHourly || f == FrequencyDaily || f == FrequencyWeekly
}

// QueryPriority orders due queries within a scheduling cycle.
type QueryPriority string

// Supported priorities.
const (
	PriorityHigh   QueryPriority = "high"
	PriorityMedium QueryPriority = "medium"
	PriorityLow    QueryPriority = "low"
)

// Rank maps a priority to a sortable weight; higher runs first.
func (p QueryPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p QueryPriority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Sentiment is the classifier-assigned tone of a citation's context.
type Sentiment string

// Supported sentiment buckets.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Client is a tracked business entity that owns monitoring queries.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry"`
	Keywords  []string  `json:"keywords"` // target keywords matched in AI answers
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// MonitoringQuery is a phrase scheduled for periodic re-checking across platforms.
type MonitoringQuery struct {
	ID          int64          `json:"id"`
	ClientID    int64          `json:"client_id"`
	Text        string         `json:"text"`
	Platforms   []string       `json:"platforms"` // non-empty set of target platform names
	Frequency   CheckFrequency `json:"frequency"`
	Priority    QueryPriority  `json:"priority"`
	IsActive    bool           `json:"is_active"`
	LastChecked *time.Time     `json:"last_checked,omitempty"` // nil until first check
	NextCheck   *time.Time     `json:"next_check,omitempty"`   // nil until first scheduling
	CreatedAt   time.Time      `json:"created_at"`
}

// HasPlatform reports whether name is in the query's target platform set.
func (q *MonitoringQuery) HasPlatform(name string) bool {
	for _, p := range q.Platforms {
		if p == name {
			return true
		}
	}
	return false
}

// Citation is an immutable observation of a client mention by an AI platform.
// Rows are append-only; a retraction is a later "not found" check, never an edit.
type Citation struct {
	ID         string     `json:"id"`
	QueryID    int64      `json:"query_id"`
	ClientID   int64      `json:"client_id"`
	Platform   string     `json:"platform"`
	Position   *int       `json:"position,omitempty"`  // nil means mentioned without a rank
	Sentiment  *Sentiment `json:"sentiment,omitempty"` // nil means unclassified
	Context    string     `json:"context"`
	DetectedAt time.Time  `json:"detected_at"`
}

// ClientRollup is the derived per-client summary. It is always re-derivable
// from the client's citations; cached values are an optimization only.
type ClientRollup struct {
	ClientID           int64             `json:"client_id"`
	TotalCitations     int               `json:"total_citations"`
	CitationsThisMonth int               `json:"citations_this_month"`
	AvgPosition        float64           `json:"avg_position"` // one decimal; 0 when no positioned citations
	TopPlatform        string            `json:"top_platform"`
	SentimentBreakdown map[Sentiment]int `json:"sentiment_breakdown"`
}

// TrendPoint is one day of a dense daily citation series.
type TrendPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Count int    `json:"count"`
}

// QueryStat is one entry of a ranked top-queries report, grouped by query text.
type QueryStat struct {
	Query         string  `json:"query"`
	CitationCount int     `json:"citation_count"`
	AvgPosition   float64 `json:"avg_position"`
}

// CheckResult is the outcome of asking one AI platform about one query.
type CheckResult struct {
	Found    bool   `json:"found"`
	Position *int   `json:"position,omitempty"`
	Context  string `json:"context,omitempty"`
}

// Report is a periodic digest delivered to notification channels and archived.
type Report struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	Period         string         `json:"period"` // "daily" or "weekly"
	TotalCitations int            `json:"total_citations"`
	Clients        []ClientReport `json:"clients"`
}

// ClientReport is the per-client section of a Report.
type ClientReport struct {
	Client     Client       `json:"client"`
	Rollup     ClientRollup `json:"rollup"`
	TopQueries []QueryStat  `json:"top_queries"`
}
