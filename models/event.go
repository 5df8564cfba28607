// api/models/event.go
package models

import "time"

// The event types the intake pipeline recognizes. The column is a plain
// string, so new types can be added without a schema migration.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventPageView     = "page_view"
	EventArticleRead  = "article_read"
	EventClick        = "click"
)

// Event is a single immutable user-interaction record. Sessions are not
// stored anywhere; they exist only as the set of events sharing a SessionID.
type Event struct {
	SessionID string         `json:"sessionId"`
	EventType string         `json:"eventType"`
	Page      string         `json:"page"`
	Referrer  string         `json:"referrer"`
	Duration  int64          `json:"duration"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionStat is one row of the per-session event count aggregate.
// The "_id" key is what the dashboard frontend expects for the group key.
type SessionStat struct {
	SessionID string `json:"_id"`
	Count     uint64 `json:"count"`
}

type TopPageResult struct {
	Page  string `json:"page"`
	Count uint64 `json:"count"`
}
