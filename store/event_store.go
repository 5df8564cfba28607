// api/store/event_store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"pagepulse/api/database"
	"pagepulse/api/models"
	"pagepulse/api/utils"
)

// EventStore is the append-only repository of tracking events. Events are
// never updated or deleted once written.
type EventStore struct {
	DB *database.ClickHouseClient
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

func NewEventStore(chClient *database.ClickHouseClient) *EventStore {
	return &EventStore{
		DB: chClient,
	}
}

// InsertEvent writes one event to the tracking_events table. The open-ended
// details map is stored as a JSON string column so that the fixed columns
// stay typed.
func (s *EventStore) InsertEvent(ctx context.Context, event models.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO tracking_events (
			session_id, event_type, page, referrer, duration, details, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}

	if err := batch.Append(
		event.SessionID,
		event.EventType,
		event.Page,
		event.Referrer,
		event.Duration,
		string(details),
		event.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to append event to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// SessionStats groups all stored events by session and counts them, most
// active sessions first. Tie order between equal counts is whatever the
// server returns.
func (s *EventStore) SessionStats(ctx context.Context) ([]models.SessionStat, error) {
	query := `
		SELECT session_id, count() AS event_count
		FROM tracking_events
		GROUP BY session_id
		ORDER BY event_count DESC
	`
	rows, err := s.DB.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query session stats: %w", err)
	}
	defer rows.Close()

	var results []models.SessionStat
	for rows.Next() {
		var sessionID string
		var count uint64
		if err := rows.Scan(&sessionID, &count); err != nil {
			log.Printf("Error scanning row for session stats: %v", err)
			continue
		}
		results = append(results, models.SessionStat{
			SessionID: sessionID,
			Count:     count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for session stats: %w", err)
	}

	return results, nil
}

// EventCountsOverTime buckets event counts by the given interval, optionally
// restricted to a single event type. Feeds the dashboard charts.
func (s *EventStore) EventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]EventTypeCountByTime, error) {
	var args []interface{}
	args = append(args, start, end)

	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM tracking_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []EventTypeCountByTime
	for rows.Next() {
		var (
			timeBucket    time.Time
			count         uint64
			eventTypeDB   string
			currentResult EventTypeCountByTime
		)

		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				log.Printf("Error scanning row for event counts over time (with type filter): %v", err)
				continue
			}
			currentResult.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Printf("Error scanning row for event counts over time (no type filter): %v", err)
				continue
			}
			currentResult.EventType = nil
		}

		currentResult.Time = timeBucket
		currentResult.Count = count
		results = append(results, currentResult)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}

	return results, nil
}

// AverageEventDuration returns the mean duration (seconds) of events in the
// window, optionally restricted to one event type. In practice only
// article_read events carry a meaningful duration, so the dashboard calls
// this with that filter.
func (s *EventStore) AverageEventDuration(ctx context.Context, eventTypeFilter string, start, end time.Time) (float64, error) {
	query := `SELECT avg(duration) FROM tracking_events WHERE timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start, end}

	if eventTypeFilter != "" {
		query += ` AND event_type = ?`
		args = append(args, eventTypeFilter)
	}

	var avgDuration float64
	err := s.DB.Conn.QueryRow(ctx, query, args...).Scan(&avgDuration)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return 0.0, nil
		}
		return 0.0, fmt.Errorf("failed to query average event duration: %w", err)
	}

	// avg() over zero matching rows yields NaN, which standard JSON
	// marshalling cannot represent.
	if math.IsNaN(avgDuration) {
		return 0.0, nil
	}

	return avgDuration, nil
}

// ActiveSessionsOverTime buckets the number of distinct sessions seen per
// interval. A session is active in a bucket if any of its events landed there.
func (s *EventStore) ActiveSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(session_id) AS active_sessions
		FROM tracking_events
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions over time: %w", err)
	}
	defer rows.Close()

	var results []EventTypeCountByTime
	for rows.Next() {
		var timeBucket time.Time
		var activeSessions uint64
		if err := rows.Scan(&timeBucket, &activeSessions); err != nil {
			log.Printf("Error scanning row for active sessions: %v", err)
			continue
		}
		results = append(results, EventTypeCountByTime{
			Time:  timeBucket,
			Count: activeSessions,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for active sessions: %w", err)
	}

	return results, nil
}

// TopPages returns the most-viewed pages in the window, by page_view count.
func (s *EventStore) TopPages(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPageResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page, count() as view_count
		FROM tracking_events
		WHERE event_type = 'page_view' AND timestamp >= ? AND timestamp <= ?
		GROUP BY page
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var results []models.TopPageResult
	for rows.Next() {
		var page string
		var count uint64
		if err := rows.Scan(&page, &count); err != nil {
			log.Printf("Error scanning row for top pages: %v", err)
			continue
		}
		results = append(results, models.TopPageResult{
			Page:  page,
			Count: count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}

	return results, nil
}
