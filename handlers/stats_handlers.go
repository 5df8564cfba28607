// api/handlers/stats_handlers.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"pagepulse/api/models"
	"pagepulse/api/store"

	"github.com/gin-gonic/gin"
)

// StatsRepository is the read-only slice of the event store the query
// endpoints need.
type StatsRepository interface {
	SessionStats(ctx context.Context) ([]models.SessionStat, error)
	EventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]store.EventTypeCountByTime, error)
	AverageEventDuration(ctx context.Context, eventTypeFilter string, start, end time.Time) (float64, error)
	ActiveSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]store.EventTypeCountByTime, error)
	TopPages(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPageResult, error)
}

// StorePinger reports event-store reachability for the health endpoint.
type StorePinger interface {
	Ping(ctx context.Context) error
}

type StatsHandlers struct {
	Events StatsRepository
	Store  StorePinger
}

func NewStatsHandlers(events StatsRepository, pinger StorePinger) *StatsHandlers {
	return &StatsHandlers{
		Events: events,
		Store:  pinger,
	}
}

// SessionStats returns per-session event counts, most active sessions first.
func (h *StatsHandlers) SessionStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.Events.SessionStats(ctx)
	if err != nil {
		log.Printf("Error getting session stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session stats"})
		return
	}
	if stats == nil {
		stats = []models.SessionStat{}
	}

	c.JSON(http.StatusOK, gin.H{"sessionStats": stats})
}

// Health reports process and event-store status for uptime monitoring.
func (h *StatsHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "connected"
	if err := h.Store.Ping(ctx); err != nil {
		log.Printf("Health check: event store unreachable: %v", err)
		database = "disconnected"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"database":  database,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// parseTimeRange reads the optional start/end query parameters, defaulting
// to the last 7 days.
func parseTimeRange(c *gin.Context) (start, end time.Time, ok bool) {
	var err error

	startParam := c.Query("start")
	if startParam != "" {
		start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	endParam := c.Query("end")
	if endParam != "" {
		end, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		end = time.Now().UTC()
	}

	return start, end, true
}

// EventCounts returns time-bucketed event counts for the dashboard charts.
func (h *StatsHandlers) EventCounts(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	eventTypeFilter := c.Query("eventType")

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.EventCountsOverTime(ctx, interval, start, end, eventTypeFilter)
	if err != nil {
		log.Printf("Error getting event counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// AverageEventDuration returns the mean duration of events in the window.
// The dashboard uses this with eventType=article_read for mean read time.
func (h *StatsHandlers) AverageEventDuration(c *gin.Context) {
	eventTypeFilter := c.Query("eventType")

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	avgDuration, err := h.Events.AverageEventDuration(ctx, eventTypeFilter, start, end)
	if err != nil {
		log.Printf("Error getting average event duration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average event duration statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"eventType":       eventTypeFilter,
		"startDate":       start.Format(time.RFC3339),
		"endDate":         end.Format(time.RFC3339),
		"averageDuration": avgDuration,
	})
}

// ActiveSessions returns time-bucketed distinct-session counts.
func (h *StatsHandlers) ActiveSessions(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.ActiveSessionsOverTime(ctx, interval, start, end)
	if err != nil {
		log.Printf("Error getting active sessions over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve active session statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// TopPages returns the most-viewed pages in the window.
func (h *StatsHandlers) TopPages(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	limitParam := c.Query("limit")
	if limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.TopPages(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top pages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top pages statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}
