// api/handlers/track_handlers.go
package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"pagepulse/api/models"
	"pagepulse/api/utils"

	"github.com/gin-gonic/gin"
)

// EventRepository is the slice of the event store the intake pipeline needs.
type EventRepository interface {
	InsertEvent(ctx context.Context, event models.Event) error
}

// EventPublisher hands a persisted event to the live fan-out. Publish must
// not block on slow observers and must not fail.
type EventPublisher interface {
	Publish(event models.Event)
}

// TrackHandlers is the intake pipeline: validate, resolve the session ID,
// persist, then publish. An event is only ever broadcast after it has been
// durably written.
type TrackHandlers struct {
	Events EventRepository
	Live   EventPublisher
}

func NewTrackHandlers(events EventRepository, live EventPublisher) *TrackHandlers {
	return &TrackHandlers{
		Events: events,
		Live:   live,
	}
}

type sessionStartRequest struct {
	SessionID string `json:"sessionId"`
}

type pageViewRequest struct {
	SessionID string `json:"sessionId"`
	Page      string `json:"page"`
	Referrer  string `json:"referrer"`
}

type articleReadRequest struct {
	SessionID string `json:"sessionId"`
	Article   string `json:"article"`
	Duration  int64  `json:"duration"`
}

type clickRequest struct {
	SessionID string `json:"sessionId"`
	Clicked   string `json:"clicked"`
	Target    string `json:"target"`
}

type sessionEndRequest struct {
	SessionID string `json:"sessionId"`
}

// clientDetails captures where the request came from. Merged into every
// event's details map; never included in live notifications.
func clientDetails(c *gin.Context) map[string]any {
	ip := c.ClientIP()
	if ip == "" {
		ip = "Unknown"
	}
	userAgent := c.Request.UserAgent()
	if userAgent == "" {
		userAgent = "Unknown"
	}
	return map[string]any{
		"ip":        ip,
		"userAgent": userAgent,
	}
}

// record persists the event and, only on success, hands it to the live hub.
// The success response is written by the caller after both have returned.
func (h *TrackHandlers) record(c *gin.Context, event models.Event, failureMsg string) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.Events.InsertEvent(ctx, event); err != nil {
		log.Printf("Error inserting %s event: %v", event.EventType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": failureMsg})
		return false
	}

	h.Live.Publish(event)
	return true
}

// SessionStart logs the beginning of a visit. Always accepted; an empty body
// simply means a brand-new session.
func (h *TrackHandlers) SessionStart(c *gin.Context) {
	var req sessionStartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sessionID := utils.ResolveSessionID(req.SessionID)

	event := models.Event{
		SessionID: sessionID,
		EventType: models.EventSessionStart,
		Details:   clientDetails(c),
		Timestamp: time.Now().UTC(),
	}

	if !h.record(c, event, "Failed to start session") {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session started successfully", "sessionId": sessionID})
}

// PageView logs a page view. The page is required.
func (h *TrackHandlers) PageView(c *gin.Context) {
	var req pageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Page == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Page is required"})
		return
	}

	sessionID := utils.ResolveSessionID(req.SessionID)

	event := models.Event{
		SessionID: sessionID,
		EventType: models.EventPageView,
		Page:      req.Page,
		Referrer:  req.Referrer,
		Details:   clientDetails(c),
		Timestamp: time.Now().UTC(),
	}

	if !h.record(c, event, "Failed to log page view") {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Page view logged successfully", "sessionId": sessionID})
}

// ArticleRead logs a completed article read. Reads shorter than 30 seconds
// are rejected as bounces rather than recorded.
func (h *TrackHandlers) ArticleRead(c *gin.Context) {
	var req articleReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Article == "" || req.Duration < 30 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid article read"})
		return
	}

	sessionID := utils.ResolveSessionID(req.SessionID)

	event := models.Event{
		SessionID: sessionID,
		EventType: models.EventArticleRead,
		Page:      req.Article,
		Duration:  req.Duration,
		Details:   clientDetails(c),
		Timestamp: time.Now().UTC(),
	}

	if !h.record(c, event, "Failed to log article read") {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Article read logged successfully", "sessionId": sessionID})
}

// Click logs a click event. What was clicked and where it points both live
// in the details map, alongside the client metadata.
func (h *TrackHandlers) Click(c *gin.Context) {
	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Clicked == "" || req.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Click data required"})
		return
	}

	sessionID := utils.ResolveSessionID(req.SessionID)

	details := clientDetails(c)
	details["clicked"] = req.Clicked
	details["target"] = req.Target

	event := models.Event{
		SessionID: sessionID,
		EventType: models.EventClick,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	if !h.record(c, event, "Failed to log click") {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Click logged successfully", "sessionId": sessionID})
}

// SessionEnd logs the end of a visit. This is the one event type that never
// mints a session ID: ending an unknown session is meaningless.
func (h *TrackHandlers) SessionEnd(c *gin.Context) {
	var req sessionEndRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID is required"})
		return
	}

	event := models.Event{
		SessionID: req.SessionID,
		EventType: models.EventSessionEnd,
		Details:   clientDetails(c),
		Timestamp: time.Now().UTC(),
	}

	if !h.record(c, event, "Failed to end session") {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session ended successfully", "sessionId": req.SessionID})
}
