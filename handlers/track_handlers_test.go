package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepulse/api/models"
)

type fakeEventRepo struct {
	events []models.Event
	err    error
}

func (f *fakeEventRepo) InsertEvent(_ context.Context, event models.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakePublisher struct {
	published []models.Event
}

func (f *fakePublisher) Publish(event models.Event) {
	f.published = append(f.published, event)
}

func newTrackRouter(repo *fakeEventRepo, pub *fakePublisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTrackHandlers(repo, pub)

	r := gin.New()
	r.POST("/session-start", h.SessionStart)
	r.POST("/page-view", h.PageView)
	r.POST("/article-read", h.ArticleRead)
	r.POST("/click", h.Click)
	r.POST("/session-end", h.SessionEnd)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func responseSessionID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Message   string `json:"message"`
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionID
}

func TestSessionStart_MintsSessionIDWhenMissing(t *testing.T) {
	repo := &fakeEventRepo{}
	pub := &fakePublisher{}
	r := newTrackRouter(repo, pub)

	w := postJSON(r, "/session-start", `{}`)

	require.Equal(t, http.StatusOK, w.Code)
	sessionID := responseSessionID(t, w)
	require.NotEmpty(t, sessionID)
	_, err := uuid.Parse(sessionID)
	assert.NoError(t, err, "minted session ID should be a UUID")

	require.Len(t, repo.events, 1)
	assert.Equal(t, models.EventSessionStart, repo.events[0].EventType)
	assert.Equal(t, sessionID, repo.events[0].SessionID)
	assert.False(t, repo.events[0].Timestamp.IsZero())

	require.Len(t, pub.published, 1)
	assert.Equal(t, sessionID, pub.published[0].SessionID)
}

func TestSessionStart_TwoAnonymousCallsGetDistinctIDs(t *testing.T) {
	repo := &fakeEventRepo{}
	r := newTrackRouter(repo, &fakePublisher{})

	first := responseSessionID(t, postJSON(r, "/session-start", `{}`))
	second := responseSessionID(t, postJSON(r, "/session-start", `{}`))

	assert.NotEqual(t, first, second)
}

func TestSessionStart_EchoesSuppliedSessionID(t *testing.T) {
	repo := &fakeEventRepo{}
	r := newTrackRouter(repo, &fakePublisher{})

	w := postJSON(r, "/session-start", `{"sessionId":"caller-chosen-id"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "caller-chosen-id", responseSessionID(t, w))
	require.Len(t, repo.events, 1)
	assert.Equal(t, "caller-chosen-id", repo.events[0].SessionID)
}

func TestSessionStart_AcceptsEmptyBody(t *testing.T) {
	r := newTrackRouter(&fakeEventRepo{}, &fakePublisher{})

	w := postJSON(r, "/session-start", ``)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionStart_CapturesClientMetadata(t *testing.T) {
	repo := &fakeEventRepo{}
	r := newTrackRouter(repo, &fakePublisher{})

	postJSON(r, "/session-start", `{}`)

	require.Len(t, repo.events, 1)
	details := repo.events[0].Details
	assert.Equal(t, "test-agent/1.0", details["userAgent"])
	assert.NotEmpty(t, details["ip"])
}

func TestPageView_RequiresPage(t *testing.T) {
	repo := &fakeEventRepo{}
	pub := &fakePublisher{}
	r := newTrackRouter(repo, pub)

	w := postJSON(r, "/page-view", `{"sessionId":"s1","referrer":"https://example.com"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, repo.events, "rejected events must never be persisted")
	assert.Empty(t, pub.published, "rejected events must never be broadcast")
}

func TestPageView_LogsAndBroadcasts(t *testing.T) {
	repo := &fakeEventRepo{}
	pub := &fakePublisher{}
	r := newTrackRouter(repo, pub)

	w := postJSON(r, "/page-view", `{"page":"/home"}`)

	require.Equal(t, http.StatusOK, w.Code)
	sessionID := responseSessionID(t, w)
	require.NotEmpty(t, sessionID)

	require.Len(t, repo.events, 1)
	assert.Equal(t, models.EventPageView, repo.events[0].EventType)
	assert.Equal(t, "/home", repo.events[0].Page)

	require.Len(t, pub.published, 1)
	assert.Equal(t, repo.events[0], pub.published[0], "the broadcast event must be the persisted event")
	assert.Equal(t, sessionID, pub.published[0].SessionID)
}

func TestArticleRead_DurationBoundary(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"duration 29 is rejected", `{"article":"a1","duration":29}`, http.StatusBadRequest},
		{"duration 30 is accepted", `{"article":"a1","duration":30}`, http.StatusOK},
		{"missing article is rejected", `{"duration":120}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventRepo{}
			pub := &fakePublisher{}
			r := newTrackRouter(repo, pub)

			w := postJSON(r, "/article-read", tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				require.Len(t, repo.events, 1)
				assert.Equal(t, "a1", repo.events[0].Page)
				assert.EqualValues(t, 30, repo.events[0].Duration)
				assert.Len(t, pub.published, 1)
			} else {
				assert.Empty(t, repo.events)
				assert.Empty(t, pub.published)
			}
		})
	}
}

func TestClick_RequiresClickedAndTarget(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"both present", `{"clicked":"cta","target":"/signup"}`, http.StatusOK},
		{"missing target", `{"clicked":"cta"}`, http.StatusBadRequest},
		{"missing clicked", `{"target":"/signup"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventRepo{}
			r := newTrackRouter(repo, &fakePublisher{})

			w := postJSON(r, "/click", tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestClick_StoresClickDataInDetails(t *testing.T) {
	repo := &fakeEventRepo{}
	r := newTrackRouter(repo, &fakePublisher{})

	w := postJSON(r, "/click", `{"sessionId":"s9","clicked":"subscribe-button","target":"/subscribe"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, repo.events, 1)
	details := repo.events[0].Details
	assert.Equal(t, "subscribe-button", details["clicked"])
	assert.Equal(t, "/subscribe", details["target"])
	assert.Equal(t, "test-agent/1.0", details["userAgent"])
}

func TestSessionEnd_RequiresSessionID(t *testing.T) {
	repo := &fakeEventRepo{}
	pub := &fakePublisher{}
	r := newTrackRouter(repo, pub)

	for _, body := range []string{``, `{}`, `{"sessionId":""}`} {
		w := postJSON(r, "/session-end", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %q", body)
	}
	assert.Empty(t, repo.events)
	assert.Empty(t, pub.published)
}

func TestSessionEnd_NeverMintsAnID(t *testing.T) {
	repo := &fakeEventRepo{}
	r := newTrackRouter(repo, &fakePublisher{})

	w := postJSON(r, "/session-end", `{"sessionId":"known-session"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "known-session", responseSessionID(t, w))
	require.Len(t, repo.events, 1)
	assert.Equal(t, models.EventSessionEnd, repo.events[0].EventType)
}

func TestIntake_PersistenceFailureMeansNoBroadcast(t *testing.T) {
	repo := &fakeEventRepo{err: errors.New("clickhouse is down")}
	pub := &fakePublisher{}
	r := newTrackRouter(repo, pub)

	w := postJSON(r, "/page-view", `{"page":"/home"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, pub.published, "an event that was not persisted must never reach observers")
}
