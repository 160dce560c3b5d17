package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/application/container"
	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/threshold/internal/testutil"
)

const (
	testJWTSecret  = "jwt-secret-for-route-tests"
	testCronSecret = "cron-secret-for-route-tests"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type visitResponse struct {
	SessionID string `json:"sessionId"`
	VisitorID string `json:"visitorId"`
	Token     string `json:"token"`
	Returning bool   `json:"returning"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *container.Container) {
	t.Helper()
	c := container.NewContainer(
		testutil.NewTestDB(t),
		behavior.DefaultThresholds(),
		testutil.NewFakeClock(),
		container.Options{
			JWTSecret:        testJWTSecret,
			CronSecret:       testCronSecret,
			TokenTTL:         time.Hour,
			IdleTimeout:      30 * time.Minute,
			MaxLiveSessions:  10,
			MaxStreamClients: 10,
		},
		logging.NewNopLogger(),
		performance.NewTracker(nil, nil),
	)
	return SetupRoutes(c, []string{"http://localhost:4321"}), c
}

func doJSON(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func startVisit(t *testing.T, r http.Handler) visitResponse {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/visits", map[string]any{
		"environment": map[string]any{"userAgent": "test-agent", "language": "en", "timezoneOffset": 0},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var visit visitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &visit))
	require.NotEmpty(t, visit.Token)
	return visit
}

func TestVisitAndEvents(t *testing.T) {
	r, _ := newTestRouter(t)
	visit := startVisit(t, r)
	assert.False(t, visit.Returning)

	events := map[string]any{"events": []map[string]any{
		{"type": "click", "target": "nav"},
		{"type": "node_focus", "nodeId": "origin"},
		{"type": "impatience"},
	}}

	w := doJSON(r, http.MethodPost, "/api/v1/sessions/"+visit.SessionID+"/events", events, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/sessions/"+visit.SessionID+"/events", events, bearer(visit.Token))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var ingest struct {
		Accepted int `json:"accepted"`
		Rejected int `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ingest))
	assert.Equal(t, 2, ingest.Accepted)
	assert.Equal(t, 1, ingest.Rejected)

	w = doJSON(r, http.MethodGet, "/api/v1/sessions/"+visit.SessionID+"/metrics", nil, bearer(visit.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"metrics"`)

	w = doJSON(r, http.MethodPost, "/api/v1/sessions/"+visit.SessionID+"/end", nil, bearer(visit.Token))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/sessions/"+visit.SessionID+"/state", nil, bearer(visit.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventBatchLimits(t *testing.T) {
	r, _ := newTestRouter(t)
	visit := startVisit(t, r)
	path := "/api/v1/sessions/" + visit.SessionID + "/events"

	batch := make([]map[string]any, 201)
	for i := range batch {
		batch[i] = map[string]any{"type": "click"}
	}
	w := doJSON(r, http.MethodPost, path, map[string]any{"events": batch}, bearer(visit.Token))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "too many events")

	oversized := map[string]any{"events": []map[string]any{
		{"type": "click", "target": strings.Repeat("x", 300<<10)},
	}}
	w = doJSON(r, http.MethodPost, path, oversized, bearer(visit.Token))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "request body too large")

	w = doJSON(r, http.MethodPost, path, map[string]any{"events": batch[:200]}, bearer(visit.Token))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSessionTokenIsBoundToSession(t *testing.T) {
	r, _ := newTestRouter(t)
	first := startVisit(t, r)
	second := startVisit(t, r)

	w := doJSON(r, http.MethodGet, "/api/v1/sessions/"+second.SessionID+"/state", nil, bearer(first.Token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/sessions/"+second.SessionID+"/state?token="+second.Token, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSchedulerRateLimit(t *testing.T) {
	r, _ := newTestRouter(t)

	for i, remaining := range []string{"1", "0"} {
		w := doJSON(r, http.MethodPost, "/api/v1/scheduler/run", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, "call %d", i)
		assert.Equal(t, remaining, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := doJSON(r, http.MethodPost, "/api/v1/scheduler/run", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = doJSON(r, http.MethodPost, "/api/v1/scheduler/run", nil, map[string]string{"X-Cron-Secret": testCronSecret})
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Success bool   `json:"success"`
		Trigger string `json:"trigger"`
		Results struct {
			Errors []string `json:"errors"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.True(t, summary.Success)
	assert.Equal(t, "cron", summary.Trigger)
	assert.NotNil(t, summary.Results.Errors)
}

func TestSchedulerRateLimitIsPerClient(t *testing.T) {
	r, _ := newTestRouter(t)
	for i := 0; i < 2; i++ {
		w := doJSON(r, http.MethodPost, "/api/v1/scheduler/run", nil, map[string]string{"X-Forwarded-For": "198.51.100.7"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doJSON(r, http.MethodPost, "/api/v1/scheduler/run", nil, map[string]string{"X-Forwarded-For": "198.51.100.7"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/scheduler/run", nil, map[string]string{"X-Forwarded-For": "203.0.113.9"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrustedEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	visit := startVisit(t, r)
	trusted := map[string]string{"X-Cron-Secret": testCronSecret}

	path := "/api/v1/sessions/" + visit.SessionID + "/consequences"
	w := doJSON(r, http.MethodPost, path, map[string]any{"trigger": "show_warning"}, bearer(visit.Token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, path, map[string]any{"trigger": "play_sound"}, trusted)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, path, map[string]any{"trigger": "restrict_content"}, trusted)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"accessRestricted":true`)

	w = doJSON(r, http.MethodPost, "/api/v1/signals", map[string]any{"nodeId": "lattice", "signalType": "shift", "signalStrength": 0.4}, trusted)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/signals", map[string]any{"nodeId": "lattice"}, trusted)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/signals", nil, trusted)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestLogLevelEndpoints(t *testing.T) {
	r, c := newTestRouter(t)
	trusted := map[string]string{"X-Cron-Secret": testCronSecret}

	w := doJSON(r, http.MethodGet, "/api/v1/logs/levels", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/logs/levels", map[string]any{"channel": "scheduler", "level": "debug"}, trusted)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "DEBUG", c.Logger.GetChannelLevels()["scheduler"])

	w = doJSON(r, http.MethodGet, "/api/v1/logs/levels", nil, trusted)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Levels map[string]string `json:"levels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "DEBUG", body.Levels["scheduler"])
	assert.Contains(t, body.Levels, "session")

	w = doJSON(r, http.MethodPost, "/api/v1/logs/levels", map[string]any{"channel": "scheduler", "level": "loud"}, trusted)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/logs/levels", map[string]any{"channel": "nope", "level": "warn"}, trusted)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVisitorEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	visit := startVisit(t, r)
	other := startVisit(t, r)
	require.Equal(t, visit.VisitorID, other.VisitorID, "same environment, same visitor")

	stranger := doJSON(r, http.MethodPost, "/api/v1/visits", map[string]any{
		"environment": map[string]any{"userAgent": "another-agent"},
	}, nil)
	require.Equal(t, http.StatusCreated, stranger.Code)
	var strangerVisit visitResponse
	require.NoError(t, json.Unmarshal(stranger.Body.Bytes(), &strangerVisit))

	w := doJSON(r, http.MethodGet, "/api/v1/visitors/"+visit.VisitorID+"/insights", nil, bearer(strangerVisit.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/visitors/"+visit.VisitorID+"/insights", nil, bearer(visit.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"insights":[],"count":0}`, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/v1/visitors/"+visit.VisitorID+"/classify", nil, bearer(visit.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"levelChanged":false`)

	w = doJSON(r, http.MethodPost, "/api/v1/visitors/unknown/classify", nil, map[string]string{"X-Cron-Secret": testCronSecret})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/insights/missing/delivered", nil, bearer(visit.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	startVisit(t, r)

	w := doJSON(r, http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"activeSessions":1`)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
}

func TestStreamPushesStateUntilSessionEnds(t *testing.T) {
	r, c := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	visit := startVisit(t, r)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + visit.SessionID + "/stream?token=" + visit.Token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	read := func() messaging.Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg messaging.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	// Signals may be interleaved with state pushes.
	readUntil := func(msgType string) messaging.Message {
		t.Helper()
		for i := 0; i < 8; i++ {
			if msg := read(); msg.Type == msgType {
				return msg
			}
		}
		t.Fatalf("no %s message", msgType)
		return messaging.Message{}
	}

	first := read()
	assert.Equal(t, messaging.MessageState, first.Type)
	assert.Equal(t, visit.SessionID, first.SessionID)

	require.Equal(t, 1, c.Broadcaster.SubscriberCount(visit.SessionID))
	c.SessionService.TickAll()
	readUntil(messaging.MessageState)

	w := doJSON(r, http.MethodPost, "/api/v1/sessions/"+visit.SessionID+"/end", nil, bearer(visit.Token))
	require.Equal(t, http.StatusOK, w.Code)
	readUntil(messaging.MessageEnded)
}

func TestStreamRequiresToken(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	visit := startVisit(t, r)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + visit.SessionID + "/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamInitialStateGoesOnlyToNewClient(t *testing.T) {
	r, c := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	visit := startVisit(t, r)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + visit.SessionID + "/stream?token=" + visit.Token

	dial := func() *websocket.Conn {
		t.Helper()
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg messaging.Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, messaging.MessageState, msg.Type)
		return conn
	}

	existing := dial()
	defer existing.Close()
	joined := dial()
	defer joined.Close()
	require.Equal(t, 2, c.Broadcaster.SubscriberCount(visit.SessionID))

	existing.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := existing.ReadMessage()
	assert.Error(t, err, "existing subscriber received a frame when another client joined")
}
