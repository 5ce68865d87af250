package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/services/api"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func newTestTracker(t *testing.T, enabled bool) (*Tracker, *api.MockTransport, *event.Bus) {
	t.Helper()
	conf := &core.Config{
		APIBaseURL:             "http://test.local/api",
		APITimeout:             time.Second,
		MaxRetryAttempts:       1,
		MaxAPICallsPerMinute:   1000,
		CacheDuration:          time.Minute,
		CacheMaxItems:          10,
		AnalyticsEnabled:       enabled,
		AnalyticsFlushInterval: time.Hour, // keep the loop quiet in tests
	}
	mock := api.NewMockTransport()
	bus := event.NewBus(nopLogger{})
	client := api.NewClient(&api.Options{
		Conf:       conf,
		Bus:        bus,
		Logger:     nopLogger{},
		HTTPClient: &http.Client{Transport: mock},
	})
	tracker := NewTracker(Options{Conf: conf, Bus: bus, API: client, Logger: nopLogger{}})
	t.Cleanup(tracker.Close)
	return tracker, mock, bus
}

func TestTrackAndFlush(t *testing.T) {
	tracker, mock, _ := newTestTracker(t, true)
	mock.Handle(http.MethodPost, "/api/analytics/event", http.StatusOK, map[string]string{})

	tracker.Track("video_play", map[string]interface{}{"lesson_id": "l1"})
	tracker.Track("video_pause", nil)
	assert.Equal(t, 2, tracker.Pending())

	tracker.Flush(context.Background())
	assert.Equal(t, 0, tracker.Pending())
	assert.Equal(t, 1, mock.Calls(http.MethodPost, "/api/analytics/event"))
}

func TestPageLoadsTrackedFromBus(t *testing.T) {
	tracker, _, bus := newTestTracker(t, true)

	bus.Publish(event.PageLoaded{Path: "/courses/c1", Title: "Go Basics"})
	assert.Equal(t, 1, tracker.Pending())
}

func TestDisabledTrackerIsInert(t *testing.T) {
	tracker, mock, bus := newTestTracker(t, false)

	tracker.Track("anything", nil)
	bus.Publish(event.PageLoaded{Path: "/", Title: "Home"})
	assert.Equal(t, 0, tracker.Pending())

	tracker.Flush(context.Background())
	assert.Equal(t, 0, mock.Calls(http.MethodPost, "/api/analytics/event"))
}

func TestFailedFlushDropsBatch(t *testing.T) {
	tracker, mock, _ := newTestTracker(t, true)
	mock.Handle(http.MethodPost, "/api/analytics/event", http.StatusBadRequest,
		map[string]string{"message": "bad payload"})

	tracker.Track("video_play", nil)
	tracker.Flush(context.Background())

	// dropped, not requeued
	assert.Equal(t, 0, tracker.Pending())
}

func TestEventsCarryStableSessionID(t *testing.T) {
	tracker, mock, _ := newTestTracker(t, true)

	var got struct {
		Events []Event `json:"events"`
	}
	mock.HandleFunc(http.MethodPost, "/api/analytics/event", func(r *http.Request) (int, interface{}) {
		require.NoError(t, jsonDecode(r, &got))
		return http.StatusOK, map[string]string{}
	})

	tracker.Track("a", nil)
	tracker.Track("b", nil)
	tracker.Flush(context.Background())

	require.Len(t, got.Events, 2)
	assert.NotEmpty(t, got.Events[0].SessionID)
	assert.Equal(t, got.Events[0].SessionID, got.Events[1].SessionID)
}

func jsonDecode(r *http.Request, dest interface{}) error {
	//goland:noinspection GoUnhandledErrorResult
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
