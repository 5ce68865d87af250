package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
)

func testConf() *core.Config {
	return &core.Config{
		APIBaseURL:           "http://test.local/api",
		APITimeout:           time.Second,
		MaxRetryAttempts:     2,
		MaxAPICallsPerMinute: 60,
		CacheDuration:        5 * time.Minute,
		CacheMaxItems:        10,
	}
}

func newTestClient(conf *core.Config) (*Client, *MockTransport, *event.Bus) {
	mock := NewMockTransport()
	bus := event.NewBus(nil)
	client := NewClient(&Options{
		Conf:       conf,
		Bus:        bus,
		HTTPClient: &http.Client{Transport: mock},
	})
	client.sleep = func(context.Context, time.Duration) error { return nil } // no real backoff waits
	return client, mock, bus
}

type staticTokens string

func (t staticTokens) AccessToken() string { return string(t) }

func TestDoDecodesResponse(t *testing.T) {
	client, mock, _ := newTestClient(testConf())
	mock.Handle(http.MethodGet, "/api/courses/featured", http.StatusOK,
		map[string]interface{}{"data": []map[string]string{{"id": "c1"}}})

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := client.Get(context.Background(), EndpointFeaturedCourses, &resp)

	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "c1", resp.Data[0].ID)
}

func TestDoAttachesBearerToken(t *testing.T) {
	client, mock, _ := newTestClient(testConf())
	client.SetTokenSource(staticTokens("tok-123"))

	var gotAuth string
	mock.HandleFunc(http.MethodGet, "/api/user/profile", func(r *http.Request) (int, interface{}) {
		gotAuth = r.Header.Get("Authorization")
		return http.StatusOK, map[string]string{}
	})

	require.NoError(t, client.Get(context.Background(), EndpointProfile, nil))
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestDoRetriesServerErrorsThenSucceeds(t *testing.T) {
	client, mock, _ := newTestClient(testConf())

	var calls int
	mock.HandleFunc(http.MethodGet, "/api/courses", func(*http.Request) (int, interface{}) {
		calls++
		if calls < 3 {
			return http.StatusServiceUnavailable, map[string]string{"message": "try later"}
		}
		return http.StatusOK, map[string]string{"ok": "1"}
	})

	err := client.Get(context.Background(), EndpointCourses, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoSurfacesNormalizedErrorAfterRetriesExhaust(t *testing.T) {
	client, mock, _ := newTestClient(testConf())
	mock.Handle(http.MethodGet, "/api/courses", http.StatusInternalServerError,
		map[string]string{"message": "db down"})

	err := client.Get(context.Background(), EndpointCourses, nil)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "db down", apiErr.Message)
	assert.Equal(t, 3, mock.Calls(http.MethodGet, "/api/courses")) // initial + 2 retries
}

func TestDoValidationErrorNotRetried(t *testing.T) {
	client, mock, _ := newTestClient(testConf())
	mock.Handle(http.MethodPost, "/api/auth/login", http.StatusBadRequest,
		map[string]string{"message": "authentication failed"})

	err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   EndpointLogin,
		Body:   map[string]string{"email": "x@y.z"},
	}, nil)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 1, mock.Calls(http.MethodPost, "/api/auth/login"))
}

func TestDo401RefreshedOnceThenRetried(t *testing.T) {
	client, mock, _ := newTestClient(testConf())

	var calls int
	mock.HandleFunc(http.MethodGet, "/api/user/profile", func(*http.Request) (int, interface{}) {
		calls++
		if calls == 1 {
			return http.StatusUnauthorized, nil
		}
		return http.StatusOK, map[string]string{}
	})

	var refreshes int
	client.SetRefreshFunc(func(context.Context) bool {
		refreshes++
		return true
	})

	require.NoError(t, client.Get(context.Background(), EndpointProfile, nil))
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 2, calls)
}

func TestDo401RefreshFailureIsSessionFatal(t *testing.T) {
	client, mock, bus := newTestClient(testConf())
	mock.Handle(http.MethodGet, "/api/user/profile", http.StatusUnauthorized, nil)
	client.SetRefreshFunc(func(context.Context) bool { return false })

	var expired int
	bus.Subscribe(event.TopicSessionExpired, func(event.Event) { expired++ })

	err := client.Get(context.Background(), EndpointProfile, nil)

	assert.Equal(t, ErrUnauthorized, err)
	assert.Equal(t, 1, expired)
}

func TestDo409IsSessionConflict(t *testing.T) {
	client, mock, bus := newTestClient(testConf())
	mock.Handle(http.MethodGet, "/api/auth/check-session", http.StatusConflict, nil)

	var conflicts int
	bus.Subscribe(event.TopicSessionConflict, func(event.Event) { conflicts++ })

	err := client.Get(context.Background(), EndpointCheckSession, nil)

	assert.Equal(t, ErrSessionConflict, err)
	assert.Equal(t, 1, conflicts)
}

func TestDoProactiveRateLimit(t *testing.T) {
	conf := testConf()
	conf.MaxAPICallsPerMinute = 2
	client, mock, _ := newTestClient(conf)
	mock.Handle(http.MethodGet, "/api/courses", http.StatusOK, map[string]string{})

	ctx := context.Background()
	require.NoError(t, client.Get(ctx, EndpointCourses, nil))
	require.NoError(t, client.Get(ctx, EndpointCourses, nil))

	err := client.Get(ctx, EndpointCourses, nil)
	assert.Equal(t, ErrRateLimited, err)
	assert.Equal(t, 2, mock.Calls(http.MethodGet, "/api/courses")) // third never sent
}

func TestGetCachedServesFromCache(t *testing.T) {
	client, mock, _ := newTestClient(testConf())
	mock.Handle(http.MethodGet, "/api/courses/featured", http.StatusOK, map[string]string{"v": "1"})

	ctx := context.Background()
	var first, second map[string]string
	require.NoError(t, client.GetCached(ctx, EndpointFeaturedCourses, &first))
	require.NoError(t, client.GetCached(ctx, EndpointFeaturedCourses, &second))

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.Calls(http.MethodGet, "/api/courses/featured"))

	client.ClearCache()
	require.NoError(t, client.GetCached(ctx, EndpointFeaturedCourses, &second))
	assert.Equal(t, 2, mock.Calls(http.MethodGet, "/api/courses/featured"))
}

func TestMockTransportMatchesMethod(t *testing.T) {
	client, mock, _ := newTestClient(testConf())
	mock.Handle(http.MethodPost, "/api/courses", http.StatusCreated, map[string]string{})

	// A GET against a POST-only route must not match.
	err := client.Get(context.Background(), EndpointCourses, nil)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
