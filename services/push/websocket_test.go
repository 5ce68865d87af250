package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/session"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type staticTokens string

func (t staticTokens) AccessToken() string { return string(t) }

var upgrader = websocket.Upgrader{}

// serve runs fn for each incoming channel on a test server and returns
// the monitor wired at it.
func serve(t *testing.T, fn func(conn *websocket.Conn, r *http.Request)) (*SessionMonitor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		fn(conn, r)
	}))
	t.Cleanup(srv.Close)

	conf := &core.Config{
		WSBaseURL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		PushReconnectDelay: 10 * time.Millisecond,
	}
	return NewSessionMonitor(conf, nopLogger{}, staticTokens("tok-1")), srv
}

func TestMonitorDeliversTerminatedSignal(t *testing.T) {
	type dialInfo struct{ path, auth string }
	dialed := make(chan dialInfo, 1)
	m, _ := serve(t, func(conn *websocket.Conn, r *http.Request) {
		dialed <- dialInfo{r.URL.Path, r.Header.Get("Authorization")}
		require.NoError(t, conn.WriteJSON(frame{Type: msgSessionTerminated}))
	})

	signals := make(chan session.Signal, 1)
	err := m.Start(context.Background(), "sess-1", func(s session.Signal) { signals <- s }, func() {})
	require.NoError(t, err)
	defer m.Stop()

	select {
	case sig := <-signals:
		assert.Equal(t, session.SignalTerminated, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("no signal delivered")
	}
	info := <-dialed
	assert.Equal(t, "/ws/session/sess-1", info.path)
	assert.Equal(t, "Bearer tok-1", info.auth)
}

func TestMonitorAnswersPings(t *testing.T) {
	pongs := make(chan string, 1)
	m, _ := serve(t, func(conn *websocket.Conn, r *http.Request) {
		require.NoError(t, conn.WriteJSON(frame{Type: msgPing}))
		var reply frame
		if err := conn.ReadJSON(&reply); err == nil {
			pongs <- reply.Type
		}
	})

	err := m.Start(context.Background(), "sess-1", func(session.Signal) {}, func() {})
	require.NoError(t, err)
	defer m.Stop()

	select {
	case typ := <-pongs:
		assert.Equal(t, msgPong, typ)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestMonitorReconnectsOnceThenGivesUp(t *testing.T) {
	var dials int32
	m, _ := serve(t, func(conn *websocket.Conn, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		// drop the connection uncleanly every time
		_ = conn.UnderlyingConn().Close()
	})

	down := make(chan struct{}, 1)
	err := m.Start(context.Background(), "sess-1", func(session.Signal) {}, func() { down <- struct{}{} })
	require.NoError(t, err)
	defer m.Stop()

	select {
	case <-down:
	case <-time.After(2 * time.Second):
		t.Fatal("onDown never fired")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
}

func TestMonitorInitialDialFailure(t *testing.T) {
	conf := &core.Config{WSBaseURL: "ws://127.0.0.1:1", PushReconnectDelay: time.Millisecond}
	m := NewSessionMonitor(conf, nopLogger{}, staticTokens(""))

	err := m.Start(context.Background(), "sess-1", func(session.Signal) {}, func() {})
	require.Error(t, err)
}
