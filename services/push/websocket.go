// Package push maintains the WebSocket channel over which the server
// invalidates sessions out-of-band. One channel exists per session; the
// session service falls back to polling when the channel is down.
package push

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/services/api"
)

// Server frame types.
const (
	msgSessionTerminated = "SESSION_TERMINATED"
	msgSessionExpired    = "SESSION_EXPIRED"
	msgPing              = "PING"
	msgPong              = "PONG"
)

type frame struct {
	Type string `json:"type"`
}

// SessionMonitor implements session.Monitor over a WebSocket. An
// uncleanly dropped channel gets exactly one reconnect attempt after
// the configured delay; a second drop hands control back to the caller
// via onDown.
type SessionMonitor struct {
	conf   *core.Config
	log    core.Logger
	tokens api.TokenSource
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

var _ session.Monitor = (*SessionMonitor)(nil)

func NewSessionMonitor(conf *core.Config, log core.Logger, tokens api.TokenSource) *SessionMonitor {
	return &SessionMonitor{
		conf:   conf,
		log:    log,
		tokens: tokens,
		dialer: websocket.DefaultDialer,
	}
}

// Start dials the session channel and begins reading. It returns an
// error only when the initial dial fails.
func (m *SessionMonitor) Start(ctx context.Context, sessionID string, onSignal func(session.Signal), onDown func()) error {
	m.Stop()

	ctx, cancel := context.WithCancel(ctx)
	conn, err := m.dial(ctx, sessionID)
	if err != nil {
		cancel()
		return err
	}
	m.mu.Lock()
	m.conn = conn
	m.cancel = cancel
	m.mu.Unlock()

	go m.readLoop(ctx, conn, sessionID, onSignal, onDown)
	return nil
}

// Stop closes the channel; reads unblock with a cancellation error.
func (m *SessionMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		//goland:noinspection GoUnhandledErrorResult
		m.conn.Close()
		m.conn = nil
	}
}

func (m *SessionMonitor) dial(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	url := m.conf.WSBaseURL + "/ws/session/" + sessionID
	hdr := http.Header{}
	if tok := m.tokens.AccessToken(); tok != "" {
		hdr.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := m.dialer.DialContext(ctx, url, hdr)
	if resp != nil && resp.Body != nil {
		//goland:noinspection GoUnhandledErrorResult
		resp.Body.Close()
	}
	return conn, err
}

func (m *SessionMonitor) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, onSignal func(session.Signal), onDown func()) {
	reconnected := false
	for {
		var msg frame
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || isCleanClose(err) {
				return
			}
			if reconnected {
				m.log.Warn("session channel lost", err)
				onDown()
				return
			}
			reconnected = true
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.conf.PushReconnectDelay):
			}
			next, err := m.dial(ctx, sessionID)
			if err != nil {
				m.log.Warn("session channel reconnect failed", err)
				onDown()
				return
			}
			m.mu.Lock()
			m.conn = next
			m.mu.Unlock()
			conn = next
			continue
		}

		switch msg.Type {
		case msgPing:
			_ = conn.WriteJSON(frame{Type: msgPong})
		case msgSessionTerminated:
			onSignal(session.SignalTerminated)
			return
		case msgSessionExpired:
			onSignal(session.SignalExpired)
			return
		default:
			m.log.Debug("unhandled session channel frame", msg.Type)
		}
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
