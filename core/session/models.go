package session

import (
	"context"
	"time"

	"github.com/trezcool/darasa/core/user"
)

// State is the session lifecycle position.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateExpired
	StateConflicted
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	case StateConflicted:
		return "conflicted"
	}
	return "unknown"
}

// Signal is an out-of-band invalidation delivered by the push channel.
type Signal int

const (
	// SignalTerminated: the session was superseded on another device.
	SignalTerminated Signal = iota
	// SignalExpired: the server expired the session.
	SignalExpired
)

// Monitor is the push channel to the session-notification service. Start
// returns an error when the channel cannot be established at all, in
// which case the service falls back to polling for the session's life.
// onDown fires when an established channel is permanently lost.
type Monitor interface {
	Start(ctx context.Context, sessionID string, onSignal func(Signal), onDown func()) error
	Stop()
}

// Session is the persisted token set.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionID    string
	User         user.User
}

type authPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"` // seconds
	SessionID    string    `json:"session_id"`
	User         user.User `json:"user"`
}

type authResponse struct {
	Data authPayload `json:"data"`
}

type checkSessionResponse struct {
	Data struct {
		SessionID string    `json:"session_id"`
		ExpiresIn int       `json:"expires_in"`
		User      user.User `json:"user"`
	} `json:"data"`
}
