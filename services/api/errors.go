package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrRateLimited is raised client-side before any request is sent.
	ErrRateLimited = errors.New("too many requests, slow down")
	// ErrUnauthorized is returned once the refresh-then-retry path has failed.
	ErrUnauthorized = errors.New("session expired, sign in again")
	// ErrSessionConflict means the session was superseded on another device.
	ErrSessionConflict = errors.New("session active on another device")
	// ErrOffline wraps connection-level failures once retries are exhausted.
	ErrOffline = errors.New("connection error, check your network")
)

// Error is the normalized response error handed to callers when the
// central retry/refresh handling does not absorb the failure.
type Error struct {
	Status  int
	Message string
	Payload json.RawMessage
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Retryable reports whether a status is safe to retry with backoff.
func Retryable(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

func newError(status int, body []byte) *Error {
	apiErr := &Error{Status: status, Message: statusMessage(status)}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			apiErr.Message = payload.Message
		} else if payload.Error != "" {
			apiErr.Message = payload.Error
		}
		apiErr.Payload = json.RawMessage(body)
	}
	return apiErr
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid data, check the fields"
	case http.StatusUnauthorized:
		return "session expired, sign in again"
	case http.StatusForbidden:
		return "you do not have access to this resource"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusConflict:
		return "session active on another device"
	case http.StatusTooManyRequests:
		return "too many requests, slow down"
	}
	if status >= 500 {
		return "server error, try again later"
	}
	return http.StatusText(status)
}
