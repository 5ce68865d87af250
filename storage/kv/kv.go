// Package kv is the durable per-install key/value store backing tokens,
// the cached user, preferences and the offline progress queue. Values
// are JSON; sensitive values are obfuscated at rest.
package kv

import (
	"errors"
	"time"
)

// Namespaced keys persisted by the client.
const (
	KeyAccessToken   = "darasa.token"         // obfuscated
	KeyRefreshToken  = "darasa.refresh"       // obfuscated
	KeyTokenExpiry   = "darasa.token_expiry"  //
	KeySessionID     = "darasa.session"       //
	KeyUser          = "darasa.user"          // obfuscated
	KeyTheme         = "darasa.theme"         //
	KeyPreferences   = "darasa.prefs"         //
	KeyProgressQueue = "darasa.progress_queue"
	KeyInstallID     = "darasa.install_id"
	// KeyLoginAttemptsPrefix + hash(identifier); TTL'd.
	KeyLoginAttemptsPrefix = "darasa.login_attempts."
	// KeyLessonPositionPrefix + lessonID; TTL'd.
	KeyLessonPositionPrefix = "darasa.lesson_position."
)

var ErrNotFound = errors.New("key not found")

// ChangeFunc observes local mutations; deleted reports removals.
// The session manager watches the access token key to mirror the
// forced-logout-on-removal behavior across consumers.
type ChangeFunc func(key string, deleted bool)

// Store is any durable key/value backend. Get/Set operate on JSON-encoded
// values; GetSecure/SetSecure additionally obfuscate at rest. TTL'd
// entries are enforced on read and purged lazily.
type Store interface {
	Get(key string, dest interface{}) error
	Set(key string, value interface{}) error
	GetSecure(key string, dest interface{}) error
	SetSecure(key string, value interface{}) error
	GetTTL(key string, dest interface{}) error
	SetTTL(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	Has(key string) bool
	Keys() ([]string, error)
	Clear() error
	OnChange(fn ChangeFunc)
	Close() error
}
