package ratelimit

import (
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/storage/kv"
)

// LoginLimiter locks an account out after too many failed login attempts.
// Records are persisted so a restart does not reset the lockout; each
// record carries a TTL of twice the lockout window so stale entries age
// out of the store on their own.
type LoginLimiter struct {
	store   kv.Store
	max     int
	lockout time.Duration
	nowFunc func() time.Time
}

type attemptRecord struct {
	Count       int   `json:"count"`
	LockedUntil int64 `json:"locked_until,omitempty"` // unix ms
}

func NewLoginLimiter(store kv.Store, max int, lockout time.Duration) *LoginLimiter {
	return &LoginLimiter{store: store, max: max, lockout: lockout, nowFunc: time.Now}
}

func (l *LoginLimiter) SetNowFunc(f func() time.Time) { l.nowFunc = f }

func (l *LoginLimiter) key(email string) string {
	return kv.KeyLoginAttemptsPrefix + core.CleanString(email, true)
}

func (l *LoginLimiter) load(email string) (rec attemptRecord) {
	_ = l.store.GetTTL(l.key(email), &rec)
	return rec
}

func (l *LoginLimiter) save(email string, rec attemptRecord) {
	_ = l.store.SetTTL(l.key(email), rec, 2*l.lockout)
}

// Check reports whether a login may proceed for email, and if not, how
// long until the lockout lifts.
func (l *LoginLimiter) Check(email string) (allowed bool, retryIn time.Duration) {
	rec := l.load(email)
	if rec.LockedUntil == 0 {
		return true, 0
	}
	until := time.Unix(0, rec.LockedUntil*int64(time.Millisecond))
	if now := l.nowFunc(); now.Before(until) {
		return false, until.Sub(now)
	}
	// lockout elapsed; reset
	_ = l.store.Delete(l.key(email))
	return true, 0
}

// RecordFailure counts a failed attempt, locking the account once the
// limit is reached.
func (l *LoginLimiter) RecordFailure(email string) {
	rec := l.load(email)
	rec.Count++
	if rec.Count >= l.max {
		rec.LockedUntil = l.nowFunc().Add(l.lockout).UnixNano() / int64(time.Millisecond)
	}
	l.save(email, rec)
}

// RecordSuccess clears the attempt record.
func (l *LoginLimiter) RecordSuccess(email string) {
	_ = l.store.Delete(l.key(email))
}
