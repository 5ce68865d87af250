package kv

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var nowFunc = time.Now // mockable

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	secure     INTEGER NOT NULL DEFAULT 0,
	expires_at INTEGER
);`

type row struct {
	Key       string         `db:"key"`
	Value     string         `db:"value"`
	Secure    bool           `db:"secure"`
	ExpiresAt sql.NullInt64  `db:"expires_at"`
}

type sqliteStore struct {
	db  *sqlx.DB
	box *box

	mu        sync.Mutex
	listeners []ChangeFunc
}

var _ Store = (*sqliteStore)(nil)

// Open opens (and creates if needed) the store file at path.
func Open(path, secret string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "creating store dir %s", dir)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	db.SetMaxOpenConns(1) // sqlite: single writer
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "enabling WAL")
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ensuring schema")
	}
	return &sqliteStore{db: db, box: newBox(secret)}, nil
}

func (s *sqliteStore) Get(key string, dest interface{}) error {
	return s.get(key, dest, false)
}

func (s *sqliteStore) GetSecure(key string, dest interface{}) error {
	return s.get(key, dest, true)
}

// GetTTL behaves like Get; expiry enforcement is shared by all reads.
func (s *sqliteStore) GetTTL(key string, dest interface{}) error {
	return s.get(key, dest, false)
}

func (s *sqliteStore) get(key string, dest interface{}, secure bool) error {
	var r row
	if err := s.db.Get(&r, "SELECT key, value, secure, expires_at FROM kv WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return errors.Wrapf(err, "reading %s", key)
	}

	if r.ExpiresAt.Valid && nowFunc().UnixNano()/int64(time.Millisecond) > r.ExpiresAt.Int64 {
		_ = s.Delete(key)
		return ErrNotFound
	}

	raw := []byte(r.Value)
	if r.Secure || secure {
		plain, err := s.box.open(r.Value)
		if err != nil {
			return errors.Wrapf(err, "opening %s", key)
		}
		raw = plain
	}
	return errors.Wrapf(json.Unmarshal(raw, dest), "decoding %s", key)
}

func (s *sqliteStore) Set(key string, value interface{}) error {
	return s.set(key, value, false, 0)
}

func (s *sqliteStore) SetSecure(key string, value interface{}) error {
	return s.set(key, value, true, 0)
}

func (s *sqliteStore) SetTTL(key string, value interface{}, ttl time.Duration) error {
	return s.set(key, value, false, ttl)
}

func (s *sqliteStore) set(key string, value interface{}, secure bool, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	stored := string(raw)
	if secure {
		if stored, err = s.box.seal(raw); err != nil {
			return errors.Wrapf(err, "sealing %s", key)
		}
	}

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{
			Int64: nowFunc().Add(ttl).UnixNano() / int64(time.Millisecond),
			Valid: true,
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO kv (key, value, secure, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, secure = excluded.secure, expires_at = excluded.expires_at`,
		key, stored, secure, expiresAt,
	)
	if err != nil {
		return errors.Wrapf(err, "writing %s", key)
	}
	s.notify(key, false)
	return nil
}

func (s *sqliteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return errors.Wrapf(err, "deleting %s", key)
	}
	s.notify(key, true)
	return nil
}

func (s *sqliteStore) Has(key string) bool {
	var r row
	err := s.db.Get(&r, "SELECT key, value, secure, expires_at FROM kv WHERE key = ?", key)
	if err != nil {
		return false
	}
	if r.ExpiresAt.Valid && nowFunc().UnixNano()/int64(time.Millisecond) > r.ExpiresAt.Int64 {
		_ = s.Delete(key)
		return false
	}
	return true
}

func (s *sqliteStore) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Select(&keys, "SELECT key FROM kv ORDER BY key"); err != nil {
		return nil, errors.Wrap(err, "listing keys")
	}
	return keys, nil
}

func (s *sqliteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM kv"); err != nil {
		return errors.Wrap(err, "clearing store")
	}
	s.notify("", true)
	return nil
}

func (s *sqliteStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *sqliteStore) notify(key string, deleted bool) {
	s.mu.Lock()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(key, deleted)
	}
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
