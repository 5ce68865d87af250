package kv

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	raw       []byte
	expiresAt time.Time // zero = no expiry
}

// memStore is the in-memory Store used by tests and by ENV=TEST runs.
// Secure values skip obfuscation; nothing hits disk anyway.
type memStore struct {
	mu        sync.Mutex
	entries   map[string]memEntry
	listeners []ChangeFunc
}

var _ Store = (*memStore)(nil)

func OpenInMem() Store {
	return &memStore{entries: make(map[string]memEntry)}
}

func (s *memStore) Get(key string, dest interface{}) error       { return s.get(key, dest) }
func (s *memStore) GetSecure(key string, dest interface{}) error { return s.get(key, dest) }
func (s *memStore) GetTTL(key string, dest interface{}) error    { return s.get(key, dest) }

func (s *memStore) get(key string, dest interface{}) error {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && !entry.expiresAt.IsZero() && nowFunc().After(entry.expiresAt) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(entry.raw, dest)
}

func (s *memStore) Set(key string, value interface{}) error       { return s.set(key, value, 0) }
func (s *memStore) SetSecure(key string, value interface{}) error { return s.set(key, value, 0) }

func (s *memStore) SetTTL(key string, value interface{}, ttl time.Duration) error {
	return s.set(key, value, ttl)
}

func (s *memStore) set(key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memEntry{raw: raw}
	if ttl > 0 {
		entry.expiresAt = nowFunc().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	s.notify(key, false)
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	s.notify(key, true)
	return nil
}

func (s *memStore) Has(key string) bool {
	var ignored json.RawMessage
	return s.get(key, &ignored) == nil
}

func (s *memStore) Keys() ([]string, error) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	s.entries = make(map[string]memEntry)
	s.mu.Unlock()
	s.notify("", true)
	return nil
}

func (s *memStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *memStore) notify(key string, deleted bool) {
	s.mu.Lock()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(key, deleted)
	}
}

func (s *memStore) Close() error { return nil }
