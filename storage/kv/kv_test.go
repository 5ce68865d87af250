package kv

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "store.db"), "test-secret")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)

	type prefs struct {
		Theme    string `json:"theme"`
		Autoplay bool   `json:"autoplay"`
	}
	in := prefs{Theme: "dark", Autoplay: true}
	if err := store.Set(KeyPreferences, in); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	var out prefs
	if err := store.Get(KeyPreferences, &out); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if out != in {
		t.Errorf("Get() = %+v, want %+v", out, in)
	}
}

func TestGetMissingKey(t *testing.T) {
	store := openTestStore(t)

	var out string
	if err := store.Get("darasa.nope", &out); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSecureValueObfuscatedAtRest(t *testing.T) {
	store := openTestStore(t)

	token := "eyJhbGciOiJIUzI1NiJ9.payload.sig"
	if err := store.SetSecure(KeyAccessToken, token); err != nil {
		t.Fatalf("SetSecure() failed: %v", err)
	}

	// raw row must not contain the plaintext
	s := store.(*sqliteStore)
	var r row
	if err := s.db.Get(&r, "SELECT key, value, secure, expires_at FROM kv WHERE key = ?", KeyAccessToken); err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	if !r.Secure {
		t.Error("secure flag not set")
	}
	if r.Value == token || strings.Contains(r.Value, "payload") {
		t.Error("secure value stored in plaintext")
	}

	var out string
	if err := store.GetSecure(KeyAccessToken, &out); err != nil {
		t.Fatalf("GetSecure() failed: %v", err)
	}
	if out != token {
		t.Errorf("GetSecure() = %q, want %q", out, token)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := openTestStore(t)
	defer func() { nowFunc = time.Now }()

	base := time.Now()
	nowFunc = func() time.Time { return base }

	if err := store.SetTTL("darasa.tmp", 42, time.Minute); err != nil {
		t.Fatalf("SetTTL() failed: %v", err)
	}

	var out int
	if err := store.GetTTL("darasa.tmp", &out); err != nil || out != 42 {
		t.Fatalf("GetTTL() = %d, %v; want 42, nil", out, err)
	}

	nowFunc = func() time.Time { return base.Add(time.Minute + time.Second) }
	if err := store.GetTTL("darasa.tmp", &out); err != ErrNotFound {
		t.Errorf("GetTTL() after expiry error = %v, want ErrNotFound", err)
	}
	if store.Has("darasa.tmp") {
		t.Error("Has() = true after expiry")
	}
}

func TestOnChangeNotification(t *testing.T) {
	store := openTestStore(t)

	var gotKey string
	var gotDeleted bool
	store.OnChange(func(key string, deleted bool) {
		gotKey, gotDeleted = key, deleted
	})

	_ = store.Set(KeyTheme, "dark")
	if gotKey != KeyTheme || gotDeleted {
		t.Errorf("OnChange after Set = (%q, %v), want (%q, false)", gotKey, gotDeleted, KeyTheme)
	}

	_ = store.Delete(KeyTheme)
	if gotKey != KeyTheme || !gotDeleted {
		t.Errorf("OnChange after Delete = (%q, %v), want (%q, true)", gotKey, gotDeleted, KeyTheme)
	}
}

func TestClear(t *testing.T) {
	store := openTestStore(t)

	_ = store.Set(KeyTheme, "light")
	_ = store.Set(KeySessionID, "s1")
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Keys() = %v, want empty", keys)
	}
}
