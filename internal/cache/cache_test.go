package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache"), ttl, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	if _, err := New(dir, time.Hour, true); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache directory not created: %v", err)
	}
}

func TestSetAndGet(t *testing.T) {
	c := newCache(t, time.Hour)
	key := "https://issues.example.org/rest/api/2/project/PROJ/versions"

	if err := c.Set(key, []byte(`[{"name":"1.0"}]`)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Get() miss after Set()")
	}
	if string(got) != `[{"name":"1.0"}]` {
		t.Errorf("Get() = %q", got)
	}

	if _, ok := c.Get("other"); ok {
		t.Error("Get() hit for unknown key")
	}
}

func TestGet_Expired(t *testing.T) {
	c := newCache(t, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, ok := c.Get("k"); ok {
		t.Error("Get() returned an expired entry")
	}
	if _, err := os.Stat(c.keyPath("k")); !os.IsNotExist(err) {
		t.Error("expired entry was not removed")
	}
}

func TestGet_ZeroTTLNeverExpires(t *testing.T) {
	c := newCache(t, 0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	now = now.AddDate(5, 0, 0)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry expired with zero ttl")
	}
}

func TestRemember(t *testing.T) {
	c := newCache(t, time.Hour)
	calls := 0
	fill := func() ([]byte, error) {
		calls++
		return []byte("payload"), nil
	}

	for range 3 {
		got, err := c.Remember("k", fill)
		if err != nil {
			t.Fatalf("Remember() error: %v", err)
		}
		if string(got) != "payload" {
			t.Errorf("Remember() = %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("fill called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.Remember("other", func() ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("Remember() error = %v, want boom", err)
	}
}

func TestDisabled(t *testing.T) {
	c := Disabled()
	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache returned a hit")
	}
	calls := 0
	for range 2 {
		_, _ = c.Remember("k", func() ([]byte, error) { calls++; return nil, nil })
	}
	if calls != 2 {
		t.Errorf("fill called %d times on a disabled cache, want 2", calls)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c := newCache(t, time.Hour)
	_ = c.Set("a", []byte("1"))
	_ = c.Set("b", []byte("2"))

	if err := c.Invalidate("a"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if err := c.Invalidate("a"); err != nil {
		t.Errorf("Invalidate() of a missing key error: %v", err)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("invalidated entry still present")
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1", stats.Entries)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := os.Stat(c.dir); !os.IsNotExist(err) {
		t.Error("Clear() left the directory behind")
	}
}

func TestHashKey(t *testing.T) {
	if HashKey("a") == HashKey("b") {
		t.Error("distinct keys hash equal")
	}
	if len(HashKey("a")) != 64 {
		t.Errorf("len(HashKey) = %d, want 64", len(HashKey("a")))
	}
}
