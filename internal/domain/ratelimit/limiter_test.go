package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// fakeStore is an in-memory Store with controllable failures.
type fakeStore struct {
	values  map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	setOps  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values: make(map[string][]byte),
		ttls:   make(map[string]time.Duration),
	}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.setOps++
	s.values[key] = value
	s.ttls[key] = ttl
	return nil
}

func testLimiter(store Store, now time.Time) *Limiter {
	l := NewLimiter(store, slog.Default())
	l.now = func() time.Time { return now }
	return l
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		ip      string
		headers map[string]string
		tool    string
		want    string
	}{
		{
			name: "ip and tool",
			cfg:  Config{IdentifierTypes: []IdentifierType{IdentifierIP, IdentifierTool}},
			ip:   "1.2.3.4",
			tool: "read_file",
			want: "ratelimit:1.2.3.4:read_file",
		},
		{
			name: "missing ip becomes unknown",
			cfg:  Config{IdentifierTypes: []IdentifierType{IdentifierIP}},
			want: "ratelimit:unknown",
		},
		{
			name:    "user from header",
			cfg:     Config{IdentifierTypes: []IdentifierType{IdentifierUser}},
			ip:      "1.2.3.4",
			headers: map[string]string{"x-user-id": "alice"},
			want:    "ratelimit:alice",
		},
		{
			name: "user falls back to ip",
			cfg:  Config{IdentifierTypes: []IdentifierType{IdentifierUser}},
			ip:   "1.2.3.4",
			want: "ratelimit:1.2.3.4",
		},
		{
			name: "tool only",
			cfg:  Config{IdentifierTypes: []IdentifierType{IdentifierTool}},
			tool: "read_file",
			want: "ratelimit:read_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Identifier(tt.cfg, tt.ip, tt.headers, tt.tool)
			if got != tt.want {
				t.Errorf("Identifier = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheck_FirstRequestStartsWindow(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1_000_000, 0)
	l := testLimiter(store, now)
	cfg := Config{Enabled: true, Limit: 2, WindowSeconds: 60}

	res := l.Check(context.Background(), cfg, "ratelimit:k", "read_file")

	if !res.Allowed || res.Count != 1 {
		t.Fatalf("first request: %+v", res)
	}
	var cell Cell
	if err := json.Unmarshal(store.values["ratelimit:k"], &cell); err != nil {
		t.Fatalf("stored cell: %v", err)
	}
	if cell.Count != 1 {
		t.Errorf("stored count = %d", cell.Count)
	}
	if want := now.UnixMilli() + 60_000; cell.ResetAt != want {
		t.Errorf("resetAt = %d, want %d", cell.ResetAt, want)
	}
	if store.ttls["ratelimit:k"] != 60*time.Second {
		t.Errorf("ttl = %v, want 60s", store.ttls["ratelimit:k"])
	}
}

func TestCheck_LimitReachedThenReset(t *testing.T) {
	store := newFakeStore()
	start := time.Unix(1_000_000, 0)
	l := testLimiter(store, start)
	cfg := Config{Enabled: true, Limit: 2, WindowSeconds: 60}
	ctx := context.Background()

	if res := l.Check(ctx, cfg, "ratelimit:t", "read_file"); !res.Allowed {
		t.Fatal("request 1 should be allowed")
	}
	if res := l.Check(ctx, cfg, "ratelimit:t", "read_file"); !res.Allowed {
		t.Fatal("request 2 should be allowed")
	}

	res := l.Check(ctx, cfg, "ratelimit:t", "read_file")
	if res.Allowed {
		t.Fatal("request 3 should be blocked")
	}
	if res.Count != 2 || res.Limit != 2 {
		t.Errorf("blocked result: %+v", res)
	}
	if res.ResetInSeconds < 1 || res.ResetInSeconds > 60 {
		t.Errorf("reset_in_seconds = %d, want within (0,60]", res.ResetInSeconds)
	}
	if !strings.Contains(BlockReason(res), "read_file") {
		t.Errorf("reason should name the tool: %q", BlockReason(res))
	}

	// After the window elapses the counter restarts.
	l.now = func() time.Time { return start.Add(61 * time.Second) }
	if res := l.Check(ctx, cfg, "ratelimit:t", "read_file"); !res.Allowed || res.Count != 1 {
		t.Errorf("post-window request: %+v", res)
	}
}

func TestCheck_IncrementKeepsResetAt(t *testing.T) {
	store := newFakeStore()
	start := time.Unix(1_000_000, 0)
	l := testLimiter(store, start)
	cfg := Config{Enabled: true, Limit: 10, WindowSeconds: 60}
	ctx := context.Background()

	l.Check(ctx, cfg, "ratelimit:x", "t")
	firstReset := mustCell(t, store, "ratelimit:x").ResetAt

	// 10 seconds later the window end must not move.
	l.now = func() time.Time { return start.Add(10 * time.Second) }
	res := l.Check(ctx, cfg, "ratelimit:x", "t")

	if res.Count != 2 {
		t.Errorf("count = %d, want 2", res.Count)
	}
	if got := mustCell(t, store, "ratelimit:x").ResetAt; got != firstReset {
		t.Errorf("resetAt moved from %d to %d", firstReset, got)
	}
	// TTL covers at least the remaining window (50s).
	if ttl := store.ttls["ratelimit:x"]; ttl < 50*time.Second {
		t.Errorf("ttl = %v, want >= 50s", ttl)
	}
}

func TestCheck_StoreFailuresFailOpen(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("store down")
	l := testLimiter(store, time.Now())
	cfg := Config{Enabled: true, Limit: 1, WindowSeconds: 60}

	if res := l.Check(context.Background(), cfg, "ratelimit:k", "t"); !res.Allowed {
		t.Error("read failure should fail open")
	}

	store.getErr = nil
	store.setErr = errors.New("store down")
	if res := l.Check(context.Background(), cfg, "ratelimit:k", "t"); !res.Allowed {
		t.Error("write failure should fail open")
	}
}

func TestCheck_CorruptCellResets(t *testing.T) {
	store := newFakeStore()
	store.values["ratelimit:k"] = []byte("garbage")
	l := testLimiter(store, time.Now())
	cfg := Config{Enabled: true, Limit: 1, WindowSeconds: 60}

	if res := l.Check(context.Background(), cfg, "ratelimit:k", "t"); !res.Allowed || res.Count != 1 {
		t.Errorf("corrupt cell should restart window: %+v", res)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled || cfg.Limit != 100 || cfg.WindowSeconds != 300 {
		t.Errorf("defaults: %+v", cfg)
	}
	if len(cfg.IdentifierTypes) != 2 ||
		cfg.IdentifierTypes[0] != IdentifierIP ||
		cfg.IdentifierTypes[1] != IdentifierTool {
		t.Errorf("default identifiers: %v", cfg.IdentifierTypes)
	}
}

func mustCell(t *testing.T, store *fakeStore, key string) Cell {
	t.Helper()
	var cell Cell
	if err := json.Unmarshal(store.values[key], &cell); err != nil {
		t.Fatalf("cell under %q: %v", key, err)
	}
	return cell
}
