package presence

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newState(t *testing.T) (*State, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(ctx, nil, DefaultConfig(), WithClock(clock.Now)), clock
}

func TestHeartbeatWindows(t *testing.T) {
	t.Parallel()

	s, clock := newState(t)
	s.Heartbeat("U1", "Alice", "alice@example.com")

	if !s.Active("u1") || !s.Active("ALICE") || !s.Active("alice@example.com") {
		t.Fatalf("expected user to be active by id and aliases")
	}

	clock.Advance(30 * time.Second)
	if s.Active("alice") {
		t.Fatalf("active window should have passed")
	}
	if !s.Online("alice", s.Config().OnlineWindow) {
		t.Fatalf("user should still be online")
	}

	clock.Advance(2 * time.Minute)
	if s.Online("alice", s.Config().OnlineWindow) {
		t.Fatalf("online window should have passed")
	}
	if _, ok := s.LastSeen("alice"); !ok {
		t.Fatalf("last seen should be retained until the heartbeat expires")
	}
}

func TestOnlineMany(t *testing.T) {
	t.Parallel()

	s, clock := newState(t)
	s.Heartbeat("a")
	clock.Advance(20 * time.Second)
	s.Heartbeat("b")

	got := s.OnlineMany([]string{"a", "b", "c", ""}, false)
	if len(got) != 3 || !got["a"] || !got["b"] || got["c"] {
		t.Fatalf("unexpected bulk presence: %v", got)
	}
	active := s.OnlineMany([]string{"a", "b"}, true)
	if active["a"] || !active["b"] {
		t.Fatalf("unexpected active presence: %v", active)
	}
}

func TestUnreadMirrorAndVersions(t *testing.T) {
	t.Parallel()

	s, _ := newState(t)
	if _, ok := s.Unread("u1"); ok {
		t.Fatalf("unexpected mirror")
	}
	s.SetUnread("u1", 3)
	s.SetVersion("u1", "", "tok")
	if n, ok := s.Unread("u1"); !ok || n != 3 {
		t.Fatalf("unexpected mirror: %d %v", n, ok)
	}
	if v, ok := s.Version("u1", ""); !ok || v != "tok" {
		t.Fatalf("unexpected version: %q %v", v, ok)
	}
	if _, ok := s.Version("u1", "counterparty"); ok {
		t.Fatalf("version must be scoped to its filter")
	}

	s.Invalidate("u1", "unknown")
	if _, ok := s.Unread("u1"); ok {
		t.Fatalf("mirror should be dropped")
	}
	if _, ok := s.Version("u1", ""); ok {
		t.Fatalf("version should be dropped")
	}
}

func TestComputeVersion(t *testing.T) {
	t.Parallel()

	entries := []VersionEntry{{ID: "c1", UpdatedAt: 10, LastMessageID: 4, Preview: "hi", Unread: 1}}
	a, err := ComputeVersion(entries)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, _ := ComputeVersion([]VersionEntry{{ID: "c1", UpdatedAt: 10, LastMessageID: 4, Preview: "hi", Unread: 1}})
	if a != b {
		t.Fatalf("equal lists must produce equal tokens")
	}
	entries[0].Unread = 0
	c, _ := ComputeVersion(entries)
	if a == c {
		t.Fatalf("unread change must change the token")
	}

	if !MatchesETag(`W/"x", `+ETag(a), a) {
		t.Fatalf("expected match in list")
	}
	if MatchesETag(ETag(c), a) || MatchesETag("", a) {
		t.Fatalf("unexpected match")
	}
}

func TestPageVersion(t *testing.T) {
	t.Parallel()

	key := PageKey{ConversationID: "c1", LastMessageID: 7, Limit: 30, Epoch: 1}
	a, err := PageVersion(key)
	if err != nil {
		t.Fatalf("page version: %v", err)
	}
	key.LastMessageID = 8
	b, _ := PageVersion(key)
	key.LastMessageID = 7
	key.Epoch = 2
	c, _ := PageVersion(key)
	if a == b || a == c {
		t.Fatalf("new messages and new epochs must change the token")
	}
}
