// Package presence keeps process-local, best-effort delivery state: heartbeats,
// reference aliases, unread mirrors and conversation-list version tokens. Nothing
// here is a source of truth; every entry expires on its own.
package presence

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/c-pro/geche"
)

// Config holds the presence windows and cache lifetimes.
type Config struct {
	ActiveWindow time.Duration
	OnlineWindow time.Duration
	HeartbeatTTL time.Duration
	AliasTTL     time.Duration
	UnreadTTL    time.Duration
	VersionTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActiveWindow: 15 * time.Second,
		OnlineWindow: 2 * time.Minute,
		HeartbeatTTL: 10 * time.Minute,
		AliasTTL:     time.Hour,
		UnreadTTL:    5 * time.Minute,
		VersionTTL:   30 * time.Second,
	}
}

type versionEntry struct {
	filter string
	token  string
}

// State is safe for concurrent use.
type State struct {
	cfg        Config
	heartbeats geche.Geche[string, time.Time]
	aliases    geche.Geche[string, string]
	unread     geche.Geche[string, int64]
	versions   geche.Geche[string, versionEntry]
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*State)

// WithClock overrides the clock used for window checks.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New creates the state. Expired entries are swept until ctx is done.
func New(ctx context.Context, log *slog.Logger, cfg Config, opts ...Option) *State {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = def.ActiveWindow
	}
	if cfg.OnlineWindow <= 0 {
		cfg.OnlineWindow = def.OnlineWindow
	}
	if cfg.HeartbeatTTL <= 0 {
		cfg.HeartbeatTTL = def.HeartbeatTTL
	}
	if cfg.AliasTTL <= 0 {
		cfg.AliasTTL = def.AliasTTL
	}
	if cfg.UnreadTTL <= 0 {
		cfg.UnreadTTL = def.UnreadTTL
	}
	if cfg.VersionTTL <= 0 {
		cfg.VersionTTL = def.VersionTTL
	}
	s := &State{
		cfg:        cfg,
		heartbeats: geche.NewMapTTLCache[string, time.Time](ctx, cfg.HeartbeatTTL, time.Minute),
		aliases:    geche.NewMapTTLCache[string, string](ctx, cfg.AliasTTL, time.Minute),
		unread:     geche.NewMapTTLCache[string, int64](ctx, cfg.UnreadTTL, time.Minute),
		versions:   geche.NewMapTTLCache[string, versionEntry](ctx, cfg.VersionTTL, 10*time.Second),
		now:        time.Now,
		logger:     log.With(slog.String("service", "presence")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *State) Config() Config {
	return s.cfg
}

func normalize(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// Heartbeat records that userID is active now. Aliases (username, email) let
// callers ask about presence by any reference they know the user by.
func (s *State) Heartbeat(userID string, aliases ...string) {
	id := normalize(userID)
	if id == "" {
		return
	}
	s.heartbeats.Set(id, s.now())
	for _, alias := range aliases {
		if a := normalize(alias); a != "" && a != id {
			s.aliases.Set(a, id)
		}
	}
}

func (s *State) resolve(ref string) string {
	key := normalize(ref)
	if id, err := s.aliases.Get(key); err == nil {
		return id
	}
	return key
}

// LastSeen returns the last heartbeat of ref.
func (s *State) LastSeen(ref string) (time.Time, bool) {
	at, err := s.heartbeats.Get(s.resolve(ref))
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// Online reports whether ref sent a heartbeat within window.
func (s *State) Online(ref string, window time.Duration) bool {
	at, ok := s.LastSeen(ref)
	if !ok {
		return false
	}
	return s.now().Sub(at) <= window
}

// Active reports presence within the short "actively viewing" window.
func (s *State) Active(ref string) bool {
	return s.Online(ref, s.cfg.ActiveWindow)
}

// OnlineMany checks many references with the long window, or the active window when active is set.
func (s *State) OnlineMany(refs []string, active bool) map[string]bool {
	window := s.cfg.OnlineWindow
	if active {
		window = s.cfg.ActiveWindow
	}
	out := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		out[ref] = s.Online(ref, window)
	}
	return out
}

func (s *State) SetUnread(userID string, total int64) {
	s.unread.Set(normalize(userID), total)
}

func (s *State) Unread(userID string) (int64, bool) {
	n, err := s.unread.Get(normalize(userID))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Invalidate drops the unread mirror and version token of each user.
func (s *State) Invalidate(userIDs ...string) {
	for _, id := range userIDs {
		key := normalize(id)
		if err := s.unread.Del(key); err != nil {
			s.logger.Debug("drop unread mirror", slog.String("user_id", key), slog.Any("error", err))
		}
		if err := s.versions.Del(key); err != nil {
			s.logger.Debug("drop version token", slog.String("user_id", key), slog.Any("error", err))
		}
	}
}

// SetVersion caches the conversation-list version of userID for a list filter.
func (s *State) SetVersion(userID, filter, token string) {
	s.versions.Set(normalize(userID), versionEntry{filter: filter, token: token})
}

// Version returns the cached version token when it was computed for the same filter.
func (s *State) Version(userID, filter string) (string, bool) {
	entry, err := s.versions.Get(normalize(userID))
	if err != nil || entry.filter != filter {
		return "", false
	}
	return entry.token, true
}
