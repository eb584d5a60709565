// Package window holds the decaying per-guild and per-user activity history.
// Every write evicts stale entries before returning a count, so counts always
// reflect the retention horizon relative to the timestamp of that write.
package window

import (
	"sync"
	"time"

	"sentinel-moderation/internal/utils"
)

type Config struct {
	JoinWindow        time.Duration
	ActivityWindow    time.Duration
	ImageWindow       time.Duration
	RecentContentSize int
}

func DefaultConfig() Config {
	return Config{
		JoinWindow:        60 * time.Second,
		ActivityWindow:    30 * time.Second,
		ImageWindow:       600 * time.Second,
		RecentContentSize: 5,
	}
}

// Store owns all window state. Guild buckets and user buckets carry their own
// locks; the maps are only locked for get-or-create.
type Store struct {
	cfg    Config
	mu     sync.RWMutex
	guilds map[string]*GuildState
}

type GuildState struct {
	mu         sync.Mutex
	raidActive bool
	joins      *utils.SlidingWindow

	usersMu sync.RWMutex
	users   map[string]*UserState
}

type UserState struct {
	mu       sync.Mutex
	activity *utils.SlidingWindow
	recent   *utils.ContentRing
	images   *utils.SlidingWindow
}

func NewStore(cfg Config) *Store {
	defaults := DefaultConfig()
	if cfg.JoinWindow <= 0 {
		cfg.JoinWindow = defaults.JoinWindow
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = defaults.ActivityWindow
	}
	if cfg.ImageWindow <= 0 {
		cfg.ImageWindow = defaults.ImageWindow
	}
	if cfg.RecentContentSize <= 0 {
		cfg.RecentContentSize = defaults.RecentContentSize
	}
	return &Store{cfg: cfg, guilds: make(map[string]*GuildState)}
}

func (s *Store) RecordJoin(guildID string, now time.Time) int {
	guild := s.guild(guildID)
	guild.mu.Lock()
	defer guild.mu.Unlock()
	return guild.joins.Add(now)
}

func (s *Store) RecordMessageActivity(guildID, userID string, now time.Time) int {
	user := s.user(guildID, userID)
	user.mu.Lock()
	defer user.mu.Unlock()
	return user.activity.Add(now)
}

func (s *Store) RecordMessageContent(guildID, userID, text string) int {
	user := s.user(guildID, userID)
	user.mu.Lock()
	defer user.mu.Unlock()
	return user.recent.Push(text)
}

func (s *Store) RecordImage(guildID, userID string, now time.Time) int {
	user := s.user(guildID, userID)
	user.mu.Lock()
	defer user.mu.Unlock()
	return user.images.Add(now)
}

func (s *Store) ClearImages(guildID, userID string) {
	user := s.user(guildID, userID)
	user.mu.Lock()
	defer user.mu.Unlock()
	user.images.Reset()
}

func (s *Store) RecentContent(guildID, userID string) []string {
	user := s.user(guildID, userID)
	user.mu.Lock()
	defer user.mu.Unlock()
	return user.recent.Items()
}

func (s *Store) IsRaidActive(guildID string) bool {
	guild := s.guild(guildID)
	guild.mu.Lock()
	defer guild.mu.Unlock()
	return guild.raidActive
}

// SetRaidActive flips the guild into raid mode. It reports true only for the
// call that performed the transition.
func (s *Store) SetRaidActive(guildID string) bool {
	guild := s.guild(guildID)
	guild.mu.Lock()
	defer guild.mu.Unlock()
	if guild.raidActive {
		return false
	}
	guild.raidActive = true
	return true
}

// ClearRaid is the operator reset. The join window is left untouched.
func (s *Store) ClearRaid(guildID string) bool {
	guild := s.guild(guildID)
	guild.mu.Lock()
	defer guild.mu.Unlock()
	if !guild.raidActive {
		return false
	}
	guild.raidActive = false
	return true
}

type Stats struct {
	Guilds      int `json:"guilds"`
	Users       int `json:"users"`
	RaidsActive int `json:"raids_active"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	guilds := make([]*GuildState, 0, len(s.guilds))
	for _, guild := range s.guilds {
		guilds = append(guilds, guild)
	}
	s.mu.RUnlock()

	stats := Stats{Guilds: len(guilds)}
	for _, guild := range guilds {
		guild.usersMu.RLock()
		stats.Users += len(guild.users)
		guild.usersMu.RUnlock()

		guild.mu.Lock()
		if guild.raidActive {
			stats.RaidsActive++
		}
		guild.mu.Unlock()
	}
	return stats
}

func (s *Store) guild(guildID string) *GuildState {
	s.mu.RLock()
	guild := s.guilds[guildID]
	s.mu.RUnlock()
	if guild != nil {
		return guild
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	guild = s.guilds[guildID]
	if guild == nil {
		guild = &GuildState{
			joins: utils.NewSlidingWindow(s.cfg.JoinWindow),
			users: make(map[string]*UserState),
		}
		s.guilds[guildID] = guild
	}
	return guild
}

func (s *Store) user(guildID, userID string) *UserState {
	guild := s.guild(guildID)

	guild.usersMu.RLock()
	user := guild.users[userID]
	guild.usersMu.RUnlock()
	if user != nil {
		return user
	}

	guild.usersMu.Lock()
	defer guild.usersMu.Unlock()
	user = guild.users[userID]
	if user == nil {
		user = &UserState{
			activity: utils.NewSlidingWindow(s.cfg.ActivityWindow),
			recent:   utils.NewContentRing(s.cfg.RecentContentSize),
			images:   utils.NewSlidingWindow(s.cfg.ImageWindow),
		}
		guild.users[userID] = user
	}
	return user
}
